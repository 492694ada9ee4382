// Package reportio writes the JSON-Lines report produced by a sanitize run
// (§4.8). It is grounded on the teacher's audit log
// (json.NewEncoder onto an append-only file handle) with a report-version
// first line, an optional trailing summary record, and a "-" ⇒ stdout
// sentinel layered on top.
package reportio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/sanguard/sanguard/internal/types"
)

// ReportVersion is bumped whenever the ReportItem/Summary schema changes in
// a breaking way.
const ReportVersion = 1

// Summary is the optional trailing JSONL record describing the whole run.
type Summary struct {
	Type        string         `json:"type"`
	RunID       string         `json:"run_id"`
	ToolVersion string         `json:"tool_version"`
	DryRun      bool           `json:"dry_run"`
	ExitCode    int            `json:"exit_code"`
	Files       int            `json:"files"`
	Warnings    int            `json:"warnings"`
	Errors      int            `json:"errors"`
	Counts      map[string]int `json:"counts"`
	StartedAt   string         `json:"started_at"`
	EndedAt     string         `json:"ended_at"`
	Options     interface{}    `json:"options"`
}

// Writer appends ReportItem records to a report destination, which is
// either a regular file (locked from Open until Close so two concurrent
// sanguard invocations writing the same path fail fast rather than
// interleaving JSONL lines) or stdout when path is "-".
type Writer struct {
	out          io.Writer
	file         *os.File
	lock         *flock.Flock
	enc          *json.Encoder
	wroteVersion bool
}

// StdoutSentinel is the report-path value meaning "write to stdout".
const StdoutSentinel = "-"

// Open creates or appends to the report destination. For a real path, it
// takes an exclusive, non-blocking flock on a sibling ".lock" file so a
// second concurrent run against the same report fails fast.
func Open(path string) (*Writer, error) {
	if path == StdoutSentinel {
		return &Writer{out: os.Stdout, enc: json.NewEncoder(os.Stdout)}, nil
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("reportio: acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("reportio: report %q is locked by another run", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("reportio: open report file: %w", err)
	}
	return &Writer{out: f, file: f, lock: lock, enc: json.NewEncoder(f)}, nil
}

// WriteItem appends one ReportItem, preceded by the report_version marker
// on the first call.
func (w *Writer) WriteItem(item types.ReportItem) error {
	if !w.wroteVersion {
		item.ReportVersion = ReportVersion
		w.wroteVersion = true
	} else {
		item.ReportVersion = 0
	}
	return w.enc.Encode(item)
}

// WriteSummary appends the optional trailing summary record. A run_id is
// stamped if the caller did not already set one.
func (w *Writer) WriteSummary(s Summary) error {
	s.Type = "summary"
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	return w.enc.Encode(s)
}

// Close releases the file handle and lock, if any.
func (w *Writer) Close() error {
	var firstErr error
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			firstErr = err
		}
	}
	if w.lock != nil {
		if err := w.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
		os.Remove(w.lock.Path())
	}
	return firstErr
}

// NowISO8601 returns the current time formatted as an ISO-8601 / RFC3339
// timestamp, used to stamp started_at/ended_at in the summary.
func NowISO8601() string {
	return time.Now().UTC().Format(time.RFC3339)
}
