package reportio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sanguard/sanguard/internal/types"
)

func strPtr(s string) *string { return &s }

func TestWriter_FirstLineHasReportVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.WriteItem(types.ReportItem{InputPath: "a.txt", Action: types.ActionCopied, OutputPath: strPtr("out/a.txt")}); err != nil {
		t.Fatalf("WriteItem: %v", err)
	}
	if err := w.WriteItem(types.ReportItem{InputPath: "b.txt", Action: types.ActionSkipped}); err != nil {
		t.Fatalf("WriteItem: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Scan()
	var first types.ReportItem
	if err := json.Unmarshal(scanner.Bytes(), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if first.ReportVersion != ReportVersion {
		t.Fatalf("expected report_version=%d on first line, got %d", ReportVersion, first.ReportVersion)
	}
	scanner.Scan()
	var second types.ReportItem
	if err := json.Unmarshal(scanner.Bytes(), &second); err != nil {
		t.Fatalf("unmarshal second line: %v", err)
	}
	if second.ReportVersion != 0 {
		t.Fatalf("expected no report_version on second line, got %d", second.ReportVersion)
	}
}

func TestWriter_SummaryLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.WriteSummary(Summary{Files: 3, Warnings: 1, ExitCode: 0, Counts: map[string]int{"copied": 3}}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Type != "summary" || s.Files != 3 {
		t.Fatalf("unexpected summary: %#v", s)
	}
}

func TestWriter_SummaryStampsRunID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.WriteSummary(Summary{Files: 1}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.RunID == "" {
		t.Fatal("expected a generated run_id when caller leaves it empty")
	}
}

func TestWriter_SummaryKeepsCallerRunID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.WriteSummary(Summary{Files: 1, RunID: "fixed-id"}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.RunID != "fixed-id" {
		t.Fatalf("expected caller-supplied run_id to survive, got %q", s.RunID)
	}
}

func TestPrintTable_EmptyItems(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, nil)
	if !strings.Contains(buf.String(), "No files processed") {
		t.Fatalf("expected empty-set message, got %q", buf.String())
	}
}

func TestPrintTable_RendersRows(t *testing.T) {
	var buf bytes.Buffer
	out := "out/a.txt"
	items := []types.ReportItem{
		{InputPath: "a.txt", Action: types.ActionCopied, OutputPath: &out},
		{InputPath: "b.txt", Action: types.ActionError, Error: strPtr("boom")},
	}
	PrintTable(&buf, items)
	rendered := buf.String()
	for _, want := range []string{"a.txt", "out/a.txt", "b.txt", "boom"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("expected table output to contain %q, got:\n%s", want, rendered)
		}
	}
}

func TestPrintSummaryText(t *testing.T) {
	var buf bytes.Buffer
	PrintSummaryText(&buf, Summary{Files: 2, Warnings: 1, Errors: 0, ExitCode: 0, Counts: map[string]int{"copied": 2}})
	rendered := buf.String()
	for _, want := range []string{"Processed 2 file(s)", "copied", "exit_code=0"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("expected summary text to contain %q, got:\n%s", want, rendered)
		}
	}
}

func TestOpen_LockPreventsSecondWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.jsonl")
	w1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer w1.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected second Open to fail while locked")
	}
}
