// Package materialize computes output paths and performs atomic writes for
// sanitized payloads (§4.7). It owns the process-wide reserved-outputs set
// that keeps concurrently-placed items from colliding, following the
// teacher's single-writer discipline for shared scan state.
package materialize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Reservations tracks output paths already claimed in this run, guarded by
// a mutex so it is safe to share across goroutines if a caller chooses to
// parallelize per-item work (§5).
type Reservations struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewReservations returns an empty reservation set.
func NewReservations() *Reservations {
	return &Reservations{claimed: map[string]struct{}{}}
}

// ComputeOutputPath implements compute_output_path for both placement
// modes. relPath is the input's path relative to the input root (POSIX
// separators), used in mirror mode; in flat mode only its base name is
// used, as the starting point of the collision search.
func (r *Reservations) ComputeOutputPath(outDir, relPath string, flat bool) (string, error) {
	if !flat {
		target := filepath.Join(outDir, filepath.FromSlash(relPath))
		return r.reserve(target)
	}
	return r.computeFlatPath(outDir, filepath.Base(relPath))
}

func (r *Reservations) computeFlatPath(outDir, base string) (string, error) {
	candidate := filepath.Join(outDir, base)
	if path, ok := r.tryReserve(candidate); ok {
		return path, nil
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; i <= 9999; i++ {
		candidate = filepath.Join(outDir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if path, ok := r.tryReserve(candidate); ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("materialize: no free flat-mode slot for %q", base)
}

// reserve claims target against the in-memory set only. Mirror-mode paths
// are unique by construction (distinct relative paths can't collide), so
// this only rejects a caller bug; whether target already exists on disk is
// the separate overwrite policy's concern, not reservation's.
func (r *Reservations) reserve(target string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.claimed[target]; exists {
		return "", fmt.Errorf("materialize: output path already reserved: %s", target)
	}
	r.claimed[target] = struct{}{}
	return target, nil
}

// tryReserve is the flat-mode collision probe: a candidate is free only if
// neither already claimed this run nor already present on disk.
func (r *Reservations) tryReserve(target string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.claimed[target]; exists {
		return "", false
	}
	if _, err := os.Stat(target); err == nil {
		return "", false
	}
	r.claimed[target] = struct{}{}
	return target, true
}

// Exists reports whether target already exists on disk, used for the
// overwrite==false skip check (§4.7). It does not consult the reservation
// set; the dispatcher calls it after the path has been reserved.
func Exists(target string) bool {
	_, err := os.Stat(target)
	return err == nil
}

// WriteAtomic writes data to target via a sibling temp file plus rename,
// creating target's parent directory if needed. It has no dry-run mode: in
// a dry run the caller reserves the path and does not call WriteAtomic at
// all.
//
// If target already holds byte-identical content (a cheap xxhash
// comparison, not a security boundary), the write is skipped entirely:
// re-running sanguard over an unchanged input with overwrite=true
// shouldn't touch the output file's mtime or burn a rename for nothing.
func WriteAtomic(target string, data []byte) error {
	if sameContent(target, data) {
		return nil
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("materialize: create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("materialize: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("materialize: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("materialize: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("materialize: rename temp file: %w", err)
	}
	return nil
}

// sameContent reports whether path already exists on disk with content
// identical to data, using xxhash to avoid a byte-by-byte compare.
func sameContent(path string, data []byte) bool {
	existing, err := os.ReadFile(path)
	if err != nil || len(existing) != len(data) {
		return false
	}
	return xxhash.Sum64(existing) == xxhash.Sum64(data)
}

// RemoveIfExists deletes path, ignoring a not-exist error; used to clean up
// a partially-written temp file or blocked output.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
