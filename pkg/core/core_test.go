package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitize_Smoke(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(in, "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("seed input: %v", err)
	}

	items, exitCode, err := Sanitize(in, out, "", DefaultOptions())
	if err != nil {
		t.Fatalf("Sanitize error: %v", err)
	}
	if exitCode != 0 {
		t.Fatalf("expected exit 0, got %d", exitCode)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Action != Action("copied") {
		t.Fatalf("expected copied, got %v", items[0].Action)
	}
}
