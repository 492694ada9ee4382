package zipsan

import (
	"archive/zip"
	"bytes"
	"os"
	"testing"

	"github.com/sanguard/sanguard/internal/types"
)

func defaultOpts() types.SanitizeOptions {
	return types.DefaultOptions()
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		f.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func listNames(t *testing.T, data []byte) []string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestSanitize_UnsupportedCopied(t *testing.T) {
	data := buildZip(t, map[string]string{"readme.txt": "hello"})
	res, err := Sanitize(data, defaultOpts())
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	names := listNames(t, res.Data)
	if len(names) != 1 || names[0] != "readme.txt" {
		t.Fatalf("expected readme.txt preserved, got %v", names)
	}
	foundCopy := false
	for _, w := range res.Warnings {
		if w.Code == types.WarnZipEntryUnsupportedCopied {
			foundCopy = true
		}
	}
	if !foundCopy {
		t.Fatalf("expected unsupported-copied warning, got %v", res.Warnings)
	}
}

func TestSanitize_PathTraversalAndSymlink(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w1, _ := zw.Create("docs/note.txt")
	w1.Write([]byte("note"))
	w2, _ := zw.Create("../escape.txt")
	w2.Write([]byte("escape"))
	hdr := &zip.FileHeader{Name: "docs/link", Method: zip.Store}
	hdr.SetMode(os.ModeSymlink | 0o777)
	w3, _ := zw.CreateHeader(hdr)
	w3.Write([]byte("/etc/passwd"))
	zw.Close()

	res, err := Sanitize(buf.Bytes(), defaultOpts())
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	names := listNames(t, res.Data)
	if len(names) != 1 || names[0] != "docs/note.txt" {
		t.Fatalf("expected only docs/note.txt survives, got %v", names)
	}
	codes := map[string]bool{}
	for _, w := range res.Warnings {
		codes[w.Code] = true
	}
	if !codes[types.WarnZipEntryUnsafePath] {
		t.Fatalf("expected unsafe path warning, got %v", res.Warnings)
	}
	if !codes[types.WarnZipEntrySymlink] {
		t.Fatalf("expected symlink warning, got %v", res.Warnings)
	}
}

func TestSanitize_CompressionRatioExceeded(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fh := &zip.FileHeader{Name: "bomb.txt", Method: zip.Deflate}
	w, _ := zw.CreateHeader(fh)
	w.Write(bytes.Repeat([]byte{0}, 50000))
	zw.Close()

	opts := defaultOpts()
	opts.ZipMaxCompressionRatio = 2.0
	res, err := Sanitize(buf.Bytes(), opts)
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	names := listNames(t, res.Data)
	if len(names) != 0 {
		t.Fatalf("expected bomb member omitted, got %v", names)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Code == types.WarnZipEntryCompressionRatioExceeded {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected compression ratio warning, got %v", res.Warnings)
	}
}

func TestSanitize_OOXMLMacroIndicator(t *testing.T) {
	inner := buildZip(t, map[string]string{
		"[Content_Types].xml": "<Types/>",
		"word/document.xml":   "<document/>",
		"word/vbaProject.bin": "macro-bytes",
	})
	data := buildZip(t, map[string]string{"macro.docm": string(inner)})
	res, err := Sanitize(data, defaultOpts())
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	codes := map[string]bool{}
	for _, w := range res.Warnings {
		codes[w.Code] = true
	}
	if !codes[types.WarnOfficeMacroEnabled] {
		t.Fatalf("expected office_macro_enabled, got %v", res.Warnings)
	}
	if !codes[types.WarnOfficeMacroIndicatorVBA] {
		t.Fatalf("expected office_macro_indicator_vbaproject, got %v", res.Warnings)
	}
}

func TestSanitize_NestedArchivePolicySkip(t *testing.T) {
	inner := buildZip(t, map[string]string{"x.txt": "hi"})
	data := buildZip(t, map[string]string{"inner.zip": string(inner)})
	res, err := Sanitize(data, defaultOpts())
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	names := listNames(t, res.Data)
	if len(names) != 0 {
		t.Fatalf("expected nested archive skipped by default, got %v", names)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Code == types.WarnZipNestedArchiveSkipped {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected zip_nested_archive_skipped, got %v", res.Warnings)
	}
}

func TestSanitize_Determinism(t *testing.T) {
	data := buildZip(t, map[string]string{"b.txt": "2", "a.txt": "1"})
	res, err := Sanitize(data, defaultOpts())
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	names := listNames(t, res.Data)
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
		t.Fatalf("expected sorted order a.txt, b.txt, got %v", names)
	}
}
