// Package zipsan streams a ZIP archive through the guardrail table of
// §4.5, dispatching each surviving member to the appropriate format
// sanitizer (or copying/skipping it), and rebuilds a new archive. It is
// built directly on archive/zip — the corpus's own archive handling is
// itself built on archive/zip/archive/tar, so this follows the pack's
// established approach rather than inventing one.
package zipsan

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/sanguard/sanguard/internal/imagesan"
	"github.com/sanguard/sanguard/internal/ooxmlsan"
	"github.com/sanguard/sanguard/internal/pdfsan"
	"github.com/sanguard/sanguard/internal/types"
)

// Result is the outcome of sanitizing one ZIP payload.
type Result struct {
	Data     []byte
	Warnings []types.WarningItem
}

const symlinkExternalAttrBits = 0xA000 << 16 // S_IFLNK << 16, packed into external_attr

// Sanitize applies the full ZIP guardrail pipeline to data and returns a
// freshly built archive containing only the surviving, sanitized members.
func Sanitize(data []byte, opts types.SanitizeOptions) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("zip open: %w", err)
	}

	entries := append([]*zip.File(nil), zr.File...)
	sort.Slice(entries, func(i, j int) bool {
		return normalizeName(entries[i].Name) < normalizeName(entries[j].Name)
	})

	s := &sanitizer{opts: opts, seenNames: map[string]bool{}}

	if len(entries) > opts.ZipMaxMembers {
		s.warn(types.WarnZipEntriesTruncated, fmt.Sprintf("archive has %d entries, capped at %d", len(entries), opts.ZipMaxMembers))
		entries = entries[:opts.ZipMaxMembers]
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range entries {
		s.processEntry(zw, f)
	}

	if err := zw.Close(); err != nil {
		return Result{}, fmt.Errorf("zip rebuild: %w", err)
	}

	return Result{Data: buf.Bytes(), Warnings: s.sortedWarnings()}, nil
}

type sanitizer struct {
	opts         types.SanitizeOptions
	seenNames    map[string]bool
	runningBytes int64
	warnings     []types.WarningItem
	seenWarnKeys map[string]bool
}

func (s *sanitizer) warn(code, message string) {
	if s.seenWarnKeys == nil {
		s.seenWarnKeys = map[string]bool{}
	}
	key := code + "\x00" + message
	if s.seenWarnKeys[key] {
		return
	}
	s.seenWarnKeys[key] = true
	s.warnings = append(s.warnings, types.WarningItem{Code: code, Message: message})
}

func (s *sanitizer) sortedWarnings() []types.WarningItem {
	out := append([]types.WarningItem(nil), s.warnings...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Message < out[j].Message
	})
	return out
}

func normalizeName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

func isSafePath(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	if len(name) >= 2 && name[1] == ':' {
		return false // drive-letter segment, e.g. "C:"
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

func isSymlinkEntry(f *zip.File) bool {
	return f.ExternalAttrs&symlinkExternalAttrBits == symlinkExternalAttrBits && f.ExternalAttrs != 0
}

func isEncrypted(f *zip.File) bool {
	return f.Flags&0x1 != 0
}

func (s *sanitizer) processEntry(zw *zip.Writer, f *zip.File) {
	name := normalizeName(f.Name)

	if name == "" {
		s.warn(types.WarnZipEntryEmptyName, "empty entry name")
		return
	}
	if !isSafePath(name) {
		s.warn(types.WarnZipEntryUnsafePath, fmt.Sprintf("unsafe path %q", name))
		return
	}
	if s.seenNames[name] {
		s.warn(types.WarnZipEntryDuplicate, fmt.Sprintf("duplicate entry %q", name))
		return
	}
	s.seenNames[name] = true

	if isSymlinkEntry(f) {
		s.warn(types.WarnZipEntrySymlink, fmt.Sprintf("symlink entry %q", name))
		return
	}
	if isEncrypted(f) {
		s.warn(types.WarnZipEntryEncrypted, fmt.Sprintf("encrypted entry %q", name))
		return
	}

	if strings.HasSuffix(name, "/") {
		s.writeDirectory(zw, f, name)
		return
	}

	declaredSize := int64(f.UncompressedSize64)
	if declaredSize > s.opts.ZipMaxMemberUncompressedBytes {
		s.warn(types.WarnZipEntryOversize, fmt.Sprintf("entry %q declares %d bytes", name, declaredSize))
		return
	}
	compressedSize := int64(f.CompressedSize64)
	ratio := compressionRatio(declaredSize, compressedSize)
	if ratio > s.opts.ZipMaxCompressionRatio {
		s.warn(types.WarnZipEntryCompressionRatioExceeded, fmt.Sprintf("entry %q ratio %.1f exceeds cap", name, ratio))
		return
	}
	if s.runningBytes+declaredSize > s.opts.ZipMaxTotalUncompressedBytes {
		s.warn(types.WarnZipTotalExpandedLimitExceeded, fmt.Sprintf("entry %q would exceed total expansion cap", name))
		return
	}

	rc, err := f.Open()
	if err != nil {
		s.warn(types.WarnZipEntrySanitizeFailed, fmt.Sprintf("entry %q: open failed: %v", name, err))
		return
	}
	defer rc.Close()

	payload, err := readAllBounded(rc, s.opts.ZipMaxMemberUncompressedBytes)
	if err != nil {
		s.warn(types.WarnZipEntryOversize, fmt.Sprintf("entry %q exceeded member cap while reading", name))
		return
	}

	s.runningBytes += int64(len(payload))
	if s.runningBytes > s.opts.ZipMaxTotalUncompressedBytes {
		s.warn(types.WarnZipTotalExpandedLimitExceeded, fmt.Sprintf("entry %q exceeded total expansion cap after read", name))
		return
	}

	out, innerWarnings, skip := s.dispatchMember(name, payload)
	for _, w := range innerWarnings {
		s.warn(w.Code, w.Message)
	}
	if skip {
		return
	}

	s.writeMember(zw, f, name, out)
}

// readAllBounded reads at most limit+1 bytes, returning an error if more
// than limit bytes were available so a member that lies about its
// uncompressed size in the central directory cannot evade the per-member
// cap by expanding further than declared.
func readAllBounded(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("exceeded bound of %d bytes", limit)
	}
	return data, nil
}

func compressionRatio(uncompressed, compressed int64) float64 {
	if compressed == 0 {
		if uncompressed == 0 {
			return 0
		}
		return 1e18 // effectively infinite
	}
	return float64(uncompressed) / float64(compressed)
}

// dispatchMember routes a surviving member by extension to the matching
// format handler, returning the bytes to write (nil with skip=true if the
// member should be omitted from the output archive) and any warnings.
func (s *sanitizer) dispatchMember(name string, payload []byte) (out []byte, warnings []types.WarningItem, skip bool) {
	ext := strings.ToLower(path.Ext(name))

	switch {
	case isImageExt(ext):
		res, err := imagesan.Sanitize(extImageFormat(ext), payload)
		if err != nil {
			return nil, []types.WarningItem{{Code: types.WarnZipEntrySanitizeFailed, Message: fmt.Sprintf("entry %q: %v", name, err)}}, true
		}
		return res.Data, res.Warnings, false

	case ext == ".pdf":
		res, err := pdfsan.Sanitize(payload)
		if err != nil {
			return nil, []types.WarningItem{{Code: types.WarnZipEntrySanitizeFailed, Message: fmt.Sprintf("entry %q: %v", name, err)}}, true
		}
		prefixed := make([]types.WarningItem, len(res.Warnings))
		for i, w := range res.Warnings {
			prefixed[i] = types.WarningItem{Code: w.Code, Message: fmt.Sprintf("zip entry '%s': %s", name, w.Message)}
		}
		return res.Data, prefixed, false

	case ext == ".zip":
		if s.opts.NestedArchivePolicy == types.NestedArchiveCopy {
			return payload, []types.WarningItem{{Code: types.WarnZipNestedArchiveCopied, Message: fmt.Sprintf("entry %q copied unsanitized", name)}}, false
		}
		return nil, []types.WarningItem{{Code: types.WarnZipNestedArchiveSkipped, Message: fmt.Sprintf("entry %q skipped", name)}}, true

	case ooxmlsan.IsMacroExtension(ext):
		warnings = append(warnings, types.WarningItem{Code: types.WarnOfficeMacroEnabled, Message: fmt.Sprintf("entry %q has macro-enabled extension", name)})
		warnings = append(warnings, ooxmlsan.ScanMembers(payload)...)
		return payload, warnings, false

	default:
		if s.opts.CopyUnsupported {
			return payload, []types.WarningItem{{Code: types.WarnZipEntryUnsupportedCopied, Message: fmt.Sprintf("entry %q copied as-is", name)}}, false
		}
		return nil, []types.WarningItem{{Code: types.WarnZipEntryUnsupportedSkipped, Message: fmt.Sprintf("entry %q skipped", name)}}, true
	}
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".tif": true, ".tiff": true}

func isImageExt(ext string) bool { return imageExts[ext] }

func extImageFormat(ext string) types.ImageFormat {
	switch ext {
	case ".jpg", ".jpeg":
		return types.ImageJPEG
	case ".png":
		return types.ImagePNG
	case ".webp":
		return types.ImageWebP
	case ".tif", ".tiff":
		return types.ImageTIFF
	default:
		return types.ImageUnknown
	}
}

func (s *sanitizer) writeDirectory(zw *zip.Writer, f *zip.File, name string) {
	hdr := cloneHeader(f, name)
	hdr.Method = zip.Store
	if _, err := zw.CreateHeader(hdr); err != nil {
		s.warn(types.WarnZipEntrySanitizeFailed, fmt.Sprintf("entry %q: write failed: %v", name, err))
	}
}

func (s *sanitizer) writeMember(zw *zip.Writer, f *zip.File, name string, data []byte) {
	hdr := cloneHeader(f, name)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		s.warn(types.WarnZipEntrySanitizeFailed, fmt.Sprintf("entry %q: write failed: %v", name, err))
		return
	}
	if _, err := w.Write(data); err != nil {
		s.warn(types.WarnZipEntrySanitizeFailed, fmt.Sprintf("entry %q: write failed: %v", name, err))
	}
}

// cloneHeader copies the fields the guardrail design calls out as
// preserved (date_time, compress_type, create_system via CreatorVersion's
// high byte, external_attr, comment, extra), clearing the encrypted flag
// bit. archive/zip does not expose the internal-attributes word, so that
// field cannot be round-tripped.
func cloneHeader(f *zip.File, name string) *zip.FileHeader {
	return &zip.FileHeader{
		Name:           name,
		Modified:       f.Modified,
		Method:         f.Method,
		CreatorVersion:  f.CreatorVersion,
		ReaderVersion:  f.ReaderVersion,
		Flags:          f.Flags &^ 0x1,
		ExternalAttrs:  f.ExternalAttrs,
		Comment:        f.Comment,
		Extra:          f.Extra,
	}
}
