// Package sniff classifies a file as image/PDF/ZIP-container/other by
// peeking its leading bytes, independent of its extension (§4.2).
package sniff

import (
	"archive/zip"
	"bytes"
	"strings"

	"github.com/sanguard/sanguard/internal/types"
)

// Result is the sniffer's tagged classification. It carries no warning; the
// dispatcher compares it with the extension and records any mismatch.
type Result struct {
	ContentType types.ContentType
	ImageFormat types.ImageFormat
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
)

// Sniff classifies data (the leading bytes of a file are sufficient; the
// full byte slice is accepted for convenience and ZIP central-directory
// probing). It is authoritative over any extension hint.
func Sniff(data []byte) Result {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return Result{ContentType: types.ContentImage, ImageFormat: types.ImageJPEG}
	case bytes.HasPrefix(data, pngMagic):
		return Result{ContentType: types.ContentImage, ImageFormat: types.ImagePNG}
	case isWebP(data):
		return Result{ContentType: types.ContentImage, ImageFormat: types.ImageWebP}
	case isTIFF(data):
		return Result{ContentType: types.ContentImage, ImageFormat: types.ImageTIFF}
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return Result{ContentType: types.ContentPDF}
	case bytes.HasPrefix(data, zipMagic):
		if isOOXML(data) {
			return Result{ContentType: types.ContentOOXML}
		}
		return Result{ContentType: types.ContentZip}
	default:
		return Result{ContentType: types.ContentOther}
	}
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP"))
}

func isTIFF(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return (data[0] == 'I' && data[1] == 'I' && data[2] == 0x2A && data[3] == 0x00) ||
		(data[0] == 'M' && data[1] == 'M' && data[2] == 0x00 && data[3] == 0x2A)
}

// isOOXML reports whether a ZIP container is an OOXML package: it must
// contain "[Content_Types].xml" plus at least one other *.xml part.
func isOOXML(data []byte) bool {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	hasContentTypes := false
	hasOtherXML := false
	for _, f := range r.File {
		name := f.Name
		if name == "[Content_Types].xml" {
			hasContentTypes = true
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), ".xml") {
			hasOtherXML = true
		}
	}
	return hasContentTypes && hasOtherXML
}

// ExtensionContentType maps a lowercase file extension (with leading dot)
// to the content type it would imply if it were sanitizable, used to
// detect content_type_mismatch/content_type_detected per §4.2.
func ExtensionContentType(lowerExt string) types.ContentType {
	switch lowerExt {
	case ".jpg", ".jpeg", ".png", ".webp", ".tif", ".tiff":
		return types.ContentImage
	case ".pdf":
		return types.ContentPDF
	case ".zip":
		return types.ContentZip
	case ".docm", ".xlsm", ".pptm", ".dotm", ".xltm", ".potm":
		return types.ContentOOXML
	default:
		return types.ContentOther
	}
}
