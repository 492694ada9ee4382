// Package imagesan sanitizes raster images by dropping source metadata and
// re-encoding under a fixed per-format policy (§4.3). No image codec library
// exists anywhere in the retrieved corpus (see DESIGN.md); JPEG and PNG go
// through the standard library's decode/re-encode, which already discards
// EXIF/ICC/ancillary chunks the codecs don't model. WebP and TIFF, which
// have no stdlib codec, are sanitized by direct container/tag surgery.
package imagesan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/jpeg"
	"image/png"

	"github.com/sanguard/sanguard/internal/types"
)

// Result is the outcome of sanitizing one image payload.
type Result struct {
	Data     []byte
	Warnings []types.WarningItem
}

// Sanitize dispatches on format and returns the re-encoded payload. Any
// decode failure is returned as an error with the codec's message, to be
// surfaced as action=error by the caller (§4.3).
func Sanitize(format types.ImageFormat, data []byte) (Result, error) {
	switch format {
	case types.ImageJPEG:
		return sanitizeJPEG(data)
	case types.ImagePNG:
		return sanitizePNG(data)
	case types.ImageWebP:
		return sanitizeWebP(data)
	case types.ImageTIFF:
		return sanitizeTIFF(data)
	default:
		return Result{}, fmt.Errorf("imagesan: unsupported image format")
	}
}

func sanitizeJPEG(data []byte) (Result, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("jpeg decode: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return Result{}, fmt.Errorf("jpeg encode: %w", err)
	}
	return Result{Data: buf.Bytes()}, nil
}

func sanitizePNG(data []byte) (Result, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("png decode: %w", err)
	}
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return Result{}, fmt.Errorf("png encode: %w", err)
	}
	return Result{Data: buf.Bytes()}, nil
}

// riffMetadataChunks lists WebP chunk FourCCs that carry source metadata
// and must not survive sanitization.
var riffMetadataChunks = map[string]bool{
	"EXIF": true,
	"ICCP": true,
	"XMP ": true,
}

// sanitizeWebP rewrites the RIFF container, dropping EXIF/ICCP/XMP chunks
// verbatim. It does not re-encode image samples (no WebP codec in the
// corpus), which keeps pixel data untouched while still removing the
// metadata chunks the dispatcher is asked to strip.
func sanitizeWebP(data []byte) (Result, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return Result{}, fmt.Errorf("webp: not a RIFF/WEBP container")
	}
	var out bytes.Buffer
	out.WriteString("RIFF")
	out.Write([]byte{0, 0, 0, 0}) // size patched below
	out.WriteString("WEBP")

	off := 12
	for off+8 <= len(data) {
		fourcc := string(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		chunkEnd := off + 8 + int(size)
		if chunkEnd > len(data) {
			break
		}
		if riffMetadataChunks[fourcc] {
			off = chunkEnd
			if size%2 == 1 {
				off++
			}
			continue
		}
		out.Write(data[off:chunkEnd])
		if size%2 == 1 && chunkEnd < len(data) {
			out.WriteByte(0)
			chunkEnd++
		}
		off = chunkEnd
	}

	result := out.Bytes()
	riffSize := uint32(len(result) - 8)
	binary.LittleEndian.PutUint32(result[4:8], riffSize)
	return Result{Data: result}, nil
}

// tiffStripTags are the IFD tag IDs that carry source-identifying metadata
// (ImageDescription, Make, Model, Software, Artist, Copyright, and the
// GPS IFD pointer); sanitizeTIFF zeroes their values in place rather than
// rebuilding the IFD, since no TIFF codec exists in the corpus to
// re-serialize a trimmed tag list.
var tiffStripTags = map[uint16]bool{
	0x010E: true, // ImageDescription
	0x010F: true, // Make
	0x0110: true, // Model
	0x0131: true, // Software
	0x013B: true, // Artist
	0x8298: true, // Copyright
	0x8825: true, // GPS IFD pointer
}

func sanitizeTIFF(data []byte) (Result, error) {
	if len(data) < 8 {
		return Result{}, fmt.Errorf("tiff: truncated header")
	}
	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return Result{}, fmt.Errorf("tiff: bad byte-order marker")
	}

	out := make([]byte, len(data))
	copy(out, data)

	ifdOffset := order.Uint32(data[4:8])
	for ifdOffset != 0 && int(ifdOffset)+2 <= len(out) {
		pos := int(ifdOffset)
		count := order.Uint16(out[pos : pos+2])
		entryBase := pos + 2
		for i := 0; i < int(count); i++ {
			entryOff := entryBase + i*12
			if entryOff+12 > len(out) {
				break
			}
			tag := order.Uint16(out[entryOff : entryOff+2])
			if tiffStripTags[tag] {
				zeroEntryValue(out, entryOff, order)
			}
		}
		nextOff := entryBase + int(count)*12
		if nextOff+4 > len(out) {
			break
		}
		ifdOffset = order.Uint32(out[nextOff : nextOff+4])
	}
	return Result{Data: out}, nil
}

// tiffTypeSizes gives the per-component byte width for each IFD field type
// (TIFF 6.0 §2, table 2); unknown types are treated as 1 byte/component so
// an unrecognized type still gets its in-place value zeroed rather than
// panicking on an out-of-bounds read.
var tiffTypeSizes = map[uint16]uint32{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8,
	6: 1, 7: 1, 8: 2, 9: 4, 10: 8,
	11: 4, 12: 8,
}

// zeroEntryValue destroys a 12-byte IFD entry's value wherever it actually
// lives. TIFF packs a value into the entry's trailing 4 bytes only when it
// fits (type size * count <= 4); anything larger is stored out-of-line, with
// the entry's 4 bytes holding an offset into the file instead. Zeroing only
// those 4 bytes (the old behavior) breaks the pointer but leaves the
// original metadata payload fully intact elsewhere in the buffer, recoverable
// by any tool that scans the raw bytes. This zeroes the out-of-line region
// too, then blanks the now-dangling pointer field itself.
func zeroEntryValue(buf []byte, entryOff int, order binary.ByteOrder) {
	typ := order.Uint16(buf[entryOff+2 : entryOff+4])
	count := order.Uint32(buf[entryOff+4 : entryOff+8])
	valOff := entryOff + 8

	size, ok := tiffTypeSizes[typ]
	if !ok {
		size = 1
	}
	total := uint64(size) * uint64(count)

	if total > 4 {
		dataOff := int(order.Uint32(buf[valOff : valOff+4]))
		end := dataOff + int(total)
		if end > len(buf) {
			end = len(buf)
		}
		for i := dataOff; i < end; i++ {
			buf[i] = 0
		}
	}

	for i := 0; i < 4 && valOff+i < len(buf); i++ {
		buf[valOff+i] = 0
	}
}
