package sniff

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/sanguard/sanguard/internal/types"
)

func TestSniff_Images(t *testing.T) {
	if got := Sniff([]byte{0xFF, 0xD8, 0xFF, 0xE0}); got.ContentType != types.ContentImage || got.ImageFormat != types.ImageJPEG {
		t.Fatalf("jpeg sniff: %#v", got)
	}
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	if got := Sniff(png); got.ContentType != types.ContentImage || got.ImageFormat != types.ImagePNG {
		t.Fatalf("png sniff: %#v", got)
	}
	webp := append([]byte("RIFF"), []byte{0, 0, 0, 0}...)
	webp = append(webp, []byte("WEBP")...)
	if got := Sniff(webp); got.ContentType != types.ContentImage || got.ImageFormat != types.ImageWebP {
		t.Fatalf("webp sniff: %#v", got)
	}
	tiff := []byte{'I', 'I', 0x2A, 0x00}
	if got := Sniff(tiff); got.ContentType != types.ContentImage || got.ImageFormat != types.ImageTIFF {
		t.Fatalf("tiff sniff: %#v", got)
	}
}

func TestSniff_PDF(t *testing.T) {
	if got := Sniff([]byte("%PDF-1.4\n...")); got.ContentType != types.ContentPDF {
		t.Fatalf("pdf sniff: %#v", got)
	}
}

func TestSniff_ZipAndOOXML(t *testing.T) {
	var plain bytes.Buffer
	zw := zip.NewWriter(&plain)
	f, _ := zw.Create("a.txt")
	f.Write([]byte("hi"))
	zw.Close()
	if got := Sniff(plain.Bytes()); got.ContentType != types.ContentZip {
		t.Fatalf("plain zip sniff: %#v", got)
	}

	var ooxml bytes.Buffer
	zw2 := zip.NewWriter(&ooxml)
	f1, _ := zw2.Create("[Content_Types].xml")
	f1.Write([]byte("<Types/>"))
	f2, _ := zw2.Create("word/document.xml")
	f2.Write([]byte("<document/>"))
	zw2.Close()
	if got := Sniff(ooxml.Bytes()); got.ContentType != types.ContentOOXML {
		t.Fatalf("ooxml sniff: %#v", got)
	}
}

func TestSniff_Other(t *testing.T) {
	if got := Sniff([]byte("just some text")); got.ContentType != types.ContentOther {
		t.Fatalf("other sniff: %#v", got)
	}
}

func TestExtensionContentType(t *testing.T) {
	cases := map[string]types.ContentType{
		".jpg":  types.ContentImage,
		".png":  types.ContentImage,
		".pdf":  types.ContentPDF,
		".zip":  types.ContentZip,
		".docm": types.ContentOOXML,
		".txt":  types.ContentOther,
	}
	for ext, want := range cases {
		if got := ExtensionContentType(ext); got != want {
			t.Errorf("ExtensionContentType(%q) = %v, want %v", ext, got, want)
		}
	}
}
