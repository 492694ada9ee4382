package pdfsan

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"

	"github.com/sanguard/sanguard/internal/types"
)

var trailerInfoRe = regexp.MustCompile(`/Info\s+(\d+)\s+(\d+)\s+R`)

// Result is the outcome of sanitizing one PDF payload.
type Result struct {
	Data     []byte
	Warnings []types.WarningItem
}

// Sanitize scans data for risky constructs, then rebuilds the document
// copying every object through unchanged except the Info dictionary, which
// is replaced with an empty one (§4.4: "rebuilds the PDF ... and calls
// set_document_info({}) to clear the Info dictionary; it does not remove
// risky objects from the catalog"). Any parse failure surfaces as an error
// with no warnings, which the caller maps to action=error; pdf_scan_failed
// is only produced by the scan step, after parsing has succeeded.
func Sanitize(data []byte) (Result, error) {
	doc, err := Parse(data)
	if err != nil {
		return Result{}, fmt.Errorf("pdf parse: %w", err)
	}
	warnings := Scan(doc)

	out, err := rewrite(doc)
	if err != nil {
		return Result{}, fmt.Errorf("pdf rewrite: %w", err)
	}
	return Result{Data: out, Warnings: warnings}, nil
}

// rewrite serializes every known object of doc into a fresh PDF body,
// builds a plain (non-cross-reference-stream) xref table, and emits a
// trailer whose /Info is an empty dictionary.
func rewrite(doc *Document) ([]byte, error) {
	refs := doc.AllRefs()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	buf.Write([]byte{'%', 0xE2, 0xE3, 0xCF, 0xD3, '\n'})

	offsets := make(map[Ref]int64, len(refs))
	maxNum := 0
	infoRef, hasInfo := emptyInfoObject(doc, refs)
	if hasInfo && infoRef.Num > maxNum {
		maxNum = infoRef.Num
	}

	for _, ref := range refs {
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
		offsets[ref] = int64(buf.Len())
		obj := doc.Resolve(ref)
		if hasInfo && ref == infoRef {
			obj = &Object{Kind: ObjDict, Dict: map[string]*Object{}}
		}
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		writeObject(&buf, obj)
		buf.WriteString("\n")
		if obj.Kind == ObjStream {
			buf.WriteString("stream\n")
			buf.Write(obj.Stream)
			buf.WriteString("\nendstream\n")
		}
		buf.WriteString("endobj\n")
	}

	if hasInfo {
		if _, ok := offsets[infoRef]; !ok {
			offsets[infoRef] = int64(buf.Len())
			fmt.Fprintf(&buf, "%d %d obj\n<<>>\nendobj\n", infoRef.Num, infoRef.Gen)
		}
	}

	xrefStart := int64(buf.Len())
	size := maxNum + 1
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num < size; num++ {
		ref := Ref{Num: num, Gen: 0}
		off, ok := offsets[ref]
		if !ok {
			buf.WriteString("0000000000 00000 f \n")
			continue
		}
		fmt.Fprintf(&buf, "%010d %05d n \n", off, ref.Gen)
	}

	buf.WriteString("trailer\n<<")
	fmt.Fprintf(&buf, "/Size %d /Root %d %d R", size, doc.RootRef.Num, doc.RootRef.Gen)
	if hasInfo {
		fmt.Fprintf(&buf, " /Info %d %d R", infoRef.Num, infoRef.Gen)
	}
	buf.WriteString(">>\nstartxref\n")
	fmt.Fprintf(&buf, "%d\n", xrefStart)
	buf.WriteString("%%EOF\n")

	return buf.Bytes(), nil
}

// emptyInfoObject locates the trailer's /Info reference if the source
// document had one, so the rewrite can preserve the reference while
// blanking its contents. Falls back to "no Info" when the source never
// declared one; sanitize never invents a new Info dictionary.
func emptyInfoObject(doc *Document, refs []Ref) (Ref, bool) {
	_ = refs
	if m := trailerInfoRe.FindSubmatch(doc.raw); m != nil {
		num := atoiSafe(m[1])
		gen := atoiSafe(m[2])
		return Ref{Num: num, Gen: gen}, true
	}
	return Ref{}, false
}

func atoiSafe(b []byte) int {
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func writeObject(buf *bytes.Buffer, obj *Object) {
	if obj == nil {
		buf.WriteString("null")
		return
	}
	switch obj.Kind {
	case ObjNull:
		buf.WriteString("null")
	case ObjBool:
		if obj.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case ObjNumber:
		fmt.Fprintf(buf, "%g", obj.Num)
	case ObjString:
		buf.Write(obj.Str)
	case ObjName:
		fmt.Fprintf(buf, "/%s", obj.Name)
	case ObjRef:
		fmt.Fprintf(buf, "%d %d R", obj.Ref.Num, obj.Ref.Gen)
	case ObjArray:
		buf.WriteString("[")
		for i, item := range obj.Array {
			if i > 0 {
				buf.WriteString(" ")
			}
			writeObject(buf, item)
		}
		buf.WriteString("]")
	case ObjDict, ObjStream:
		buf.WriteString("<<")
		keys := make([]string, 0, len(obj.Dict))
		for k := range obj.Dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if obj.Kind == ObjStream && k == "Length" {
				continue // recomputed below from the actual rewritten stream bytes
			}
			fmt.Fprintf(buf, "/%s ", k)
			writeObject(buf, obj.Dict[k])
			buf.WriteString(" ")
		}
		if obj.Kind == ObjStream {
			fmt.Fprintf(buf, "/Length %d", len(obj.Stream))
		}
		buf.WriteString(">>")
	default:
		buf.WriteString("null")
	}
}
