package pdfsan

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Ref identifies an indirect PDF object by object number and generation.
type Ref struct {
	Num int
	Gen int
}

// ObjKind tags the dynamic type of a parsed PDF value.
type ObjKind int

const (
	ObjNull ObjKind = iota
	ObjBool
	ObjNumber
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjRef
	ObjStream
	ObjOther
)

// Object is a dynamically-typed PDF value. Only the field matching Kind is
// meaningful.
type Object struct {
	Kind   ObjKind
	Bool   bool
	Num    float64
	Str    []byte
	Name   string
	Array  []*Object
	Dict   map[string]*Object
	Ref    Ref
	Stream []byte // raw stream bytes (undecoded), when Kind == ObjStream
}

// Get looks up a dictionary key, returning nil if absent or not a dict.
func (o *Object) Get(key string) *Object {
	if o == nil || o.Kind != ObjDict && o.Kind != ObjStream {
		return nil
	}
	if o.Dict == nil {
		return nil
	}
	return o.Dict[key]
}

// Document is a recovery-scanned PDF object graph: every "N G obj" found
// anywhere in the byte stream, plus the trailer's Root reference if found.
type Document struct {
	raw     []byte
	objects map[Ref]*rawObjectSpan
	cache   map[Ref]*Object // identity-preserving dereference cache
	Root    *Object
	RootRef Ref
}

type rawObjectSpan struct {
	body   []byte // bytes between "N G obj" and "endobj", exclusive
	stream []byte // stream payload if present, else nil
}

var objHeaderRe = regexp.MustCompile(`(?m)(\d+)\s+(\d+)\s+obj\b`)
var trailerRootRe = regexp.MustCompile(`/Root\s+(\d+)\s+(\d+)\s+R`)
var streamStartRe = regexp.MustCompile(`stream\r?\n`)

// Parse performs the lenient whole-file recovery scan described in the
// design notes: every "N G obj ... endobj" span in the byte stream is
// indexed, independent of any xref table, then the trailer's /Root (or the
// first object carrying a /Type /Catalog if no trailer is found) seeds
// dereferencing.
func Parse(data []byte) (*Document, error) {
	doc := &Document{
		raw:     data,
		objects: map[Ref]*rawObjectSpan{},
		cache:   map[Ref]*Object{},
	}

	headers := objHeaderRe.FindAllSubmatchIndex(data, -1)
	if len(headers) == 0 {
		return nil, fmt.Errorf("pdfsan: no objects found")
	}

	for i, h := range headers {
		num, _ := strconv.Atoi(string(data[h[2]:h[3]]))
		gen, _ := strconv.Atoi(string(data[h[4]:h[5]]))
		ref := Ref{Num: num, Gen: gen}
		bodyStart := h[1]
		bodyEnd := len(data)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1][0]
		}
		span := data[bodyStart:bodyEnd]
		endobjIdx := bytes.Index(span, []byte("endobj"))
		if endobjIdx >= 0 {
			span = span[:endobjIdx]
		}

		body := span
		var streamBytes []byte
		if loc := streamStartRe.FindIndex(span); loc != nil {
			body = span[:loc[0]]
			streamBody := span[loc[1]:]
			if endIdx := bytes.LastIndex(streamBody, []byte("endstream")); endIdx >= 0 {
				streamBody = streamBody[:endIdx]
				streamBody = bytes.TrimRight(streamBody, "\r\n")
			}
			streamBytes = streamBody
		}
		doc.objects[ref] = &rawObjectSpan{body: body, stream: streamBytes}
	}

	if m := trailerRootRe.FindSubmatch(data); m != nil {
		num, _ := strconv.Atoi(string(m[1]))
		gen, _ := strconv.Atoi(string(m[2]))
		doc.RootRef = Ref{Num: num, Gen: gen}
	} else {
		for ref := range doc.objects {
			obj := doc.Resolve(ref)
			if obj != nil && obj.Get("Type") != nil && obj.Get("Type").Kind == ObjName && obj.Get("Type").Name == "Catalog" {
				doc.RootRef = ref
				break
			}
		}
	}

	doc.Root = doc.Resolve(doc.RootRef)
	return doc, nil
}

// Resolve dereferences ref through the identity-preserving cache, parsing
// the object's body lazily on first access. It returns nil for unknown refs
// and tolerates cycles by inserting a placeholder before recursing.
func (d *Document) Resolve(ref Ref) *Object {
	if cached, ok := d.cache[ref]; ok {
		return cached
	}
	span, ok := d.objects[ref]
	if !ok {
		return nil
	}
	placeholder := &Object{Kind: ObjNull}
	d.cache[ref] = placeholder
	obj := d.parseValue(span.body)
	if span.stream != nil {
		streamObj := &Object{Kind: ObjStream, Dict: obj.Dict, Stream: span.stream}
		*placeholder = *streamObj
	} else if obj != nil {
		*placeholder = *obj
	}
	return placeholder
}

// Deref follows obj if it is an indirect reference, otherwise returns it
// unchanged. Safe to call on nil.
func (d *Document) Deref(obj *Object) *Object {
	if obj == nil {
		return nil
	}
	if obj.Kind == ObjRef {
		return d.Resolve(obj.Ref)
	}
	return obj
}

// parseValue parses one PDF value starting at the head of body using a
// small recursive-descent parser over the lexer's token stream.
func (d *Document) parseValue(body []byte) *Object {
	l := newLexer(body)
	return parseFrom(l)
}

func parseFrom(l *lexer) *Object {
	t := l.next()
	return parseToken(l, t)
}

func parseToken(l *lexer, t token) *Object {
	switch t.kind {
	case tokEOF:
		return &Object{Kind: ObjNull}
	case tokName:
		return &Object{Kind: ObjName, Name: string(bytes.TrimPrefix(t.text, []byte("/")))}
	case tokString:
		return &Object{Kind: ObjString, Str: t.text}
	case tokDictOpen:
		return parseDict(l)
	case tokArrayOpen:
		return parseArray(l)
	case tokNumber:
		return maybeRefOrNumber(l, t)
	case tokKeyword:
		switch string(t.text) {
		case "true":
			return &Object{Kind: ObjBool, Bool: true}
		case "false":
			return &Object{Kind: ObjBool, Bool: false}
		case "null":
			return &Object{Kind: ObjNull}
		default:
			return &Object{Kind: ObjOther}
		}
	default:
		return &Object{Kind: ObjOther}
	}
}

// maybeRefOrNumber implements the "N G R" lookahead: a bare number is only
// a reference if followed by another integer and the literal "R".
func maybeRefOrNumber(l *lexer, first token) *Object {
	save := l.pos
	second := l.next()
	if second.kind == tokNumber {
		saveAfterSecond := l.pos
		third := l.next()
		if third.kind == tokKeyword && string(third.text) == "R" {
			num, _ := strconv.Atoi(string(first.text))
			gen, _ := strconv.Atoi(string(second.text))
			return &Object{Kind: ObjRef, Ref: Ref{Num: num, Gen: gen}}
		}
		l.pos = saveAfterSecond
	}
	l.pos = save
	num, _ := strconv.ParseFloat(string(first.text), 64)
	return &Object{Kind: ObjNumber, Num: num}
}

func parseDict(l *lexer) *Object {
	dict := map[string]*Object{}
	for {
		t := l.next()
		if t.kind == tokDictClose || t.kind == tokEOF {
			break
		}
		if t.kind != tokName {
			continue // lenient: skip unexpected tokens until a key or close
		}
		key := string(bytes.TrimPrefix(t.text, []byte("/")))
		val := parseFrom(l)
		dict[key] = val
	}
	return &Object{Kind: ObjDict, Dict: dict}
}

func parseArray(l *lexer) *Object {
	var arr []*Object
	for {
		t := l.next()
		if t.kind == tokArrayClose || t.kind == tokEOF {
			break
		}
		arr = append(arr, parseToken(l, t))
	}
	return &Object{Kind: ObjArray, Array: arr}
}

// AllRefs returns every object reference known to the document, sorted by
// (Num, Gen) for deterministic iteration.
func (d *Document) AllRefs() []Ref {
	refs := make([]Ref, 0, len(d.objects))
	for ref := range d.objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}
