package pdfsan

import (
	"fmt"
	"sort"

	"github.com/sanguard/sanguard/internal/types"
)

// scanner walks the catalog and pages, dereferencing indirect objects and
// recording a warning for every risky construct it observes (§4.4). It
// tracks visited refs so cyclic object graphs (pages<->catalog<->annots)
// terminate.
type scanner struct {
	doc     *Document
	visited map[Ref]bool
	seen    map[string]bool // dedup key: code+"\x00"+message
	found   []types.WarningItem
}

// Scan walks doc and returns the deduplicated, sorted risk warnings for it.
// It never returns an error itself: any panic-worthy malformation is caught
// and reported as pdf_scan_failed so the outer sanitize can still proceed.
func Scan(doc *Document) (warnings []types.WarningItem) {
	s := &scanner{doc: doc, visited: map[Ref]bool{}, seen: map[string]bool{}}
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.add(types.WarnPDFScanFailed, fmt.Sprintf("pdf scan failed: %v", r))
			}
		}()
		s.scanCatalog(doc.Root)
	}()
	return s.sorted()
}

func (s *scanner) add(code, message string) {
	key := code + "\x00" + message
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.found = append(s.found, types.WarningItem{Code: code, Message: message})
}

func (s *scanner) sorted() []types.WarningItem {
	out := append([]types.WarningItem(nil), s.found...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Message < out[j].Message
	})
	return out
}

func (s *scanner) scanCatalog(catalog *Object) {
	if catalog == nil {
		return
	}
	if catalog.Get("OpenAction") != nil {
		s.add(types.WarnPDFRiskOpenAction, "catalog has /OpenAction")
	}
	if catalog.Get("AA") != nil {
		s.add(types.WarnPDFRiskAdditionalActions, "catalog has /AA")
	}
	if af := catalog.Get("AcroForm"); af != nil {
		s.add(types.WarnPDFRiskForms, "catalog has /AcroForm")
		form := s.doc.Deref(af)
		if form != nil && form.Get("XFA") != nil {
			s.add(types.WarnPDFRiskXFAForms, "acroform has /XFA")
		}
	}
	if names := s.doc.Deref(catalog.Get("Names")); names != nil {
		if names.Get("JavaScript") != nil {
			s.add(types.WarnPDFRiskJavaScriptTree, "names tree has /JavaScript")
		}
		if names.Get("EmbeddedFiles") != nil {
			s.add(types.WarnPDFRiskEmbeddedFiles, "names tree has /EmbeddedFiles")
		}
	}
	if oa := catalog.Get("OpenAction"); oa != nil {
		s.scanAction(s.doc.Deref(oa))
	}
	if aa := s.doc.Deref(catalog.Get("AA")); aa != nil {
		for _, key := range sortedKeys(aa.Dict) {
			s.scanAction(s.doc.Deref(aa.Dict[key]))
		}
	}

	pages := s.doc.Deref(catalog.Get("Pages"))
	s.scanPageTree(pages)
}

func (s *scanner) scanPageTree(node *Object) {
	if node == nil {
		return
	}
	if kids := s.doc.Deref(node.Get("Kids")); kids != nil && kids.Kind == ObjArray {
		for _, kidRef := range kids.Array {
			kid := s.doc.Deref(kidRef)
			if kid == nil {
				continue
			}
			if kid.Get("Kids") != nil {
				if kidRef.Kind == ObjRef {
					if s.visited[kidRef.Ref] {
						continue
					}
					s.visited[kidRef.Ref] = true
				}
				s.scanPageTree(kid)
			} else {
				s.scanPage(kidRef, kid)
			}
		}
		return
	}
	// leaf passed directly (malformed tree, or single-page doc)
	if node.Get("Type") != nil {
		s.scanPage(nil, node)
	}
}

func (s *scanner) scanPage(ref *Object, page *Object) {
	if page == nil {
		return
	}
	var key Ref
	if ref != nil && ref.Kind == ObjRef {
		key = ref.Ref
	}
	if key != (Ref{}) {
		if s.visited[key] {
			return
		}
		s.visited[key] = true
	}

	if page.Get("AA") != nil {
		s.add(types.WarnPDFRiskPageAdditionalActions, "page has /AA")
	}
	if annots := s.doc.Deref(page.Get("Annots")); annots != nil && annots.Kind == ObjArray {
		for _, annotRef := range annots.Array {
			s.scanAnnotation(s.doc.Deref(annotRef))
		}
	}
}

func (s *scanner) scanAnnotation(annot *Object) {
	if annot == nil {
		return
	}
	if sub := annot.Get("Subtype"); sub != nil && sub.Kind == ObjName && sub.Name == "FileAttachment" {
		s.add(types.WarnPDFRiskFileAttachmentAnnotation, "annotation subtype /FileAttachment")
	}
	if annot.Get("AA") != nil {
		s.add(types.WarnPDFRiskAnnotationAdditionalActions, "annotation has /AA")
	}
	if a := s.doc.Deref(annot.Get("A")); a != nil {
		s.scanAction(a)
	}
}

func (s *scanner) scanAction(action *Object) {
	if action == nil {
		return
	}
	if sub := action.Get("S"); sub != nil && sub.Kind == ObjName {
		s.add(types.WarnPDFRiskActionSubtype, fmt.Sprintf("/%s", sub.Name))
	} else {
		s.add(types.WarnPDFRiskActionNoSubtype, "action has no /S")
	}
	if next := action.Get("Next"); next != nil {
		s.add(types.WarnPDFRiskActionNextChain, "action has /Next")
		nextResolved := s.doc.Deref(next)
		if nextResolved != nil && nextResolved.Kind == ObjArray {
			for _, n := range nextResolved.Array {
				if n != nil && n.Kind == ObjRef {
					if s.visited[n.Ref] {
						continue
					}
					s.visited[n.Ref] = true
				}
				s.scanAction(s.doc.Deref(n))
			}
		} else if next.Kind != ObjRef || !s.visited[next.Ref] {
			if next.Kind == ObjRef {
				s.visited[next.Ref] = true
			}
			s.scanAction(nextResolved)
		}
	}
	if dest := action.Get("D"); dest != nil {
		d := s.doc.Deref(dest)
		if d != nil && d.Kind == ObjArray {
			s.add(types.WarnPDFRiskDestination, "action has array-form /D destination")
		}
	}
}

func sortedKeys(m map[string]*Object) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
