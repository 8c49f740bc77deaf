// Package testutil builds small fillable PDF fixtures for tests.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Field kinds understood by BuildForm
const (
	Text     = "text"
	Checkbox = "checkbox"
	Radio    = "radio"
)

// FieldSpec describes one terminal field. Name is the fully qualified name;
// every dotted prefix becomes a non-terminal parent field.
type FieldSpec struct {
	Name   string
	Kind   string   // Text (default), Checkbox or Radio
	States []string // on states; checkbox defaults to "1", radio needs one per widget
	Value  string
	Flags  int
	Page   int // 1-based, default 1
}

// FormSpec describes a whole fixture document
type FormSpec struct {
	Fields []FieldSpec
	XFA    bool
}

type fixture struct {
	objects []string
}

func (b *fixture) alloc() int {
	b.objects = append(b.objects, "")
	return len(b.objects)
}

func (b *fixture) set(num int, body string) {
	b.objects[num-1] = body
}

func ref(num int) string {
	return fmt.Sprintf("%d 0 R", num)
}

func refs(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = ref(n)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return "(" + r.Replace(s) + ")"
}

// BuildForm renders spec as a complete PDF with a classic xref table
func BuildForm(spec FormSpec) []byte {
	b := &fixture{}

	catalog := b.alloc()
	pagesNum := b.alloc()

	pageCount := 1
	for _, f := range spec.Fields {
		if f.Page > pageCount {
			pageCount = f.Page
		}
	}
	pages := make([]int, pageCount)
	for i := range pages {
		pages[i] = b.alloc()
	}
	acroForm := b.alloc()

	onStream := b.alloc()
	b.set(onStream, "<< /Type /XObject /Subtype /Form /BBox [0 0 10 10] /Length 3 >>\nstream\nq Q\nendstream")
	offStream := b.alloc()
	b.set(offStream, "<< /Type /XObject /Subtype /Form /BBox [0 0 10 10] /Length 3 >>\nstream\nq Q\nendstream")

	annots := make([][]int, pageCount)
	parents := make(map[string]int)
	kids := make(map[int][]int)
	var roots []int

	parentFor := func(segments []string) int {
		parent := 0
		for i := range segments {
			prefix := strings.Join(segments[:i+1], ".")
			num, ok := parents[prefix]
			if !ok {
				num = b.alloc()
				parents[prefix] = num
				if parent == 0 {
					roots = append(roots, num)
				} else {
					kids[parent] = append(kids[parent], num)
				}
				// body is written once all kids are known
				b.set(num, segments[i])
			}
			parent = num
		}
		return parent
	}

	for i, f := range spec.Fields {
		segments := strings.Split(f.Name, ".")
		parent := parentFor(segments[:len(segments)-1])
		partial := segments[len(segments)-1]

		page := f.Page
		if page == 0 {
			page = 1
		}
		pageRef := ref(pages[page-1])
		rect := fmt.Sprintf("[72 %d 272 %d]", 700-i*20, 716-i*20)

		var common strings.Builder
		fmt.Fprintf(&common, "/T %s", literal(partial))
		if parent != 0 {
			fmt.Fprintf(&common, " /Parent %s", ref(parent))
		}
		if f.Flags != 0 {
			fmt.Fprintf(&common, " /Ff %d", f.Flags)
		}

		num := b.alloc()
		if parent == 0 {
			roots = append(roots, num)
		} else {
			kids[parent] = append(kids[parent], num)
		}

		switch f.Kind {
		case Checkbox:
			state := "1"
			if len(f.States) > 0 {
				state = f.States[0]
			}
			as := "/Off"
			if f.Value != "" {
				as = "/" + f.Value
				fmt.Fprintf(&common, " /V /%s", f.Value)
			}
			b.set(num, fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Btn %s /Rect %s /P %s /AP << /N << /%s %s /Off %s >> >> /AS %s >>",
				common.String(), rect, pageRef, state, ref(onStream), ref(offStream), as))
			annots[page-1] = append(annots[page-1], num)

		case Radio:
			var widgets []int
			for j, state := range f.States {
				w := b.alloc()
				wRect := fmt.Sprintf("[%d %d %d %d]", 72+j*40, 700-i*20, 84+j*40, 712-i*20)
				b.set(w, fmt.Sprintf("<< /Type /Annot /Subtype /Widget /Parent %s /Rect %s /P %s /AP << /N << /%s %s /Off %s >> >> /AS /Off >>",
					ref(num), wRect, pageRef, state, ref(onStream), ref(offStream)))
				widgets = append(widgets, w)
				annots[page-1] = append(annots[page-1], w)
			}
			flags := f.Flags | 1<<15
			body := strings.Replace(common.String(), fmt.Sprintf(" /Ff %d", f.Flags), "", 1)
			b.set(num, fmt.Sprintf("<< /FT /Btn %s /Ff %d /Kids %s >>", body, flags, refs(widgets)))

		default:
			value := ""
			if f.Value != "" {
				value = " /V " + literal(f.Value)
			}
			b.set(num, fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx %s%s /Rect %s /P %s /DA (/Helv 0 Tf 0 g) >>",
				common.String(), value, rect, pageRef))
			annots[page-1] = append(annots[page-1], num)
		}
	}

	// non-terminal parents, written after their kids are known
	prefixes := make([]string, 0, len(parents))
	for p := range parents {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		num := parents[prefix]
		partial := b.objects[num-1]
		body := fmt.Sprintf("<< /T %s /Kids %s", literal(partial), refs(kids[num]))
		if i := strings.LastIndex(prefix, "."); i >= 0 {
			body += " /Parent " + ref(parents[prefix[:i]])
		}
		b.set(num, body+" >>")
	}

	b.set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %s /AcroForm %s >>", ref(pagesNum), ref(acroForm)))
	b.set(pagesNum, fmt.Sprintf("<< /Type /Pages /Kids %s /Count %d >>", refs(pages), pageCount))
	for i, p := range pages {
		body := fmt.Sprintf("<< /Type /Page /Parent %s /MediaBox [0 0 612 792] /Resources << >>", ref(pagesNum))
		if len(annots[i]) > 0 {
			body += " /Annots " + refs(annots[i])
		}
		b.set(p, body+" >>")
	}

	acroBody := fmt.Sprintf("<< /Fields %s /DA (/Helv 0 Tf 0 g)", refs(roots))
	if spec.XFA {
		xfa := b.alloc()
		b.set(xfa, "<< /Length 5 >>\nstream\n<xdp>\nendstream")
		acroBody += " /XFA " + ref(xfa)
	}
	b.set(acroForm, acroBody+" >>")

	return b.render()
}

func (b *fixture) render() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")

	offsets := make([]int, len(b.objects))
	for i, body := range b.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objects)+1, xref)
	return buf.Bytes()
}

// WriteForm writes a fixture to dir/name and returns its path
func WriteForm(t testing.TB, dir, name string, spec FormSpec) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildForm(spec), 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
	return path
}
