// Package parsertest builds small but well-formed PDF and DOCX files for
// tests. Every PDF font uses WinAnsiEncoding with a fixed advance of 500
// units, so a glyph at size s is exactly s/2 points wide.
package parsertest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Font resource names available to PDF content streams.
const (
	Regular = "F1" // Times-Roman
	Bold    = "F2" // Times-Bold
	Sans    = "F3" // Helvetica
)

// Text is one string drawn at (X, Y) in PDF user space (bottom-left origin,
// Y is the baseline).
type Text struct {
	Font string
	Size float64
	X, Y float64
	S    string
	// Color is a "#rrggbb" fill color set with rg. Empty keeps the
	// current fill, black by default.
	Color string
}

func rgOperator(hex string) string {
	var r, g, b int
	fmt.Sscanf(strings.TrimPrefix(hex, "#"), "%02x%02x%02x", &r, &g, &b)
	return fmt.Sprintf("%g %g %g rg ", float64(r)/255, float64(g)/255, float64(b)/255)
}

// Page is one PDF page. A zero width or height means A4.
type Page struct {
	Width, Height float64
	Rotate        int
	Texts         []Text
}

// PDFInfo is written to the trailer's /Info dictionary.
type PDFInfo struct {
	Title  string
	Author string
}

func pdfString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return "(" + r.Replace(s) + ")"
}

// PDF renders pages into a complete file with a valid cross-reference table.
func PDF(info PDFInfo, pages ...Page) []byte {
	var objs []string
	add := func(body string) int {
		objs = append(objs, body)
		return len(objs)
	}

	widths := strings.TrimSpace(strings.Repeat("500 ", 95))
	font := func(base string) string {
		return fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", base, widths)
	}
	catalog := add("") // patched below
	pagesObj := add("")
	f1 := add(font("Times-Roman"))
	f2 := add(font("Times-Bold"))
	f3 := add(font("Helvetica"))
	resources := fmt.Sprintf("<< /Font << /F1 %d 0 R /F2 %d 0 R /F3 %d 0 R >> >>", f1, f2, f3)

	var kids []string
	for _, p := range pages {
		w, h := p.Width, p.Height
		if w == 0 || h == 0 {
			w, h = 595, 842
		}
		var cs strings.Builder
		for _, t := range p.Texts {
			if t.Color != "" {
				cs.WriteString(rgOperator(t.Color))
			}
			fmt.Fprintf(&cs, "BT /%s %g Tf %g %g Td %s Tj ET\n", t.Font, t.Size, t.X, t.Y, pdfString(t.S))
		}
		stream := cs.String()
		content := add(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream))
		rotate := ""
		if p.Rotate != 0 {
			rotate = fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		page := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g]%s /Resources %s /Contents %d 0 R >>",
			pagesObj, w, h, rotate, resources, content))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	objs[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objs[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	infoObj := 0
	if info != (PDFInfo{}) {
		infoObj = add(fmt.Sprintf("<< /Title %s /Author %s >>", pdfString(info.Title), pdfString(info.Author)))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	trailer := fmt.Sprintf("/Size %d /Root %d 0 R", len(objs)+1, catalog)
	if infoObj > 0 {
		trailer += fmt.Sprintf(" /Info %d 0 R", infoObj)
	}
	fmt.Fprintf(&buf, "trailer\n<< %s >>\nstartxref\n%d\n%%%%EOF\n", trailer, xref)
	return buf.Bytes()
}

// Run is a DOCX run. Size is in points; zero leaves w:sz out.
type Run struct {
	Text      string
	Font      string
	Size      float64
	Bold      bool
	Italic    bool
	Underline bool
	Color     string
	PageBreak bool
}

// Para is a DOCX paragraph with an optional style id.
type Para struct {
	Style string
	Runs  []Run
}

// Table is a grid of cell texts.
type Table [][]string

// DOCXInfo is written to docProps/core.xml.
type DOCXInfo struct {
	Title   string
	Creator string
}

const stylesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Times New Roman" w:hAnsi="Times New Roman"/><w:sz w:val="22"/></w:rPr></w:rPrDefault></w:docDefaults>
  <w:style w:type="paragraph" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
  <w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:rPr><w:sz w:val="56"/></w:rPr></w:style>
  <w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>
  <w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Heading1"/><w:rPr><w:sz w:val="28"/></w:rPr></w:style>
  <w:style w:type="paragraph" w:styleId="ListBullet"><w:name w:val="List Bullet"/><w:basedOn w:val="Normal"/></w:style>
</w:styles>`

// DOCX renders body items (Para or Table values) into a .docx archive.
func DOCX(info DOCXInfo, items ...any) []byte {
	var body strings.Builder
	for _, it := range items {
		switch v := it.(type) {
		case Para:
			writePara(&body, v)
		case Table:
			body.WriteString("<w:tbl>")
			for _, row := range v {
				body.WriteString("<w:tr>")
				for _, cell := range row {
					body.WriteString("<w:tc>")
					writePara(&body, Para{Runs: []Run{{Text: cell}}})
					body.WriteString("</w:tc>")
				}
				body.WriteString("</w:tr>")
			}
			body.WriteString("</w:tbl>")
		}
	}

	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() +
		`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1134" w:left="1701" w:bottom="1134" w:right="850"/></w:sectPr></w:body></w:document>`

	core := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/"><dc:title>%s</dc:title><dc:creator>%s</dc:creator><dcterms:created>2024-03-01T10:00:00Z</dcterms:created></cp:coreProperties>`,
		html.EscapeString(info.Title), html.EscapeString(info.Creator))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range []struct{ name, data string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		{"word/document.xml", doc},
		{"word/styles.xml", stylesXML},
		{"docProps/core.xml", core},
	} {
		w, err := zw.Create(f.name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(f.data)); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func writePara(b *strings.Builder, p Para) {
	b.WriteString("<w:p>")
	if p.Style != "" {
		fmt.Fprintf(b, `<w:pPr><w:pStyle w:val="%s"/></w:pPr>`, p.Style)
	}
	for _, r := range p.Runs {
		b.WriteString("<w:r>")
		var pr strings.Builder
		if r.Font != "" {
			fmt.Fprintf(&pr, `<w:rFonts w:ascii="%s" w:hAnsi="%s"/>`, r.Font, r.Font)
		}
		if r.Bold {
			pr.WriteString("<w:b/>")
		}
		if r.Italic {
			pr.WriteString("<w:i/>")
		}
		if r.Underline {
			pr.WriteString(`<w:u w:val="single"/>`)
		}
		if r.Color != "" {
			fmt.Fprintf(&pr, `<w:color w:val="%s"/>`, r.Color)
		}
		if r.Size > 0 {
			fmt.Fprintf(&pr, `<w:sz w:val="%d"/>`, int(r.Size*2))
		}
		if pr.Len() > 0 {
			b.WriteString("<w:rPr>" + pr.String() + "</w:rPr>")
		}
		if r.Text != "" {
			fmt.Fprintf(b, `<w:t xml:space="preserve">%s</w:t>`, html.EscapeString(r.Text))
		}
		if r.PageBreak {
			b.WriteString(`<w:br w:type="page"/>`)
		}
		b.WriteString("</w:r>")
	}
	b.WriteString("</w:p>")
}

// WriteFile stores data under t.TempDir() and returns the path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}
