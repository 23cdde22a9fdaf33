package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ledongthuc/pdf"

	"github.com/workwise/aikor/model"
)

// Letter size, used when neither the page nor its ancestors carry a MediaBox.
const (
	defaultPDFWidth  = 612.0
	defaultPDFHeight = 792.0
)

// PDFParser extracts text with exact glyph geometry. Block boundaries are
// reconstructed from glyph positions. Span colors come from the fill color
// operators (g, rg, k, sc, scn) of the content stream; when the stream
// cannot be replayed the color is left empty. Underline and strikethrough
// are drawn as separate paths in PDF and are never set.
type PDFParser struct {
	layout layout
}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*model.ParsedDocument, error) {
	src, err := readFile(path, model.TypePDF)
	if err != nil {
		return nil, &ParseError{Path: path, Format: "pdf", Err: err}
	}
	return p.parse(ctx, src)
}

func (p *PDFParser) ParseReader(ctx context.Context, r io.Reader, name string) (*model.ParsedDocument, error) {
	src, err := readStream(r, name, model.TypePDF)
	if err != nil {
		return nil, &ParseError{Path: name, Format: "pdf", Err: err}
	}
	return p.parse(ctx, src)
}

func (p *PDFParser) parse(ctx context.Context, src *source) (doc *model.ParsedDocument, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, &ParseError{Path: src.path, Format: "pdf", Err: fmt.Errorf("malformed PDF: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(src.data), int64(len(src.data)))
	if err != nil {
		return nil, &ParseError{Path: src.path, Format: "pdf", Err: err}
	}

	la := p.layout
	if la == (layout{}) {
		la = newLayout()
	}

	meta := src.meta
	readInfo(src.data, reader, &meta)

	total := reader.NumPage()
	pages := make([]model.DocumentPage, 0, total)
	counter := 0
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		pages = append(pages, p.parsePage(page, i, la, &counter))
	}
	meta.TotalPages = len(pages)

	slog.Debug("parser: pdf parsed", "file", meta.Filename, "pages", len(pages))
	return &model.ParsedDocument{Metadata: meta, Pages: pages}, nil
}

func (p *PDFParser) parsePage(page pdf.Page, number int, la layout, counter *int) model.DocumentPage {
	llx, lly, urx, ury := mediaBox(page.V)
	info := model.PageInfo{
		PageNumber: number,
		Width:      urx - llx,
		Height:     ury - lly,
		Rotation:   pageRotation(page.V),
	}
	if page.V.IsNull() {
		return model.DocumentPage{Info: info}
	}

	texts, ok := pageContent(page)
	if !ok {
		slog.Warn("parser: page content unreadable", "page", number)
		return model.DocumentPage{Info: info}
	}

	fills, ok := glyphFills(page, len(texts))
	if !ok {
		slog.Debug("parser: fill colors unavailable", "page", number)
		fills = nil
	}

	var blocks []model.TextBlock
	for _, lines := range la.blocks(la.lines(toGlyphs(texts, fills, llx, ury))) {
		*counter++
		boxes := make([]model.BBox, len(lines))
		for i, l := range lines {
			boxes[i] = l.BBox
		}
		box := model.UnionAll(boxes)
		typ, level := classifyBlock(lines)
		if band, ok := bandType(box, len(lines), info.Height); ok {
			typ, level = band, 0
		}
		blocks = append(blocks, model.TextBlock{
			ID:            fmt.Sprintf("blk_p%d_%d", number, *counter),
			Type:          typ,
			Lines:         lines,
			BBox:          box,
			PageNumber:    number,
			SemanticLevel: level,
		})
	}

	return model.DocumentPage{Info: info, Blocks: orderBlocks(blocks, info.Width)}
}

// pageContent isolates panics from the content stream interpreter, which
// treats operator arity errors as fatal.
func pageContent(page pdf.Page) (texts []pdf.Text, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			texts, ok = nil, false
		}
	}()
	return page.Content().Text, true
}

// inherited looks key up on the page dictionary and then on each ancestor
// in the page tree.
func inherited(v pdf.Value, key string) pdf.Value {
	for depth := 0; v.Kind() == pdf.Dict && depth < 32; depth++ {
		if x := v.Key(key); !x.IsNull() {
			return x
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func mediaBox(page pdf.Value) (llx, lly, urx, ury float64) {
	box := inherited(page, "MediaBox")
	if box.Kind() != pdf.Array || box.Len() < 4 {
		return 0, 0, defaultPDFWidth, defaultPDFHeight
	}
	llx, lly = box.Index(0).Float64(), box.Index(1).Float64()
	urx, ury = box.Index(2).Float64(), box.Index(3).Float64()
	if urx < llx {
		llx, urx = urx, llx
	}
	if ury < lly {
		lly, ury = ury, lly
	}
	if urx-llx <= 0 || ury-lly <= 0 {
		return 0, 0, defaultPDFWidth, defaultPDFHeight
	}
	return llx, lly, urx, ury
}

// pageRotation normalizes /Rotate to 0, 90, 180 or 270. Geometry is kept
// in the unrotated media box frame.
func pageRotation(page pdf.Value) int {
	r := inherited(page, "Rotate")
	if r.IsNull() {
		return 0
	}
	deg := int(r.Int64()) % 360
	if deg < 0 {
		deg += 360
	}
	return deg - deg%90
}
