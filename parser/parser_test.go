package parser

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/workwise/aikor/model"
	"github.com/workwise/aikor/parser/parsertest"
)

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func TestRegistryBuiltInParsers(t *testing.T) {
	reg := NewRegistry()

	formats := []struct {
		format string
		want   string
	}{
		{"pdf", "pdf"},
		{".PDF", "pdf"},
		{"docx", "docx"},
		{" .docx ", "docx"},
	}
	for _, tt := range formats {
		t.Run(tt.format, func(t *testing.T) {
			p, err := reg.Get(tt.format)
			if err != nil {
				t.Fatalf("Get(%q) returned error: %v", tt.format, err)
			}
			if got := p.SupportedFormats(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("SupportedFormats() = %v, want [%s]", got, tt.want)
			}
		})
	}

	if got := reg.SupportedFormats(); !reflect.DeepEqual(got, []string{".docx", ".pdf"}) {
		t.Errorf("SupportedFormats() = %v", got)
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()

	for _, f := range []string{"txt", "xlsx", "odt", ""} {
		t.Run("format_"+f, func(t *testing.T) {
			p, err := reg.Get(f)
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("Get(%q) error = %v, want ErrUnsupportedFormat", f, err)
			}
			if p != nil {
				t.Errorf("Get(%q) returned a parser", f)
			}
		})
	}

	// Rejected before any I/O: the file does not exist.
	if _, err := reg.Parse(context.Background(), "/nonexistent/notes.txt"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Parse(.txt) error = %v", err)
	}
	if reg.Supports("a.rtf") || !reg.Supports("A.PDF") {
		t.Error("Supports mismatch")
	}
}

func TestRegistryCustomParser(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get("custom"); err == nil {
		t.Fatal("expected error for unregistered format")
	}
	reg.Register("custom", &PDFParser{})
	if _, err := reg.Get("custom"); err != nil {
		t.Fatalf("Get after Register: %v", err)
	}
}

func TestRegistryParseReaderNeedsHint(t *testing.T) {
	reg := NewRegistry()
	data := parsertest.PDF(parsertest.PDFInfo{}, parsertest.Page{})
	if _, err := reg.ParseReader(context.Background(), bytes.NewReader(data), "", "x"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("missing hint error = %v", err)
	}
	doc, err := reg.ParseReader(context.Background(), bytes.NewReader(data), "pdf", "")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.Filename != "unknown.pdf" {
		t.Errorf("filename = %q, want unknown.pdf", doc.Metadata.Filename)
	}
}

func TestParseErrorForCorruptFile(t *testing.T) {
	path := parsertest.WriteFile(t, "broken.pdf", []byte("this is not a pdf at all, just some bytes padded out to be long enough............................................"))
	_, err := NewRegistry().Parse(context.Background(), path)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if pe.Format != "pdf" || pe.Path != path {
		t.Errorf("ParseError = %+v", pe)
	}
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func line(text string, size float64, bold bool) model.TextLine {
	flags := 0
	if bold {
		flags = model.FlagBold
	}
	return model.TextLine{Spans: []model.TextSpan{{Text: text, Style: model.StyleFromFlags("Times", size, 0, flags)}}}
}

func TestClassifyBlock(t *testing.T) {
	tests := []struct {
		name      string
		line      model.TextLine
		wantType  model.BlockType
		wantLevel int
	}{
		{"large", line("Title", 26, false), model.BlockHeading, 1},
		{"medium", line("Chapter", 20, false), model.BlockHeading, 2},
		{"small large", line("Section", 16, false), model.BlockHeading, 3},
		{"bold body size", line("Bold lead", 12, true), model.BlockHeading, 4},
		{"exactly 14 not bold", line("Body", 14, false), model.BlockParagraph, 0},
		{"bullet", line("• item", 12, false), model.BlockListItem, 0},
		{"dash", line("- item", 12, false), model.BlockListItem, 0},
		{"numbered dot", line("1. first", 12, false), model.BlockListItem, 0},
		{"numbered paren", line("2) second", 12, false), model.BlockListItem, 0},
		{"number without space", line("3.5 metres", 12, false), model.BlockParagraph, 0},
		{"plain", line("Just text.", 12, false), model.BlockParagraph, 0},
		{"figure caption", line("Рисунок 1 – Схема установки", 12, false), model.BlockCaption, 0},
		{"table caption", line("Table 2 Results", 12, false), model.BlockCaption, 0},
		{"abbreviated caption", line("Рис. 3", 12, false), model.BlockCaption, 0},
		{"caption word without number", line("Table of contents", 12, false), model.BlockParagraph, 0},
		{"large caption word", line("Figure 1", 20, false), model.BlockHeading, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, level := classifyBlock([]model.TextLine{tt.line})
			if typ != tt.wantType || level != tt.wantLevel {
				t.Errorf("classifyBlock = (%s, %d), want (%s, %d)", typ, level, tt.wantType, tt.wantLevel)
			}
		})
	}
}

func TestBandType(t *testing.T) {
	tests := []struct {
		name  string
		box   model.BBox
		lines int
		want  model.BlockType
		ok    bool
	}{
		{"top band", model.NewBBox(280, 20, 320, 32), 1, model.BlockHeader, true},
		{"bottom band", model.NewBBox(290, 805, 300, 817), 1, model.BlockFooter, true},
		{"body", model.NewBBox(85, 100, 500, 114), 1, "", false},
		{"straddles band", model.NewBBox(85, 30, 500, 60), 1, "", false},
		{"too many lines", model.NewBBox(290, 805, 300, 840), 3, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bandType(tt.box, tt.lines, 842)
			if got != tt.want || ok != tt.ok {
				t.Errorf("bandType = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func block(id string, x0, y0, x1, y1 float64) model.TextBlock {
	return model.TextBlock{ID: id, BBox: model.NewBBox(x0, y0, x1, y1), Lines: []model.TextLine{line(id, 12, false)}}
}

func ids(blocks []model.TextBlock) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID
	}
	return out
}

func TestOrderBlocksTwoColumns(t *testing.T) {
	in := []model.TextBlock{
		block("R1", 320, 100, 540, 200),
		block("L2", 50, 300, 270, 400),
		block("L1", 50, 100, 270, 200),
		block("R2", 320, 300, 540, 400),
	}
	got := orderBlocks(in, 595)
	if want := []string{"L1", "L2", "R1", "R2"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	assertDenseOrder(t, got)
}

func TestOrderBlocksSingleColumn(t *testing.T) {
	// Gap between the halves is under 20pt, so this is one column.
	in := []model.TextBlock{
		block("B", 310, 100, 540, 120),
		block("C", 50, 200, 300, 220),
		block("A", 50, 100, 295, 120),
	}
	got := orderBlocks(in, 595)
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	assertDenseOrder(t, got)
}

func TestOrderBlocksDropsEmpty(t *testing.T) {
	empty := model.TextBlock{ID: "E", BBox: model.NewBBox(0, 0, 10, 10),
		Lines: []model.TextLine{line("   ", 12, false)}}
	got := orderBlocks([]model.TextBlock{block("A", 50, 100, 200, 120), empty}, 595)
	if len(got) != 1 || got[0].ID != "A" {
		t.Errorf("got %v", ids(got))
	}
}

func assertDenseOrder(t *testing.T, blocks []model.TextBlock) {
	t.Helper()
	for i, b := range blocks {
		if b.ReadingOrder != i {
			t.Errorf("block %s reading order = %d, want %d", b.ID, b.ReadingOrder, i)
		}
	}
}

// ---------------------------------------------------------------------------
// PDF
// ---------------------------------------------------------------------------

func parsePDF(t *testing.T, info parsertest.PDFInfo, pages ...parsertest.Page) *model.ParsedDocument {
	t.Helper()
	path := parsertest.WriteFile(t, "doc.pdf", parsertest.PDF(info, pages...))
	doc, err := NewRegistry().Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestPDFSingleParagraph(t *testing.T) {
	doc := parsePDF(t, parsertest.PDFInfo{Title: "Report", Author: "QA"}, parsertest.Page{Texts: []parsertest.Text{
		{Font: parsertest.Regular, Size: 12, X: 100, Y: 700, S: "The quick brown fox"},
		{Font: parsertest.Regular, Size: 12, X: 100, Y: 686, S: "jumps over the dog."},
	}})

	if doc.Metadata.Type != model.TypePDF || doc.Metadata.TotalPages != 1 {
		t.Fatalf("metadata = %+v", doc.Metadata)
	}
	if doc.Metadata.Title != "Report" || doc.Metadata.Author != "QA" {
		t.Errorf("info = %q / %q", doc.Metadata.Title, doc.Metadata.Author)
	}
	if len(doc.Metadata.ContentHash) != 16 || doc.Metadata.FileSize == 0 {
		t.Errorf("hash %q size %d", doc.Metadata.ContentHash, doc.Metadata.FileSize)
	}

	page := doc.Pages[0]
	if page.Info.Width != 595 || page.Info.Height != 842 {
		t.Errorf("page size = %vx%v", page.Info.Width, page.Info.Height)
	}
	if len(page.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1: %+v", len(page.Blocks), page.Blocks)
	}
	b := page.Blocks[0]
	if b.Type != model.BlockParagraph || b.ID != "blk_p1_1" || b.ReadingOrder != 0 {
		t.Errorf("block = %s %s %d", b.ID, b.Type, b.ReadingOrder)
	}
	if b.Text() != "The quick brown fox\njumps over the dog." {
		t.Errorf("text = %q", b.Text())
	}

	// 19 glyphs at 6pt each, baseline 842-700 = 142.
	first := b.Lines[0]
	if !near(first.BBox.X0, 100) || !near(first.BBox.X1, 214) {
		t.Errorf("line x = %v..%v", first.BBox.X0, first.BBox.X1)
	}
	if !near(first.BBox.Y0, 142-9.6) || !near(first.BBox.Y1, 142+2.4) {
		t.Errorf("line y = %v..%v", first.BBox.Y0, first.BBox.Y1)
	}
	if first.Baseline == nil || !near(*first.Baseline, 142) {
		t.Errorf("baseline = %v", first.Baseline)
	}

	style, _ := first.DominantStyle()
	if style.FontName != "Times-Roman" || style.FontSize != 12 || style.Color != "#000000" || style.IsBold() {
		t.Errorf("style = %+v", style)
	}
	if _, ok := b.AvgLineSpacing(); !ok {
		t.Error("two-line block should have spacing")
	}
}

func TestPDFFillColors(t *testing.T) {
	doc := parsePDF(t, parsertest.PDFInfo{}, parsertest.Page{Texts: []parsertest.Text{
		{Font: parsertest.Regular, Size: 12, X: 100, Y: 700, S: "Plain start"},
		{Font: parsertest.Regular, Size: 12, X: 172, Y: 700, S: "red words", Color: "#FF0000"},
		{Font: parsertest.Regular, Size: 12, X: 100, Y: 686, S: "back to black", Color: "#000000"},
	}})

	blocks := doc.Pages[0].Blocks
	if len(blocks) != 1 || len(blocks[0].Lines) != 2 {
		t.Fatalf("blocks = %+v", blocks)
	}
	first := blocks[0].Lines[0].Spans
	if len(first) != 2 {
		t.Fatalf("first line spans = %+v", first)
	}
	if first[0].Style.Color != "#000000" || first[1].Style.Color != "#ff0000" {
		t.Errorf("colors = %s, %s", first[0].Style.Color, first[1].Style.Color)
	}
	if first[1].Text != "red words" {
		t.Errorf("red span = %q", first[1].Text)
	}
	if c := blocks[0].Lines[1].Spans[0].Style.Color; c != "#000000" {
		t.Errorf("second line color = %s", c)
	}
}

func TestPackFill(t *testing.T) {
	tests := []struct {
		name  string
		comps []float64
		want  int
		ok    bool
	}{
		{"gray black", []float64{0}, 0x000000, true},
		{"gray white", []float64{1}, 0xffffff, true},
		{"rgb red", []float64{1, 0, 0}, 0xff0000, true},
		{"rgb clamped", []float64{2, -1, 0.5}, 0xff0080, true},
		{"cmyk cyan", []float64{1, 0, 0, 0}, 0x00ffff, true},
		{"cmyk black", []float64{0, 0, 0, 1}, 0x000000, true},
		{"two operands", []float64{0.5, 0.5}, 0, false},
		{"none", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := packFill(tt.comps)
			if got != tt.want || ok != tt.ok {
				t.Errorf("packFill(%v) = (%06x, %v), want (%06x, %v)", tt.comps, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPDFHeadingAndList(t *testing.T) {
	doc := parsePDF(t, parsertest.PDFInfo{}, parsertest.Page{Texts: []parsertest.Text{
		{Font: parsertest.Bold, Size: 16, X: 85, Y: 760, S: "1 Introduction"},
		{Font: parsertest.Regular, Size: 14, X: 85, Y: 700, S: "Body text of the section."},
		{Font: parsertest.Regular, Size: 14, X: 85, Y: 640, S: "- first point"},
	}})

	blocks := doc.Pages[0].Blocks
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d: %v", len(blocks), ids(blocks))
	}
	if blocks[0].Type != model.BlockHeading || blocks[0].SemanticLevel != 3 {
		t.Errorf("heading = %s level %d", blocks[0].Type, blocks[0].SemanticLevel)
	}
	if blocks[1].Type != model.BlockParagraph {
		t.Errorf("second = %s", blocks[1].Type)
	}
	if blocks[2].Type != model.BlockListItem {
		t.Errorf("third = %s", blocks[2].Type)
	}
	if s, _ := blocks[0].FirstLineStyle(); !s.IsBold() {
		t.Error("heading should be bold")
	}
}

func TestPDFHeaderFooterBands(t *testing.T) {
	doc := parsePDF(t, parsertest.PDFInfo{}, parsertest.Page{Texts: []parsertest.Text{
		{Font: parsertest.Regular, Size: 10, X: 250, Y: 820, S: "Running title"},
		{Font: parsertest.Regular, Size: 14, X: 85, Y: 700, S: "Body text of the page."},
		{Font: parsertest.Regular, Size: 12, X: 295, Y: 30, S: "7"},
	}})

	blocks := doc.Pages[0].Blocks
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d: %v", len(blocks), ids(blocks))
	}
	got := []model.BlockType{blocks[0].Type, blocks[1].Type, blocks[2].Type}
	want := []model.BlockType{model.BlockHeader, model.BlockParagraph, model.BlockFooter}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("types = %v, want %v", got, want)
	}
}

func TestPDFTwoColumnReadingOrder(t *testing.T) {
	doc := parsePDF(t, parsertest.PDFInfo{}, parsertest.Page{Texts: []parsertest.Text{
		{Font: parsertest.Regular, Size: 10, X: 320, Y: 700, S: "right top"},
		{Font: parsertest.Regular, Size: 10, X: 50, Y: 500, S: "left bottom"},
		{Font: parsertest.Regular, Size: 10, X: 50, Y: 700, S: "left top"},
		{Font: parsertest.Regular, Size: 10, X: 320, Y: 500, S: "right bottom"},
	}})

	var got []string
	for _, b := range doc.Pages[0].Blocks {
		got = append(got, b.Text())
	}
	want := []string{"left top", "left bottom", "right top", "right bottom"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	assertDenseOrder(t, doc.Pages[0].Blocks)
}

func TestPDFMultiPageIDsAndGeometry(t *testing.T) {
	doc := parsePDF(t, parsertest.PDFInfo{},
		parsertest.Page{Texts: []parsertest.Text{{Font: parsertest.Sans, Size: 12, X: 72, Y: 700, S: "page one"}}},
		parsertest.Page{Width: 842, Height: 595, Rotate: 90, Texts: []parsertest.Text{
			{Font: parsertest.Sans, Size: 12, X: 72, Y: 500, S: "page two"},
			{Font: parsertest.Sans, Size: 12, X: 72, Y: 300, S: "more"},
		}},
		parsertest.Page{},
	)
	if len(doc.Pages) != 3 || doc.Metadata.TotalPages != 3 {
		t.Fatalf("pages = %d", len(doc.Pages))
	}
	p2 := doc.Pages[1]
	if p2.Info.Width != 842 || p2.Info.Height != 595 || p2.Info.Rotation != 90 {
		t.Errorf("page 2 info = %+v", p2.Info)
	}
	if got := ids(p2.Blocks); !reflect.DeepEqual(got, []string{"blk_p2_2", "blk_p2_3"}) {
		t.Errorf("page 2 ids = %v", got)
	}
	if len(doc.Pages[2].Blocks) != 0 {
		t.Errorf("empty page has %d blocks", len(doc.Pages[2].Blocks))
	}
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			for _, l := range b.Lines {
				if !b.BBox.Contains(l.BBox) {
					t.Errorf("block %s does not contain its line", b.ID)
				}
			}
		}
	}
}

func TestPDFCancelled(t *testing.T) {
	path := parsertest.WriteFile(t, "doc.pdf", parsertest.PDF(parsertest.PDFInfo{}, parsertest.Page{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRegistry().Parse(ctx, path); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// DOCX
// ---------------------------------------------------------------------------

func parseDOCX(t *testing.T, info parsertest.DOCXInfo, items ...any) *model.ParsedDocument {
	t.Helper()
	path := parsertest.WriteFile(t, "doc.docx", parsertest.DOCX(info, items...))
	doc, err := NewRegistry().Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestDOCXStylesAndTypes(t *testing.T) {
	doc := parseDOCX(t, parsertest.DOCXInfo{Title: "Thesis", Creator: "Student"},
		parsertest.Para{Style: "Heading2", Runs: []parsertest.Run{{Text: "Methods"}}},
		parsertest.Para{Runs: []parsertest.Run{
			{Text: "Plain ", Font: "Arial", Size: 14},
			{Text: "red", Font: "Arial", Size: 14, Color: "FF0000", Bold: true},
		}},
		parsertest.Para{Style: "ListBullet", Runs: []parsertest.Run{{Text: "item", Color: "auto"}}},
		parsertest.Para{Runs: []parsertest.Run{{Text: "   "}}},
		parsertest.Para{Style: "Title", Runs: []parsertest.Run{{Text: "Appendix"}}},
	)

	if doc.Metadata.Type != model.TypeDOCX || doc.Metadata.Title != "Thesis" || doc.Metadata.Author != "Student" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if doc.Metadata.CreationDate != "2024-03-01T10:00:00Z" {
		t.Errorf("created = %q", doc.Metadata.CreationDate)
	}

	blocks := doc.Pages[0].Blocks
	if len(blocks) != 4 {
		t.Fatalf("blocks = %d, want 4 (blank paragraph skipped)", len(blocks))
	}
	if blocks[0].Type != model.BlockHeading || blocks[0].SemanticLevel != 2 {
		t.Errorf("heading = %s/%d", blocks[0].Type, blocks[0].SemanticLevel)
	}
	hs, _ := blocks[0].FirstLineStyle()
	if hs.FontSize != 14 || !hs.IsBold() || hs.FontName != "Times New Roman" {
		t.Errorf("inherited heading style = %+v", hs)
	}

	spans := blocks[1].Spans()
	if len(spans) != 2 || spans[1].Style.Color != "#ff0000" || !spans[1].Style.IsBold() {
		t.Fatalf("spans = %+v", spans)
	}
	// Run width = chars × size × 0.5, laid out left to right.
	if !near(spans[0].BBox.X0, 72) || !near(spans[0].BBox.Width(), 6*14*0.5) || !near(spans[1].BBox.X0, spans[0].BBox.X1) {
		t.Errorf("span boxes = %v, %v", spans[0].BBox, spans[1].BBox)
	}
	if blocks[2].Type != model.BlockListItem || blocks[2].Spans()[0].Style.Color != "#000000" {
		t.Errorf("list = %s %s", blocks[2].Type, blocks[2].Spans()[0].Style.Color)
	}
	if blocks[3].Type != model.BlockHeading || blocks[3].SemanticLevel != 1 {
		t.Errorf("title = %s/%d", blocks[3].Type, blocks[3].SemanticLevel)
	}

	// Default geometry: A4, 72pt margins, content width 451.
	if b := blocks[1].BBox; !near(b.X0, 72) || !near(b.X1, 523) {
		t.Errorf("block x = %v..%v", b.X0, b.X1)
	}
	assertDenseOrder(t, blocks)
}

func TestDOCXForcedPagination(t *testing.T) {
	// 5000 characters of 12pt text in one paragraph, no explicit breaks.
	text := strings.Repeat("abcdefghij", 500)
	doc := parseDOCX(t, parsertest.DOCXInfo{}, parsertest.Para{Runs: []parsertest.Run{{Text: text, Size: 12}}})

	if len(doc.Pages) < 2 {
		t.Fatalf("pages = %d, want at least 2", len(doc.Pages))
	}
	total := 0
	for i, p := range doc.Pages {
		if p.Info.PageNumber != i+1 {
			t.Errorf("page %d numbered %d", i+1, p.Info.PageNumber)
		}
		var prev *model.TextBlock
		for j := range p.Blocks {
			b := &p.Blocks[j]
			if !b.BBox.Valid() || b.BBox.Y0 < 72 || b.BBox.Y1 > 842-72 {
				t.Errorf("page %d block %s out of range: %v", p.Info.PageNumber, b.ID, b.BBox)
			}
			if prev != nil && b.BBox.Y0 < prev.BBox.Y1 {
				t.Errorf("page %d blocks overlap", p.Info.PageNumber)
			}
			prev = b
			total += len([]rune(b.Text()))
		}
	}
	if total != 5000 {
		t.Errorf("characters across pages = %d, want 5000", total)
	}
}

func TestDOCXManyParagraphsPaginate(t *testing.T) {
	var items []any
	for i := 0; i < 60; i++ {
		items = append(items, parsertest.Para{Runs: []parsertest.Run{{Text: strings.Repeat("x", 100), Size: 12}}})
	}
	doc := parseDOCX(t, parsertest.DOCXInfo{}, items...)
	if len(doc.Pages) < 2 {
		t.Fatalf("pages = %d", len(doc.Pages))
	}
	for _, p := range doc.Pages {
		assertDenseOrder(t, p.Blocks)
		for _, b := range p.Blocks {
			if b.PageNumber != p.Info.PageNumber {
				t.Errorf("block %s page %d on page %d", b.ID, b.PageNumber, p.Info.PageNumber)
			}
		}
	}
}

func TestDOCXExplicitPageBreakAndTable(t *testing.T) {
	doc := parseDOCX(t, parsertest.DOCXInfo{},
		parsertest.Para{Runs: []parsertest.Run{{Text: "before", PageBreak: true}}},
		parsertest.Table{{"a", "b"}, {"c", "d"}},
	)
	if len(doc.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(doc.Pages))
	}
	cells := doc.Pages[1].BlocksByType(model.BlockTableCell)
	if len(cells) != 4 {
		t.Fatalf("cells = %d", len(cells))
	}
	if cells[0].BBox.X1 > cells[1].BBox.X0+0.001 || cells[0].BBox.Y0 != cells[1].BBox.Y0 {
		t.Errorf("row cells not side by side: %v %v", cells[0].BBox, cells[1].BBox)
	}
	if cells[2].BBox.Y0 < cells[0].BBox.Y1 {
		t.Error("second row overlaps the first")
	}
}

func TestDOCXSectionProperties(t *testing.T) {
	data := parsertest.DOCX(parsertest.DOCXInfo{}, parsertest.Para{Runs: []parsertest.Run{{Text: "x"}}})
	p := NewDOCXParser(DOCXLayout{UseSectionProperties: true})
	doc, err := p.ParseReader(context.Background(), bytes.NewReader(data), "a.docx")
	if err != nil {
		t.Fatal(err)
	}
	info := doc.Pages[0].Info
	if !near(info.Width, 595.3) || !near(info.Height, 841.9) {
		t.Errorf("size = %vx%v", info.Width, info.Height)
	}
	if x := doc.Pages[0].Blocks[0].BBox.X0; !near(x, 85.05) {
		t.Errorf("left margin = %v", x)
	}
}

func TestDOCXEmptyDocumentHasOnePage(t *testing.T) {
	doc := parseDOCX(t, parsertest.DOCXInfo{})
	if len(doc.Pages) != 1 || len(doc.Pages[0].Blocks) != 0 || doc.Metadata.TotalPages != 1 {
		t.Errorf("pages = %+v", doc.Pages)
	}
}
