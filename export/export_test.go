package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/yuin/goldmark"

	"github.com/workwise/aikor/model"
)

func tb(id string, typ model.BlockType, level, order int, box model.BBox, lines ...string) model.TextBlock {
	b := model.TextBlock{ID: id, Type: typ, SemanticLevel: level, ReadingOrder: order, BBox: box}
	for _, l := range lines {
		b.Lines = append(b.Lines, model.TextLine{Spans: []model.TextSpan{{
			Text:  l,
			Style: model.StyleFromFlags("Times New Roman", 14, 0, 0),
		}}})
	}
	return b
}

func sampleDoc() *model.ParsedDocument {
	return &model.ParsedDocument{
		Metadata: model.DocumentMetadata{Filename: "report.pdf", Type: model.TypePDF, TotalPages: 2},
		Pages: []model.DocumentPage{
			{
				Info: model.PageInfo{PageNumber: 1, Width: 595.3, Height: 841.9},
				Blocks: []model.TextBlock{
					// Stored out of order on purpose.
					tb("b2", model.BlockParagraph, 0, 1, model.NewBBox(85, 100, 510, 130), "First line", "second line"),
					tb("b1", model.BlockHeading, 1, 0, model.NewBBox(85, 57, 510, 75), "Introduction"),
					tb("b3", model.BlockListItem, 0, 2, model.NewBBox(85, 140, 510, 154), "• bullet point"),
				},
			},
			{
				Info: model.PageInfo{PageNumber: 2, Width: 595.3, Height: 841.9},
				Blocks: []model.TextBlock{
					tb("b4", model.BlockHeading, 2, 0, model.NewBBox(85, 57, 300, 75), "Methods"),
					tb("b5", model.BlockTableCell, 0, 1, model.NewBBox(85, 80, 200, 95), "cell"),
					tb("b6", model.BlockFooter, 0, 2, model.NewBBox(290, 800, 305, 812), "2"),
				},
			},
		},
	}
}

// ---------------------------------------------------------------------------
// Structured text
// ---------------------------------------------------------------------------

func TestStructuredText(t *testing.T) {
	got := StructuredText(sampleDoc(), DefaultTextOptions())
	want := strings.Join([]string{
		"=== DOCUMENT: report.pdf ===",
		"Format: PDF",
		"Pages: 2",
		"",
		"--- PAGE 1 (595x842) ---",
		"[H1] @(85,57)-(510,75) [425x18] Introduction",
		"[P] @(85,100)-(510,130) [425x30] First line ↵ second line",
		"[LI] @(85,140)-(510,154) [425x14] • bullet point",
		"",
		"--- PAGE 2 (595x842) ---",
		"[H2] @(85,57)-(300,75) [215x18] Methods",
		"[TC] @(85,80)-(200,95) [115x15] cell",
		"[FTR] @(290,800)-(305,812) [15x12] 2",
		"",
	}, "\n")
	if got != want {
		t.Errorf("StructuredText mismatch:\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestStructuredTextStylesOnly(t *testing.T) {
	got := StructuredText(sampleDoc(), TextOptions{Styles: true})
	if !strings.Contains(got, "\n<Times New Roman,14pt,#000000> Introduction\n") {
		t.Errorf("style annotation missing:\n%s", got)
	}
	if strings.Contains(got, "[H1]") || strings.Contains(got, "@(") {
		t.Error("type tags or coordinates present when disabled")
	}
}

func TestLLMContext(t *testing.T) {
	got := LLMContext(sampleDoc(), ContextOptions{Coordinates: true})
	for _, want := range []string{
		"# Document: report.pdf\nType: PDF\nPages: 2\n---\n\n## Page 1\n",
		"### Introduction [pos: (85,57)-(510,75)]",
		"• • bullet point",
		"#### Methods",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}

	short := LLMContext(sampleDoc(), ContextOptions{MaxLength: 40})
	if utf8.RuneCountInString(short) != 40 || !strings.HasSuffix(short, "...") {
		t.Errorf("truncated = %q", short)
	}
}

// ---------------------------------------------------------------------------
// Markdown
// ---------------------------------------------------------------------------

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleDoc())
	if !strings.HasPrefix(md, "# Introduction\n\nFirst line\nsecond line\n\n- bullet point\n\n") {
		t.Errorf("markdown prefix:\n%s", md)
	}
	if !strings.Contains(md, "\n---\n\n## Methods") {
		t.Errorf("page separator missing:\n%s", md)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md), &html); err != nil {
		t.Fatal(err)
	}
	out := html.String()
	for _, want := range []string{"<h1>Introduction</h1>", "<h2>Methods</h2>", "<li>bullet point</li>", "<hr"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered HTML missing %s:\n%s", want, out)
		}
	}
}

// ---------------------------------------------------------------------------
// Chunks
// ---------------------------------------------------------------------------

func textBlocks(sizes ...int) *model.ParsedDocument {
	page := model.DocumentPage{Info: model.PageInfo{PageNumber: 1, Width: 595, Height: 842}}
	for i, n := range sizes {
		id := string(rune('a' + i))
		page.Blocks = append(page.Blocks, tb(id, model.BlockParagraph, 0, i,
			model.NewBBox(float64(50+i), float64(100*i), 500, float64(100*i+50)), strings.Repeat(id, n)))
	}
	return &model.ParsedDocument{Metadata: model.DocumentMetadata{TotalPages: 1}, Pages: []model.DocumentPage{page}}
}

func TestChunksThreeBlocks(t *testing.T) {
	doc := textBlocks(400, 400, 400)
	chunks := Chunks(doc, ChunkOptions{MaxSize: 500, Metadata: true})

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c.ID != i || c.Page != 1 {
			t.Errorf("chunk %d id/page = %d/%d", i, c.ID, c.Page)
		}
		if utf8.RuneCountInString(c.Text) > 500 {
			t.Errorf("chunk %d has %d chars", i, len(c.Text))
		}
		b := doc.Pages[0].Blocks[i]
		if !reflect.DeepEqual(c.BlockIDs, []string{b.ID}) || c.BBox == nil || *c.BBox != b.BBox {
			t.Errorf("chunk %d = %+v", i, c)
		}
	}
}

func TestChunksOverlapSeedsFromLastBlock(t *testing.T) {
	doc := textBlocks(300, 300)
	chunks := Chunks(doc, ChunkOptions{MaxSize: 500, Overlap: 50, Metadata: true})

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	second := chunks[1]
	wantText := strings.Repeat("a", 50) + "\n" + strings.Repeat("b", 300)
	if second.Text != wantText {
		t.Errorf("second text = %q...", second.Text[:60])
	}
	if !reflect.DeepEqual(second.BlockIDs, []string{"a", "b"}) {
		t.Errorf("second ids = %v", second.BlockIDs)
	}
	union := doc.Pages[0].Blocks[0].BBox.Union(doc.Pages[0].Blocks[1].BBox)
	if *second.BBox != union {
		t.Errorf("bbox = %v, want %v", *second.BBox, union)
	}
	if !reflect.DeepEqual(second.BlockTypes, []model.BlockType{model.BlockParagraph, model.BlockParagraph}) {
		t.Errorf("types = %v", second.BlockTypes)
	}
}

func TestChunksOversizedBlockAndPages(t *testing.T) {
	doc := textBlocks(50, 900)
	doc.Pages = append(doc.Pages, textBlocks(10).Pages[0])
	doc.Pages[1].Info.PageNumber = 2

	chunks := Chunks(doc, ChunkOptions{MaxSize: 500})
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if utf8.RuneCountInString(chunks[1].Text) != 900 {
		t.Errorf("oversized block should be its own chunk, got %d chars", len(chunks[1].Text))
	}
	if chunks[2].Page != 2 || chunks[2].ID != 2 {
		t.Errorf("page 2 chunk = %+v", chunks[2])
	}
	if chunks[0].BBox != nil || chunks[0].BlockTypes != nil {
		t.Error("metadata included when disabled")
	}
}

// ---------------------------------------------------------------------------
// Sections
// ---------------------------------------------------------------------------

func TestSections(t *testing.T) {
	doc := sampleDoc()
	doc.Pages[0].Blocks = append([]model.TextBlock{
		tb("b0", model.BlockParagraph, 0, -1, model.NewBBox(0, 0, 1, 1), "Preamble"),
	}, doc.Pages[0].Blocks...)

	secs := Sections(doc)
	if len(secs) != 3 {
		t.Fatalf("sections = %d", len(secs))
	}
	if secs[0].Heading != nil || secs[0].HeadingLevel != 0 || secs[0].Text != "Preamble" {
		t.Errorf("preamble = %+v", secs[0])
	}
	if *secs[1].Heading != "Introduction" || secs[1].Text != "First line\nsecond line\n\n• bullet point" {
		t.Errorf("intro = %+v", secs[1])
	}
	if !reflect.DeepEqual(secs[1].BlockIDs, []string{"b2", "b3"}) {
		t.Errorf("intro blocks = %v", secs[1].BlockIDs)
	}
	if secs[2].HeadingLevel != 2 || secs[2].PageStart != 2 || secs[2].PageEnd != 2 {
		t.Errorf("methods = %+v", secs[2])
	}

	data, _ := json.Marshal(secs[0])
	if !strings.Contains(string(data), `"heading":null`) {
		t.Errorf("preamble JSON = %s", data)
	}
}

// ---------------------------------------------------------------------------
// JSON and dispatch
// ---------------------------------------------------------------------------

func TestJSONRoundTrip(t *testing.T) {
	doc := sampleDoc()
	for _, compact := range []bool{true, false} {
		data, err := JSON(doc, compact)
		if err != nil {
			t.Fatal(err)
		}
		if compact == bytes.Contains(data, []byte("\n  ")) {
			t.Errorf("compact=%v indentation mismatch", compact)
		}
		back, err := FromJSON(data)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(back, doc) {
			t.Errorf("compact=%v: round trip changed the document", compact)
		}
	}
}

func TestJSONKeepsUnicode(t *testing.T) {
	doc := sampleDoc()
	doc.Pages[0].Blocks[1].Lines[0].Spans[0].Text = "Введение <1>"
	data, _ := JSON(doc, true)
	if !bytes.Contains(data, []byte("Введение <1>")) {
		t.Errorf("text escaped: %s", data)
	}
}

func TestWriteDispatch(t *testing.T) {
	for _, f := range Formats() {
		var buf bytes.Buffer
		if err := Write(&buf, sampleDoc(), f, DefaultOptions()); err != nil {
			t.Errorf("%s: %v", f, err)
		}
		if buf.Len() == 0 {
			t.Errorf("%s: empty output", f)
		}
	}
	if _, err := ParseFormat("pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(pdf) = %v", err)
	}
	if f, _ := ParseFormat("MD"); f != FormatMarkdown {
		t.Errorf("alias md = %s", f)
	}
	if err := Write(&bytes.Buffer{}, sampleDoc(), Format("xml"), Options{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Write(xml) = %v", err)
	}
}
