package model

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

func TestBBoxDerived(t *testing.T) {
	boxes := []BBox{
		NewBBox(0, 0, 10, 20),
		NewBBox(72, 100.5, 523, 140.25),
		NewBBox(5, 5, 5, 5),
	}
	for _, b := range boxes {
		if b.Width() != b.X1-b.X0 {
			t.Errorf("%v: width = %v", b, b.Width())
		}
		if b.Height() != b.Y1-b.Y0 {
			t.Errorf("%v: height = %v", b, b.Height())
		}
		if b.Area() != b.Width()*b.Height() {
			t.Errorf("%v: area = %v", b, b.Area())
		}
		if !b.Contains(b) {
			t.Errorf("%v should contain itself", b)
		}
		if b.Area() > 0 && !b.Overlaps(b) {
			t.Errorf("%v should overlap itself", b)
		}
	}
}

func TestBBoxOverlapSymmetric(t *testing.T) {
	tests := []struct {
		name string
		a, b BBox
		want bool
	}{
		{"partial", NewBBox(0, 0, 50, 50), NewBBox(25, 25, 75, 75), true},
		{"disjoint", NewBBox(0, 0, 10, 10), NewBBox(20, 20, 30, 30), false},
		{"touching edge", NewBBox(0, 0, 10, 10), NewBBox(10, 0, 20, 10), false},
		{"nested", NewBBox(0, 0, 100, 100), NewBBox(10, 10, 20, 20), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("a.Overlaps(b) = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("b.Overlaps(a) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBBoxIntersectionUnion(t *testing.T) {
	a := NewBBox(0, 0, 50, 50)
	b := NewBBox(25, 25, 75, 75)

	in, ok := a.Intersection(b)
	if !ok || in != NewBBox(25, 25, 50, 50) {
		t.Errorf("intersection = %v, %v", in, ok)
	}
	if u := a.Union(b); u != NewBBox(0, 0, 75, 75) {
		t.Errorf("union = %v", u)
	}
	if _, ok := a.Intersection(NewBBox(60, 60, 70, 70)); ok {
		t.Error("expected no intersection")
	}
	if got := UnionAll([]BBox{a, b, NewBBox(-5, 10, 0, 20)}); got != NewBBox(-5, 0, 75, 75) {
		t.Errorf("UnionAll = %v", got)
	}
}

func TestOverlapRatios(t *testing.T) {
	if got := NewBBox(0, 0, 50, 100).VerticalOverlap(NewBBox(60, 25, 110, 75)); got != 1.0 {
		t.Errorf("vertical overlap = %v, want 1", got)
	}
	if got := NewBBox(0, 0, 100, 50).HorizontalOverlap(NewBBox(50, 60, 150, 110)); got != 0.5 {
		t.Errorf("horizontal overlap = %v, want 0.5", got)
	}
}

// ---------------------------------------------------------------------------
// Colors
// ---------------------------------------------------------------------------

func TestHexRGBRoundTrip(t *testing.T) {
	for r := 0; r < 256; r += 15 {
		for g := 0; g < 256; g += 17 {
			for b := 0; b < 256; b += 51 {
				gr, gg, gb, err := HexToRGB(RGBToHex(r, g, b))
				if err != nil {
					t.Fatal(err)
				}
				if int(gr) != r || int(gg) != g || int(gb) != b {
					t.Fatalf("round trip (%d,%d,%d) -> (%d,%d,%d)", r, g, b, gr, gg, gb)
				}
			}
		}
	}
}

func TestNormalizeColor(t *testing.T) {
	tests := []struct{ in, want string }{
		{"#FF0000", "#ff0000"},
		{"ff0000", "#ff0000"},
		{"#f00", "#ff0000"},
		{"#ff0000", "#ff0000"},
	}
	for _, tt := range tests {
		got := NormalizeColor(tt.in)
		if got != tt.want {
			t.Errorf("NormalizeColor(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := NormalizeColor(got); again != got {
			t.Errorf("NormalizeColor not idempotent: %q -> %q", got, again)
		}
	}
}

func TestColorHelpers(t *testing.T) {
	if IntToHex(0xFF0000) != "#ff0000" {
		t.Errorf("IntToHex = %s", IntToHex(0xFF0000))
	}
	if v, _ := HexToInt("#ff0000"); v != 16711680 {
		t.Errorf("HexToInt = %d", v)
	}
	if RGBToHex(300, -4, 16) != "#ff0010" {
		t.Errorf("RGBToHex should clamp, got %s", RGBToHex(300, -4, 16))
	}
	d, _ := ColorDistance("#000000", "#ffffff")
	if d < 441 || d > 442 {
		t.Errorf("distance black/white = %v", d)
	}
	if dark, _ := IsDarkColor("#000000"); !dark {
		t.Error("black should be dark")
	}
	if dark, _ := IsDarkColor("#ffffff"); dark {
		t.Error("white should not be dark")
	}
	if _, _, _, err := HexToRGB("#12"); err == nil {
		t.Error("expected error for short hex")
	}
}

func TestStyleFlags(t *testing.T) {
	s := StyleFromFlags("Times", 12, 0x112233, FlagBold|FlagItalic|FlagUnderline)
	if !s.IsBold() || !s.IsItalic() || !s.Underline || s.Strikethrough {
		t.Fatalf("decoded style = %+v", s)
	}
	if s.Color != "#112233" {
		t.Errorf("color = %s", s.Color)
	}
	if s.Flags() != FlagBold|FlagItalic|FlagUnderline {
		t.Errorf("flags = %b", s.Flags())
	}
	if FlagItalic != 2 || FlagUnderline != 4 || FlagStrikethrough != 8 || FlagBold != 16 {
		t.Error("flag bit positions changed")
	}
}

// ---------------------------------------------------------------------------
// Derived text properties
// ---------------------------------------------------------------------------

func span(text string, size float64, font string) TextSpan {
	return TextSpan{Text: text, Style: TextStyle{FontName: font, FontSize: size, FontWeight: WeightNormal, FontStyle: SlantNormal, Color: DefaultColor}}
}

func TestDominantStyleByCharacterCount(t *testing.T) {
	line := TextLine{Spans: []TextSpan{
		span("abc", 12, "Times"),
		span("defghij", 14, "Arial"),
		span("kl", 12, "Times"),
		span("mnopq", 12, "Times"),
	}}
	got, ok := line.DominantStyle()
	if !ok {
		t.Fatal("expected a style")
	}
	// Times carries 10 characters over three spans, Arial 7 in one.
	if got.FontName != "Times" {
		t.Errorf("dominant font = %s, want Times", got.FontName)
	}
	if line.Text() != "abcdefghijklmnopq" || line.CharCount() != 17 {
		t.Errorf("text = %q (%d)", line.Text(), line.CharCount())
	}
}

func TestAvgLineSpacing(t *testing.T) {
	b := TextBlock{Lines: []TextLine{
		{BBox: NewBBox(0, 100, 10, 112)},
		{BBox: NewBBox(0, 116, 10, 128)},
		{BBox: NewBBox(0, 134, 10, 146)},
	}}
	got, ok := b.AvgLineSpacing()
	if !ok || math.Abs(got-5) > 1e-9 {
		t.Errorf("avg spacing = %v, %v; want 5", got, ok)
	}
	if _, ok := (TextBlock{Lines: b.Lines[:1]}).AvgLineSpacing(); ok {
		t.Error("single-line block should have no spacing")
	}
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

func sampleDocument() *ParsedDocument {
	baseline := 111.25
	spacing := 1.5
	style := TextStyle{FontName: "Times New Roman", FontSize: 14, FontWeight: WeightBold, FontStyle: SlantItalic,
		Color: "#1a2b3c", Underline: true, LineSpacing: &spacing}
	return &ParsedDocument{
		Metadata: DocumentMetadata{Filename: "a.pdf", Type: TypePDF, TotalPages: 1, FileSize: 1234,
			Title: "T", Author: "A", ContentHash: "0123456789abcdef"},
		Pages: []DocumentPage{{
			Info: PageInfo{PageNumber: 1, Width: 595.276, Height: 841.89},
			Blocks: []TextBlock{
				{ID: "blk_p1_1", Type: BlockHeading, SemanticLevel: 2, PageNumber: 1, ReadingOrder: 0,
					BBox: NewBBox(85.1, 100.333, 300.7, 112.9),
					Lines: []TextLine{{Baseline: &baseline, BBox: NewBBox(85.1, 100.333, 300.7, 112.9),
						Spans: []TextSpan{{Text: "Введение", Style: style, BBox: NewBBox(85.1, 100.333, 300.7, 112.9)}}}}},
				{ID: "blk_p1_2", Type: BlockParagraph, PageNumber: 1, ReadingOrder: 1,
					BBox: NewBBox(85, 130, 500, 160),
					Lines: []TextLine{
						{BBox: NewBBox(85, 130, 500, 144), Spans: []TextSpan{span("one", 14, "Times")}},
						{BBox: NewBBox(85, 146, 480, 160), Spans: []TextSpan{span("two", 14, "Times")}},
					}},
			},
		}},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	doc := sampleDocument()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	var back ParsedDocument
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*doc, back) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, *doc)
	}
	again, _ := json.Marshal(&back)
	if string(again) != string(data) {
		t.Error("second encoding differs from the first")
	}
}

func TestJSONShape(t *testing.T) {
	data, err := json.Marshal(sampleDocument())
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{
		`"summary":{"total_blocks":2,"total_pages":1}`,
		`"block_type":"heading"`,
		`"line_count":2`,
		`"avg_line_spacing":2`,
		`"avg_line_spacing":null`,
		`"text":"one\ntwo"`,
		`"is_underline":true`,
		`"document_type":"pdf"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON missing %s", want)
		}
	}
}
