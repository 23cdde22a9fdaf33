// Package model holds the geometric and typographic representation of a
// parsed document. A ParsedDocument is a strict tree (document -> pages ->
// blocks -> lines -> spans) and is treated as immutable once a parser has
// returned it.
package model

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// DocumentType is the source format of a parsed document.
type DocumentType string

const (
	TypePDF  DocumentType = "pdf"
	TypeDOCX DocumentType = "docx"
)

// BlockType is the semantic role of a text block.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockListItem  BlockType = "list_item"
	BlockTableCell BlockType = "table_cell"
	BlockCaption   BlockType = "caption"
	BlockFooter    BlockType = "footer"
	BlockHeader    BlockType = "header"
)

// TextSpan is a run of text with one style.
type TextSpan struct {
	Text  string    `json:"text"`
	Style TextStyle `json:"style"`
	BBox  BBox      `json:"bbox"`
}

// TextLine is a left-to-right sequence of spans.
type TextLine struct {
	Spans    []TextSpan `json:"spans"`
	BBox     BBox       `json:"bbox"`
	Baseline *float64   `json:"baseline_y"`
}

// Text concatenates the span texts.
func (l TextLine) Text() string {
	var b strings.Builder
	for _, s := range l.Spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// CharCount is the number of characters across all spans.
func (l TextLine) CharCount() int {
	n := 0
	for _, s := range l.Spans {
		n += utf8.RuneCountInString(s.Text)
	}
	return n
}

// DominantStyle returns the style carrying the most characters on the line.
// Ties go to the style that appears first.
func (l TextLine) DominantStyle() (TextStyle, bool) {
	if len(l.Spans) == 0 {
		return TextStyle{}, false
	}
	counts := make(map[styleKey]int, len(l.Spans))
	var order []styleKey
	first := make(map[styleKey]TextStyle, len(l.Spans))
	for _, s := range l.Spans {
		k := s.Style.key()
		if _, seen := first[k]; !seen {
			first[k] = s.Style
			order = append(order, k)
		}
		counts[k] += utf8.RuneCountInString(s.Text)
	}
	best := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return first[best], true
}

// TextBlock is a paragraph-level unit: lines plus the box that encloses them.
type TextBlock struct {
	ID            string     `json:"block_id"`
	Type          BlockType  `json:"block_type"`
	Lines         []TextLine `json:"lines"`
	BBox          BBox       `json:"bbox"`
	PageNumber    int        `json:"page_number"`
	ReadingOrder  int        `json:"reading_order"`
	SemanticLevel int        `json:"semantic_level,omitempty"`
}

// Text joins the line texts with newlines.
func (b TextBlock) Text() string {
	parts := make([]string, len(b.Lines))
	for i, l := range b.Lines {
		parts[i] = l.Text()
	}
	return strings.Join(parts, "\n")
}

func (b TextBlock) LineCount() int { return len(b.Lines) }

// AvgLineSpacing is the mean vertical gap between consecutive line boxes
// (next.Y0 - prev.Y1). It is undefined for blocks with fewer than two lines.
func (b TextBlock) AvgLineSpacing() (float64, bool) {
	if len(b.Lines) < 2 {
		return 0, false
	}
	var sum float64
	for i := 1; i < len(b.Lines); i++ {
		sum += b.Lines[i].BBox.Y0 - b.Lines[i-1].BBox.Y1
	}
	return sum / float64(len(b.Lines)-1), true
}

// Spans returns every span of the block in line order.
func (b TextBlock) Spans() []TextSpan {
	var out []TextSpan
	for _, l := range b.Lines {
		out = append(out, l.Spans...)
	}
	return out
}

// FirstLineStyle is the dominant style of the first line.
func (b TextBlock) FirstLineStyle() (TextStyle, bool) {
	if len(b.Lines) == 0 {
		return TextStyle{}, false
	}
	return b.Lines[0].DominantStyle()
}

// PageInfo describes page geometry. Rotation is one of 0, 90, 180, 270.
type PageInfo struct {
	PageNumber int     `json:"page_number"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Rotation   int     `json:"rotation"`
}

// DocumentPage holds the blocks of one page ordered by reading order.
type DocumentPage struct {
	Info   PageInfo    `json:"info"`
	Blocks []TextBlock `json:"blocks"`
}

func (p DocumentPage) BlockCount() int { return len(p.Blocks) }

// BlocksByType filters the page's blocks.
func (p DocumentPage) BlocksByType(t BlockType) []TextBlock {
	var out []TextBlock
	for _, b := range p.Blocks {
		if b.Type == t {
			out = append(out, b)
		}
	}
	return out
}

// InReadingOrder returns a copy of the blocks sorted by ReadingOrder.
func (p DocumentPage) InReadingOrder() []TextBlock {
	out := make([]TextBlock, len(p.Blocks))
	copy(out, p.Blocks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReadingOrder < out[j].ReadingOrder })
	return out
}

// DocumentMetadata describes the source file.
type DocumentMetadata struct {
	Filename         string       `json:"filename"`
	Type             DocumentType `json:"document_type"`
	TotalPages       int          `json:"total_pages"`
	FileSize         int64        `json:"file_size_bytes"`
	Title            string       `json:"title,omitempty"`
	Author           string       `json:"author,omitempty"`
	CreationDate     string       `json:"creation_date,omitempty"`
	ModificationDate string       `json:"modification_date,omitempty"`
	ContentHash      string       `json:"content_hash,omitempty"`
}

// ParsedDocument is the artifact exchanged between parsers, exporters and
// the rule engine.
type ParsedDocument struct {
	Metadata DocumentMetadata `json:"metadata"`
	Pages    []DocumentPage   `json:"pages"`
}

func (d *ParsedDocument) TotalBlocks() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Blocks)
	}
	return n
}

// FullText joins every block, in reading order, with blank lines.
func (d *ParsedDocument) FullText() string {
	var texts []string
	for _, p := range d.Pages {
		for _, b := range p.InReadingOrder() {
			texts = append(texts, b.Text())
		}
	}
	return strings.Join(texts, "\n\n")
}

// BlocksByType filters blocks across all pages.
func (d *ParsedDocument) BlocksByType(t BlockType) []TextBlock {
	var out []TextBlock
	for _, p := range d.Pages {
		out = append(out, p.BlocksByType(t)...)
	}
	return out
}

func (d *ParsedDocument) Headings() []TextBlock { return d.BlocksByType(BlockHeading) }

// Page returns the page with the given 1-based number.
func (d *ParsedDocument) Page(number int) (*DocumentPage, bool) {
	for i := range d.Pages {
		if d.Pages[i].Info.PageNumber == number {
			return &d.Pages[i], true
		}
	}
	return nil, false
}
