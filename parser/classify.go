package parser

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/workwise/aikor/model"
)

const (
	headingMinSize = 14.0
	columnGap      = 20.0

	// marginBand is the fraction of the page height at the top and bottom
	// edges where running headers and footers live.
	marginBand = 0.05
	// marginBandLines is the most lines a header or footer block may have.
	marginBandLines = 2
)

var bulletGlyphs = []string{"•", "-", "–", "◦", "▪", "●", "○"}

// captionPrefixes open figure and table captions ("Рисунок 1 – ...").
var captionPrefixes = []string{"рисунок", "рис.", "таблица", "figure", "fig.", "table"}

// classifyBlock assigns a block type from the dominant style of its first
// line: a "Рисунок 1" / "Table 2" prefix at body size is a caption; larger
// than 14pt or bold is a heading; a bullet glyph or a "1. " / "1) " prefix
// is a list item; anything else is a paragraph.
func classifyBlock(lines []model.TextLine) (model.BlockType, int) {
	if len(lines) == 0 {
		return model.BlockParagraph, 0
	}
	style, ok := lines[0].DominantStyle()
	if !ok {
		return model.BlockParagraph, 0
	}
	if style.FontSize <= headingMinSize && isCaption(lines[0].Text()) {
		return model.BlockCaption, 0
	}
	if style.FontSize > headingMinSize || style.IsBold() {
		return model.BlockHeading, headingLevel(style.FontSize)
	}
	if isListItem(lines[0].Text()) {
		return model.BlockListItem, 0
	}
	return model.BlockParagraph, 0
}

func headingLevel(size float64) int {
	switch {
	case size >= 24:
		return 1
	case size >= 18:
		return 2
	case size >= 14:
		return 3
	default:
		return 4
	}
}

// bandType reports whether a short block sits entirely inside the top or
// bottom band of the page, where running headers, footers and page numbers
// are printed.
func bandType(box model.BBox, lines int, pageHeight float64) (model.BlockType, bool) {
	if lines == 0 || lines > marginBandLines || pageHeight <= 0 {
		return "", false
	}
	band := marginBand * pageHeight
	switch {
	case box.Y1 <= band:
		return model.BlockHeader, true
	case box.Y0 >= pageHeight-band:
		return model.BlockFooter, true
	}
	return "", false
}

// isCaption reports whether text opens with a caption word followed by a
// figure or table number.
func isCaption(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, p := range captionPrefixes {
		if !strings.HasPrefix(lower, p) {
			continue
		}
		rest := strings.TrimLeft(lower[len(p):], " \u00a0")
		r, _ := utf8.DecodeRuneInString(rest)
		return unicode.IsDigit(r)
	}
	return false
}

// isListItem reports whether text opens with a bullet glyph or a single
// digit followed by "." or ")" and a space.
func isListItem(text string) bool {
	text = strings.TrimSpace(text)
	for _, g := range bulletGlyphs {
		if strings.HasPrefix(text, g) {
			return true
		}
	}
	r, size := utf8.DecodeRuneInString(text)
	if !unicode.IsDigit(r) || len(text) <= size+1 {
		return false
	}
	rest := text[size:]
	return (rest[0] == '.' || rest[0] == ')') && rest[1] == ' '
}

// hasBulletPrefix is the weaker test used for DOCX paragraphs, whose list
// numbering lives in numbering.xml rather than in the text.
func hasBulletPrefix(text string) bool {
	text = strings.TrimSpace(text)
	for _, g := range []string{"•", "-", "–", "●", "○"} {
		if strings.HasPrefix(text, g) {
			return true
		}
	}
	return false
}

// orderBlocks drops empty blocks, sorts the rest into reading order and
// renumbers ReadingOrder densely from zero.
//
// Two columns are assumed when every block centred left of the page midline
// ends at least 20pt before any block centred right of it starts; the left
// column is then read fully before the right one. Otherwise blocks are read
// top to bottom, then left to right.
func orderBlocks(blocks []model.TextBlock, pageWidth float64) []model.TextBlock {
	kept := blocks[:0:0]
	for _, b := range blocks {
		if strings.TrimSpace(b.Text()) != "" {
			kept = append(kept, b)
		}
	}

	byPosition := func(s []model.TextBlock) {
		sort.SliceStable(s, func(i, j int) bool {
			if s[i].BBox.Y0 != s[j].BBox.Y0 {
				return s[i].BBox.Y0 < s[j].BBox.Y0
			}
			return s[i].BBox.X0 < s[j].BBox.X0
		})
	}

	mid := pageWidth / 2
	var left, right []model.TextBlock
	for _, b := range kept {
		if cx, _ := b.BBox.Center(); cx < mid {
			left = append(left, b)
		} else {
			right = append(right, b)
		}
	}

	ordered := kept
	if len(left) > 0 && len(right) > 0 && columnsSeparated(left, right) {
		byPosition(left)
		byPosition(right)
		ordered = append(left, right...)
	} else {
		byPosition(ordered)
	}

	for i := range ordered {
		ordered[i].ReadingOrder = i
	}
	return ordered
}

func columnsSeparated(left, right []model.TextBlock) bool {
	maxLeft := left[0].BBox.X1
	for _, b := range left[1:] {
		if b.BBox.X1 > maxLeft {
			maxLeft = b.BBox.X1
		}
	}
	minRight := right[0].BBox.X0
	for _, b := range right[1:] {
		if b.BBox.X0 < minRight {
			minRight = b.BBox.X0
		}
	}
	return maxLeft <= minRight-columnGap
}
