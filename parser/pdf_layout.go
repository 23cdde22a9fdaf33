package parser

import (
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/workwise/aikor/model"
)

// layout rebuilds lines and blocks from the per-glyph output of
// pdf.Page.Content. Coordinates are converted to a top-left origin.
type layout struct {
	// RowTolerance groups glyphs whose baselines differ by less than this
	// fraction of the font size into one row.
	RowTolerance float64
	// WordGap inserts a space when two glyphs are further apart than this
	// fraction of the font size.
	WordGap float64
	// SegmentGap splits a row into separate lines (columns, tab stops)
	// past this fraction of the font size.
	SegmentGap float64
	// LineGap merges consecutive lines into one block when the vertical
	// gap is at most this fraction of the line height.
	LineGap float64
	// SizeDelta is the largest font size difference allowed inside a block.
	SizeDelta float64
}

func newLayout() layout {
	return layout{
		RowTolerance: 0.3,
		WordGap:      0.2,
		SegmentGap:   2.5,
		LineGap:      0.8,
		SizeDelta:    1.0,
	}
}

// glyph is one positioned character in top-left page space.
type glyph struct {
	s        string
	font     string
	size     float64
	color    int
	x0, x1   float64
	baseline float64
}

func (g glyph) isSpace() bool { return strings.TrimSpace(g.s) == "" }

// toGlyphs converts PDF user space (bottom-left origin) into top-left
// coordinates relative to the media box at (llx, ury). fills holds the
// fill color of each text; nil leaves every color unknown.
func toGlyphs(texts []pdf.Text, fills []int, llx, ury float64) []glyph {
	out := make([]glyph, 0, len(texts))
	for i, t := range texts {
		if t.S == "" || t.S == "\n" || t.FontSize <= 0 {
			continue
		}
		w := t.W
		if w <= 0 {
			w = 0.5 * t.FontSize
		}
		color := unknownColor
		if i < len(fills) {
			color = fills[i]
		}
		x := t.X - llx
		out = append(out, glyph{
			s:        t.S,
			font:     t.Font,
			size:     t.FontSize,
			color:    color,
			x0:       x,
			x1:       x + w,
			baseline: ury - t.Y,
		})
	}
	return out
}

// rows buckets glyphs by baseline. Rows come back top to bottom, glyphs
// inside each row left to right.
func (la layout) rows(glyphs []glyph) [][]glyph {
	sorted := make([]glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].baseline < sorted[j].baseline })

	var rows [][]glyph
	var anchor float64
	for _, g := range sorted {
		n := len(rows)
		if n > 0 && math.Abs(g.baseline-anchor) <= la.RowTolerance*g.size {
			rows[n-1] = append(rows[n-1], g)
			continue
		}
		rows = append(rows, []glyph{g})
		anchor = g.baseline
	}
	for _, r := range rows {
		sort.SliceStable(r, func(i, j int) bool { return r[i].x0 < r[j].x0 })
	}
	return rows
}

// segments splits one row at horizontal gaps wide enough to separate
// columns.
func (la layout) segments(row []glyph) [][]glyph {
	var out [][]glyph
	start := 0
	for i := 1; i < len(row); i++ {
		gap := row[i].x0 - row[i-1].x1
		if gap > la.SegmentGap*math.Max(row[i].size, row[i-1].size) {
			out = append(out, row[start:i])
			start = i
		}
	}
	return append(out, row[start:])
}

// line turns one segment into spans. A new span starts whenever the font,
// size or fill color changes; word gaps without a space glyph get a
// synthetic space.
func (la layout) line(seg []glyph) model.TextLine {
	type acc struct {
		text   strings.Builder
		font   string
		size   float64
		color  int
		x0, x1 float64
	}
	var spans []model.TextSpan
	var cur *acc
	var baseline float64

	flush := func() {
		if cur == nil {
			return
		}
		text := cleanText(cur.text.String())
		if text != "" {
			style := model.StyleFromFlags(cur.font, cur.size, max(cur.color, 0), fontFlags(cur.font))
			if cur.color == unknownColor {
				style.Color = ""
			}
			spans = append(spans, model.TextSpan{
				Text:  text,
				Style: style,
				BBox:  model.NewBBox(cur.x0, baseline-0.8*cur.size, cur.x1, baseline+0.2*cur.size),
			})
		}
		cur = nil
	}

	var prev *glyph
	for i := range seg {
		g := seg[i]
		baseline = math.Max(baseline, g.baseline)
		if cur != nil && (g.font != cur.font || math.Abs(g.size-cur.size) > 0.01 || g.color != cur.color) {
			flush()
		}
		if cur == nil {
			cur = &acc{font: g.font, size: g.size, color: g.color, x0: g.x0}
		} else if prev != nil && !prev.isSpace() && !g.isSpace() && g.x0-prev.x1 > la.WordGap*g.size {
			cur.text.WriteByte(' ')
		}
		cur.text.WriteString(g.s)
		cur.x1 = g.x1
		prev = &seg[i]
	}
	flush()

	if len(spans) == 0 {
		return model.TextLine{}
	}
	boxes := make([]model.BBox, len(spans))
	for i, s := range spans {
		boxes[i] = s.BBox
	}
	b := baseline
	return model.TextLine{Spans: spans, BBox: model.UnionAll(boxes), Baseline: &b}
}

// lines extracts every non-empty line on the page.
func (la layout) lines(glyphs []glyph) []model.TextLine {
	var out []model.TextLine
	for _, row := range la.rows(glyphs) {
		for _, seg := range la.segments(row) {
			l := la.line(seg)
			if len(l.Spans) > 0 && strings.TrimSpace(l.Text()) != "" {
				out = append(out, l)
			}
		}
	}
	return out
}

// blocks merges vertically adjacent lines with overlapping horizontal
// extent and compatible typography. Several blocks can be open at once so
// that side-by-side columns grow independently.
func (la layout) blocks(lines []model.TextLine) [][]model.TextLine {
	type open struct {
		lines []model.TextLine
	}
	var groups []*open

	for _, l := range lines {
		var target *open
		for i := len(groups) - 1; i >= 0; i-- {
			if la.continues(groups[i].lines[len(groups[i].lines)-1], l) {
				target = groups[i]
				break
			}
		}
		if target == nil {
			groups = append(groups, &open{lines: []model.TextLine{l}})
			continue
		}
		target.lines = append(target.lines, l)
	}

	out := make([][]model.TextLine, len(groups))
	for i, g := range groups {
		out[i] = g.lines
	}
	return out
}

func (la layout) continues(prev, next model.TextLine) bool {
	if next.BBox.X0 >= prev.BBox.X1 || next.BBox.X1 <= prev.BBox.X0 {
		return false
	}
	gap := next.BBox.Y0 - prev.BBox.Y1
	if gap < -0.5*prev.BBox.Height() || gap > la.LineGap*prev.BBox.Height() {
		return false
	}
	ps, ok1 := prev.DominantStyle()
	ns, ok2 := next.DominantStyle()
	if !ok1 || !ok2 {
		return false
	}
	return math.Abs(ps.FontSize-ns.FontSize) <= la.SizeDelta && ps.IsBold() == ns.IsBold()
}

// fontFlags derives bold and italic bits from the base font name, which is
// all the glyph stream exposes about weight and slant.
func fontFlags(font string) int {
	lower := strings.ToLower(font)
	var flags int
	for _, k := range []string{"bold", "black", "heavy", "semibold", "demi"} {
		if strings.Contains(lower, k) {
			flags |= model.FlagBold
			break
		}
	}
	if strings.Contains(lower, "italic") || strings.Contains(lower, "oblique") {
		flags |= model.FlagItalic
	}
	return flags
}
