package parser

import (
	"math"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// unknownColor marks a glyph whose fill color could not be recovered.
const unknownColor = -1

// glyphFills replays the page content stream and returns the non-stroking
// fill color in effect for every glyph, in the order pdf.Page.Content
// emits them. ok is false when the replay cannot be aligned with the glyph
// list, in which case the caller must treat colors as unknown.
func glyphFills(page pdf.Page, want int) (fills []int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			fills, ok = nil, false
		}
	}()
	strm := page.V.Key("Contents")
	if page.V.IsNull() || strm.Kind() == pdf.Null {
		return nil, want == 0
	}

	var dec pdf.TextEncoding
	fill := 0
	var saved []int
	fills = make([]int, 0, want)

	show := func(raw string) {
		text := raw
		if dec != nil {
			text = dec.Decode(raw)
		}
		for n := utf8.RuneCountInString(text); n > 0; n-- {
			fills = append(fills, fill)
		}
	}

	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		switch op {
		case "q":
			saved = append(saved, fill)
		case "Q":
			if k := len(saved); k > 0 {
				fill = saved[k-1]
				saved = saved[:k-1]
			}
		case "cs":
			fill = 0
		case "g", "rg", "k", "sc", "scn":
			if c, ok := fillColor(args); ok {
				fill = c
			}
		case "Tf":
			if len(args) == 2 {
				dec = page.Font(args[0].Name()).Encoder()
			}
		case "Tj", "'":
			if len(args) >= 1 {
				show(args[len(args)-1].RawString())
			}
		case "\"":
			if len(args) == 3 {
				show(args[2].RawString())
			}
		case "TJ":
			if len(args) != 1 {
				return
			}
			v := args[0]
			for i := 0; i < v.Len(); i++ {
				if x := v.Index(i); x.Kind() == pdf.String {
					show(x.RawString())
				}
			}
			show("\n")
		}
	})
	return fills, len(fills) == want
}

// fillColor reads numeric color operands. Pattern and other named operands
// are not colors.
func fillColor(args []pdf.Value) (int, bool) {
	comps := make([]float64, len(args))
	for i, a := range args {
		if a.Kind() != pdf.Real && a.Kind() != pdf.Integer {
			return 0, false
		}
		comps[i] = a.Float64()
	}
	return packFill(comps)
}

// packFill packs gray, RGB or CMYK components into 0xRRGGBB.
func packFill(raw []float64) (int, bool) {
	comps := make([]float64, len(raw))
	for i, c := range raw {
		comps[i] = clamp01(c)
	}
	switch len(comps) {
	case 1:
		return packRGB(comps[0], comps[0], comps[0]), true
	case 3:
		return packRGB(comps[0], comps[1], comps[2]), true
	case 4:
		c, m, y, k := comps[0], comps[1], comps[2], comps[3]
		return packRGB((1-c)*(1-k), (1-m)*(1-k), (1-y)*(1-k)), true
	}
	return 0, false
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

func packRGB(r, g, b float64) int {
	to8 := func(v float64) int { return int(math.Round(v * 255)) }
	return to8(r)<<16 | to8(g)<<8 | to8(b)
}
