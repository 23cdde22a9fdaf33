package model

const (
	WeightNormal = "normal"
	WeightBold   = "bold"

	SlantNormal = "normal"
	SlantItalic = "italic"
)

// Style flag bits, in the PDF text-extraction convention.
const (
	FlagItalic        = 1 << 1
	FlagUnderline     = 1 << 2
	FlagStrikethrough = 1 << 3
	FlagBold          = 1 << 4
)

// TextStyle is the typography shared by every character of a span.
type TextStyle struct {
	FontName        string   `json:"font_name"`
	FontSize        float64  `json:"font_size"`
	FontWeight      string   `json:"font_weight"`
	FontStyle       string   `json:"font_style"`
	Color           string   `json:"color"`
	BackgroundColor string   `json:"background_color,omitempty"`
	Underline       bool     `json:"is_underline"`
	Strikethrough   bool     `json:"is_strikethrough"`
	LineSpacing     *float64 `json:"line_spacing"`
	LetterSpacing   *float64 `json:"letter_spacing"`
}

// StyleFromFlags builds a style from a packed flag word and a packed
// 0xRRGGBB color.
func StyleFromFlags(font string, size float64, color int, flags int) TextStyle {
	s := TextStyle{
		FontName:      font,
		FontSize:      size,
		FontWeight:    WeightNormal,
		FontStyle:     SlantNormal,
		Color:         IntToHex(color),
		Underline:     flags&FlagUnderline != 0,
		Strikethrough: flags&FlagStrikethrough != 0,
	}
	if flags&FlagBold != 0 {
		s.FontWeight = WeightBold
	}
	if flags&FlagItalic != 0 {
		s.FontStyle = SlantItalic
	}
	return s
}

// Flags packs the boolean attributes back into a flag word.
func (s TextStyle) Flags() int {
	var f int
	if s.IsBold() {
		f |= FlagBold
	}
	if s.IsItalic() {
		f |= FlagItalic
	}
	if s.Underline {
		f |= FlagUnderline
	}
	if s.Strikethrough {
		f |= FlagStrikethrough
	}
	return f
}

func (s TextStyle) IsBold() bool   { return s.FontWeight == WeightBold }
func (s TextStyle) IsItalic() bool { return s.FontStyle == SlantItalic }

// key identifies the visible typography, ignoring the optional spacing
// pointers so that two separately decoded styles compare equal.
type styleKey struct {
	font   string
	size   float64
	weight string
	slant  string
	color  string
	under  bool
	strike bool
}

func (s TextStyle) key() styleKey {
	return styleKey{s.FontName, s.FontSize, s.FontWeight, s.FontStyle, s.Color, s.Underline, s.Strikethrough}
}
