package rules

import (
	"errors"
	"fmt"
	"regexp"
)

// Rule codes of the standard catalogue.
const (
	CodeBounds      = "bounds_check"
	CodeFont        = "font_check"
	CodeFontSize    = "font_size_check"
	CodeColor       = "color_check"
	CodeLineSpacing = "line_spacing_check"
	CodeMargins     = "margins_check"
	CodeHeading     = "heading_check"
	CodePageNumber  = "page_number_check"
)

// DefaultOrder is the registration order of the standard catalogue. Error
// numbering follows it, so reports stay reproducible.
var DefaultOrder = []string{
	CodeBounds, CodeFont, CodeFontSize, CodeColor,
	CodeLineSpacing, CodeMargins, CodeHeading, CodePageNumber,
}

var (
	ErrUnknownRule   = errors.New("rules: unknown rule")
	ErrInvalidConfig = errors.New("rules: invalid configuration")
)

// MarginConfig holds page insets in points.
type MarginConfig struct {
	Left      float64 `json:"left" yaml:"left"`
	Right     float64 `json:"right" yaml:"right"`
	Top       float64 `json:"top" yaml:"top"`
	Bottom    float64 `json:"bottom" yaml:"bottom"`
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
}

// HeadingConfig holds the Y bands, in points from the top of the page, for
// the first heading of a page.
type HeadingConfig struct {
	ExpectedMin   float64 `json:"expected_y_min" yaml:"expected_y_min"`
	ExpectedMax   float64 `json:"expected_y_max" yaml:"expected_y_max"`
	AllowedMin    float64 `json:"allowed_y_min" yaml:"allowed_y_min"`
	AllowedMax    float64 `json:"allowed_y_max" yaml:"allowed_y_max"`
	FirstPageOnly bool    `json:"first_page_only" yaml:"first_page_only"`
}

// PageNumberConfig describes where page numbers are printed.
type PageNumberConfig struct {
	StartPage   int     `json:"start_page" yaml:"start_page"`
	StartNumber int     `json:"start_number" yaml:"start_number"`
	YMin        float64 `json:"position_y_min" yaml:"position_y_min"`
	YMax        float64 `json:"position_y_max" yaml:"position_y_max"`
	Tolerance   float64 `json:"tolerance" yaml:"tolerance"`
}

// Config selects the rules to run and their parameters. Defaults are tuned
// for A4 pages (595x842pt).
type Config struct {
	// Enabled lists rule codes in run order. Empty means DefaultOrder.
	Enabled []string `json:"enabled" yaml:"enabled"`

	// Page size assumed by Bounds and Margins when a page has none.
	PageWidth  float64 `json:"page_width" yaml:"page_width"`
	PageHeight float64 `json:"page_height" yaml:"page_height"`

	AllowedFonts   []string         `json:"allowed_fonts" yaml:"allowed_fonts"`
	FontSizeMin    float64          `json:"font_size_min" yaml:"font_size_min"`
	FontSizeMax    float64          `json:"font_size_max" yaml:"font_size_max"`
	AllowedColors  []string         `json:"allowed_colors" yaml:"allowed_colors"`
	LineSpacingMin float64          `json:"line_spacing_min" yaml:"line_spacing_min"`
	LineSpacingMax float64          `json:"line_spacing_max" yaml:"line_spacing_max"`
	Margins        MarginConfig     `json:"margins" yaml:"margins"`
	Heading        HeadingConfig    `json:"heading" yaml:"heading"`
	PageNumber     PageNumberConfig `json:"page_number" yaml:"page_number"`
}

// DefaultConfig returns the standard catalogue with its default parameters.
func DefaultConfig() Config {
	return Config{
		PageWidth:      595,
		PageHeight:     842,
		AllowedFonts:   []string{`Times.*`, `Arial.*`, `Calibri.*`, `PT.*`, `Liberation.*`},
		FontSizeMin:    13.5,
		FontSizeMax:    14.5,
		AllowedColors:  []string{"#000000"},
		LineSpacingMin: 1.2,
		LineSpacingMax: 1.5,
		Margins:        MarginConfig{Left: 85, Right: 42, Top: 57, Bottom: 57, Tolerance: 2},
		Heading:        HeadingConfig{ExpectedMin: 50, ExpectedMax: 150, AllowedMin: 40, AllowedMax: 200},
		PageNumber:     PageNumberConfig{StartPage: 1, StartNumber: 1, YMin: 780, YMax: 842, Tolerance: 20},
	}
}

// Validate checks ranges and font patterns.
func (c Config) Validate() error {
	for _, code := range c.Enabled {
		if !knownCode(code) {
			return fmt.Errorf("%w: %q", ErrUnknownRule, code)
		}
	}
	if c.PageWidth <= 0 || c.PageHeight <= 0 {
		return fmt.Errorf("%w: page size must be positive", ErrInvalidConfig)
	}
	if c.FontSizeMin > c.FontSizeMax {
		return fmt.Errorf("%w: font_size_min %g > font_size_max %g", ErrInvalidConfig, c.FontSizeMin, c.FontSizeMax)
	}
	if c.LineSpacingMin > c.LineSpacingMax {
		return fmt.Errorf("%w: line_spacing_min %g > line_spacing_max %g", ErrInvalidConfig, c.LineSpacingMin, c.LineSpacingMax)
	}
	h := c.Heading
	if h.AllowedMin > h.AllowedMax || h.ExpectedMin > h.ExpectedMax {
		return fmt.Errorf("%w: heading bands are inverted", ErrInvalidConfig)
	}
	if c.PageNumber.YMin > c.PageNumber.YMax {
		return fmt.Errorf("%w: page number band is inverted", ErrInvalidConfig)
	}
	if c.Margins.Tolerance < 0 || c.PageNumber.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must not be negative", ErrInvalidConfig)
	}
	for _, p := range c.AllowedFonts {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			return fmt.Errorf("%w: font pattern %q: %v", ErrInvalidConfig, p, err)
		}
	}
	return nil
}

func knownCode(code string) bool {
	for _, c := range DefaultOrder {
		if c == code {
			return true
		}
	}
	return false
}

// Build instantiates the enabled rules in order.
func Build(c Config) ([]Rule, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	codes := c.Enabled
	if len(codes) == 0 {
		codes = DefaultOrder
	}

	out := make([]Rule, 0, len(codes))
	for _, code := range codes {
		switch code {
		case CodeBounds:
			out = append(out, NewBoundsRule(c.PageWidth, c.PageHeight))
		case CodeFont:
			r, err := NewFontRule(c.AllowedFonts)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		case CodeFontSize:
			out = append(out, NewFontSizeRule(c.FontSizeMin, c.FontSizeMax))
		case CodeColor:
			out = append(out, NewColorRule(c.AllowedColors))
		case CodeLineSpacing:
			out = append(out, NewLineSpacingRule(c.LineSpacingMin, c.LineSpacingMax))
		case CodeMargins:
			out = append(out, NewMarginsRule(c.Margins, c.PageWidth, c.PageHeight))
		case CodeHeading:
			out = append(out, NewHeadingRule(c.Heading))
		case CodePageNumber:
			out = append(out, NewPageNumberRule(c.PageNumber))
		}
	}
	return out, nil
}
