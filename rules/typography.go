package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/workwise/aikor/model"
)

// FontRule reports fonts that match none of the allowed patterns. Patterns
// are case-insensitive regular expressions matched anywhere in the name.
// Each font is reported at most once per page.
type FontRule struct {
	info
	allowed  []string
	patterns []*regexp.Regexp
}

func NewFontRule(allowed []string) (*FontRule, error) {
	if len(allowed) == 0 {
		allowed = DefaultConfig().AllowedFonts
	}
	r := &FontRule{
		info: info{
			name:        "Font family",
			code:        CodeFont,
			description: "Fonts must be on the allowed list",
			weight:      0.8,
		},
		allowed: allowed,
	}
	for _, p := range allowed {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%w: font pattern %q: %v", ErrInvalidConfig, p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *FontRule) allowedFont(name string) bool {
	for _, re := range r.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (r *FontRule) Check(doc *model.ParsedDocument) (RuleResult, error) {
	type key struct {
		page int
		font string
	}
	seen := make(map[key]bool)

	var errs []RuleError
	for _, page := range doc.Pages {
		n := page.Info.PageNumber
		for _, b := range page.Blocks {
			for _, s := range b.Spans() {
				font := s.Style.FontName
				if font == "" {
					font = "unknown"
				}
				k := key{n, font}
				if seen[k] {
					continue
				}
				seen[k] = true
				if r.allowedFont(font) {
					continue
				}
				errs = append(errs, RuleError{
					PageNumber: n,
					Message:    fmt.Sprintf("Font '%s' is not allowed. Allowed: %s", font, strings.Join(r.allowed, ", ")),
					Severity:   SeverityWarning,
					BBox:       spanBox(s, b),
					BlockID:    b.ID,
					Extra:      map[string]any{"font_name": font},
				})
			}
		}
	}
	return r.result(errs, nil), nil
}

// FontSizeRule reports body spans whose size is outside [min, max].
// Headings are exempt.
type FontSizeRule struct {
	info
	min, max float64
}

func NewFontSizeRule(lo, hi float64) *FontSizeRule {
	return &FontSizeRule{
		info: info{
			name:        "Font size",
			code:        CodeFontSize,
			description: "Body text size must be within the configured range",
			weight:      0.7,
		},
		min: lo,
		max: hi,
	}
}

func (r *FontSizeRule) Check(doc *model.ParsedDocument) (RuleResult, error) {
	var errs []RuleError
	for _, page := range doc.Pages {
		for _, b := range page.Blocks {
			if b.Type == model.BlockHeading {
				continue
			}
			for _, s := range b.Spans() {
				size := s.Style.FontSize
				if size >= r.min && size <= r.max {
					continue
				}
				errs = append(errs, RuleError{
					PageNumber: page.Info.PageNumber,
					Message:    fmt.Sprintf("Font size %.1fpt outside range %g-%gpt", size, r.min, r.max),
					Severity:   SeverityWarning,
					BBox:       spanBox(s, b),
					BlockID:    b.ID,
					Extra:      map[string]any{"font_size": size},
				})
			}
		}
	}
	return r.result(errs, map[string]any{"min_size": r.min, "max_size": r.max}), nil
}

// ColorRule reports spans whose color is not on the allowed list.
type ColorRule struct {
	info
	allowed []string
}

func NewColorRule(allowed []string) *ColorRule {
	if len(allowed) == 0 {
		allowed = DefaultConfig().AllowedColors
	}
	norm := make([]string, len(allowed))
	for i, c := range allowed {
		norm[i] = upperColor(c)
	}
	return &ColorRule{
		info: info{
			name:        "Text color",
			code:        CodeColor,
			description: "Text color must be on the allowed list",
			weight:      0.5,
		},
		allowed: norm,
	}
}

func upperColor(c string) string {
	return strings.ToUpper(model.NormalizeColor(c))
}

func (r *ColorRule) allowedColor(c string) bool {
	for _, a := range r.allowed {
		if a == c {
			return true
		}
	}
	return false
}

func (r *ColorRule) Check(doc *model.ParsedDocument) (RuleResult, error) {
	var errs []RuleError
	for _, page := range doc.Pages {
		for _, b := range page.Blocks {
			for _, s := range b.Spans() {
				// Sources that cannot recover a color leave it empty.
				if s.Style.Color == "" {
					continue
				}
				color := upperColor(s.Style.Color)
				if r.allowedColor(color) {
					continue
				}
				errs = append(errs, RuleError{
					PageNumber: page.Info.PageNumber,
					Message:    fmt.Sprintf("Text color %s is not allowed. Allowed: %s", color, strings.Join(r.allowed, ", ")),
					Severity:   SeverityInfo,
					BBox:       spanBox(s, b),
					BlockID:    b.ID,
					Extra:      map[string]any{"color": color},
				})
			}
		}
	}
	return r.result(errs, nil), nil
}

// LineSpacingRule compares each block's mean inter-line gap, divided by
// the mean span size, against [min, max]. Single-line blocks are skipped.
type LineSpacingRule struct {
	info
	min, max float64
}

func NewLineSpacingRule(lo, hi float64) *LineSpacingRule {
	return &LineSpacingRule{
		info: info{
			name:        "Line spacing",
			code:        CodeLineSpacing,
			description: "Line spacing must be within the configured range",
			weight:      0.6,
		},
		min: lo,
		max: hi,
	}
}

func (r *LineSpacingRule) Check(doc *model.ParsedDocument) (RuleResult, error) {
	var errs []RuleError
	for _, page := range doc.Pages {
		for _, b := range page.Blocks {
			gap, ok := b.AvgLineSpacing()
			if !ok {
				continue
			}
			spans := b.Spans()
			if len(spans) == 0 {
				continue
			}
			var total float64
			for _, s := range spans {
				total += s.Style.FontSize
			}
			avgSize := total / float64(len(spans))

			var spacing float64
			if avgSize > 0 {
				spacing = gap / avgSize
			}
			if spacing >= r.min && spacing <= r.max {
				continue
			}
			errs = append(errs, RuleError{
				PageNumber: page.Info.PageNumber,
				Message:    fmt.Sprintf("Line spacing %.2f outside range %g-%g", spacing, r.min, r.max),
				Severity:   SeverityWarning,
				BBox:       boxPtr(b.BBox),
				BlockID:    b.ID,
				Extra:      map[string]any{"line_spacing": spacing},
			})
		}
	}
	return r.result(errs, nil), nil
}
