package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/workwise/aikor/model"
)

// HeadingRule checks that page 1 has a heading and that the first heading
// of each page sits inside the configured Y bands. Leaving the allowed band
// is an error; leaving only the narrower expected band is informational.
type HeadingRule struct {
	info
	cfg HeadingConfig
}

func NewHeadingRule(cfg HeadingConfig) *HeadingRule {
	return &HeadingRule{
		info: info{
			name:        "Heading",
			code:        CodeHeading,
			description: "Checks heading presence and position",
			weight:      0.7,
		},
		cfg: cfg,
	}
}

func (r *HeadingRule) Check(doc *model.ParsedDocument) (RuleResult, error) {
	c := r.cfg
	pages := doc.Pages
	if c.FirstPageOnly && len(pages) > 1 {
		pages = pages[:1]
	}

	var errs []RuleError
	for _, page := range pages {
		n := page.Info.PageNumber
		headings := page.BlocksByType(model.BlockHeading)
		if len(headings) == 0 {
			if n == 1 {
				errs = append(errs, RuleError{
					PageNumber: n,
					Message:    "First page has no heading",
					Severity:   SeverityWarning,
				})
			}
			continue
		}

		h := headings[0]
		y := h.BBox.Y0
		switch {
		case y < c.AllowedMin || y > c.AllowedMax:
			errs = append(errs, RuleError{
				PageNumber: n,
				Message:    fmt.Sprintf("Heading outside the allowed zone (Y=%.0f, allowed %g-%g)", y, c.AllowedMin, c.AllowedMax),
				Severity:   SeverityError,
				BBox:       boxPtr(h.BBox),
				BlockID:    h.ID,
			})
		case y < c.ExpectedMin || y > c.ExpectedMax:
			errs = append(errs, RuleError{
				PageNumber: n,
				Message:    fmt.Sprintf("Heading not in the expected position (Y=%.0f, expected %g-%g)", y, c.ExpectedMin, c.ExpectedMax),
				Severity:   SeverityInfo,
				BBox:       boxPtr(h.BBox),
				BlockID:    h.ID,
			})
		}
	}
	return r.result(errs, nil), nil
}

// PageNumberRule expects, from StartPage on, a digits-only block whose top
// edge lies in [YMin-Tolerance, YMax+Tolerance] carrying the number
// StartNumber + (page - StartPage).
type PageNumberRule struct {
	info
	cfg PageNumberConfig
}

func NewPageNumberRule(cfg PageNumberConfig) *PageNumberRule {
	return &PageNumberRule{
		info: info{
			name:        "Page numbering",
			code:        CodePageNumber,
			description: "Checks presence and sequence of page numbers",
			weight:      0.8,
		},
		cfg: cfg,
	}
}

func (r *PageNumberRule) find(blocks []model.TextBlock) (model.TextBlock, int, bool) {
	c := r.cfg
	for _, b := range blocks {
		y := b.BBox.Y0
		if y < c.YMin-c.Tolerance || y > c.YMax+c.Tolerance {
			continue
		}
		text := strings.TrimSpace(b.Text())
		if !isDigits(text) {
			continue
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			continue
		}
		return b, n, true
	}
	return model.TextBlock{}, 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (r *PageNumberRule) Check(doc *model.ParsedDocument) (RuleResult, error) {
	c := r.cfg
	var errs []RuleError
	for _, page := range doc.Pages {
		n := page.Info.PageNumber
		if n < c.StartPage {
			continue
		}
		expected := c.StartNumber + (n - c.StartPage)

		b, found, ok := r.find(page.Blocks)
		if !ok {
			errs = append(errs, RuleError{
				PageNumber: n,
				Message:    fmt.Sprintf("Page number missing (expected %d)", expected),
				Severity:   SeverityError,
			})
			continue
		}
		if found != expected {
			errs = append(errs, RuleError{
				PageNumber: n,
				Message:    fmt.Sprintf("Wrong page number: %d, expected %d", found, expected),
				Severity:   SeverityError,
				BBox:       boxPtr(b.BBox),
				BlockID:    b.ID,
			})
		}
	}
	return r.result(errs, map[string]any{"start_page": c.StartPage, "start_number": c.StartNumber}), nil
}
