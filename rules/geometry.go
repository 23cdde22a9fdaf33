package rules

import (
	"fmt"
	"strings"

	"github.com/workwise/aikor/model"
)

// BoundsRule reports blocks that leave the page.
type BoundsRule struct {
	info
	width, height float64
}

// NewBoundsRule uses width and height for pages that carry no size.
func NewBoundsRule(width, height float64) *BoundsRule {
	return &BoundsRule{
		info: info{
			name:        "Document bounds",
			code:        CodeBounds,
			description: "Text blocks must lie inside the page",
			weight:      1.0,
		},
		width:  width,
		height: height,
	}
}

func (r *BoundsRule) Check(doc *model.ParsedDocument) (RuleResult, error) {
	var errs []RuleError
	for _, page := range doc.Pages {
		w, h := pageSize(page.Info, r.width, r.height)
		for _, b := range page.Blocks {
			box := b.BBox
			var issues []string
			if box.X0 < 0 {
				issues = append(issues, fmt.Sprintf("crosses the left edge (%.1f)", box.X0))
			}
			if box.Y0 < 0 {
				issues = append(issues, fmt.Sprintf("crosses the top edge (%.1f)", box.Y0))
			}
			if box.X1 > w {
				issues = append(issues, fmt.Sprintf("crosses the right edge (%.1f > %.1f)", box.X1, w))
			}
			if box.Y1 > h {
				issues = append(issues, fmt.Sprintf("crosses the bottom edge (%.1f > %.1f)", box.Y1, h))
			}
			if len(issues) == 0 {
				continue
			}
			errs = append(errs, RuleError{
				PageNumber: page.Info.PageNumber,
				Message:    "Text block " + strings.Join(issues, ", "),
				Severity:   SeverityError,
				BBox:       boxPtr(box),
				BlockID:    b.ID,
			})
		}
	}
	return r.result(errs, nil), nil
}

// MarginsRule reports body blocks that intrude into the page margins.
// Headers and footers are exempt.
type MarginsRule struct {
	info
	margins       MarginConfig
	width, height float64
}

func NewMarginsRule(m MarginConfig, width, height float64) *MarginsRule {
	return &MarginsRule{
		info: info{
			name:        "Page margins",
			code:        CodeMargins,
			description: "Text must stay within the configured margins",
			weight:      0.9,
		},
		margins: m,
		width:   width,
		height:  height,
	}
}

func (r *MarginsRule) Check(doc *model.ParsedDocument) (RuleResult, error) {
	m := r.margins
	var errs []RuleError
	for _, page := range doc.Pages {
		w, h := pageSize(page.Info, r.width, r.height)
		left, right := m.Left, w-m.Right
		top, bottom := m.Top, h-m.Bottom

		for _, b := range page.Blocks {
			if b.Type == model.BlockHeader || b.Type == model.BlockFooter {
				continue
			}
			box := b.BBox
			var issues []string
			if box.X0 < left-m.Tolerance {
				issues = append(issues, "crosses the left margin")
			}
			if box.X1 > right+m.Tolerance {
				issues = append(issues, "crosses the right margin")
			}
			if box.Y0 < top-m.Tolerance {
				issues = append(issues, "crosses the top margin")
			}
			if box.Y1 > bottom+m.Tolerance {
				issues = append(issues, "crosses the bottom margin")
			}
			if len(issues) == 0 {
				continue
			}
			errs = append(errs, RuleError{
				PageNumber: page.Info.PageNumber,
				Message:    "Text " + strings.Join(issues, ", "),
				Severity:   SeverityWarning,
				BBox:       boxPtr(box),
				BlockID:    b.ID,
			})
		}
	}
	return r.result(errs, map[string]any{
		"margin_left":   m.Left,
		"margin_right":  m.Right,
		"margin_top":    m.Top,
		"margin_bottom": m.Bottom,
	}), nil
}

func pageSize(p model.PageInfo, w, h float64) (float64, float64) {
	if p.Width > 0 {
		w = p.Width
	}
	if p.Height > 0 {
		h = p.Height
	}
	return w, h
}
