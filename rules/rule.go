// Package rules checks a parsed document against formatting requirements.
//
// A Rule inspects the whole document and reports zero or more localized
// violations. The Engine runs an ordered set of rules, converts a failing
// rule into a single synthetic error, and folds every violation into a
// 0-100 rating.
package rules

import (
	"fmt"

	"github.com/workwise/aikor/model"
)

// Severity grades a violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Multiplier scales a rule's weight into a rating penalty.
func (s Severity) Multiplier() float64 {
	switch s {
	case SeverityError:
		return 3.0
	case SeverityWarning:
		return 1.5
	case SeverityInfo:
		return 0.5
	}
	return 1.0
}

// RuleError is one violation. PageNumber is 1-based; 0 means the error is
// not tied to a page (a failed rule). BBox is nil when the violation has
// no location, such as a missing heading.
type RuleError struct {
	PageNumber int            `json:"page_number"`
	Message    string         `json:"message"`
	Severity   Severity       `json:"severity"`
	BBox       *model.BBox    `json:"bbox"`
	BlockID    string         `json:"block_id,omitempty"`
	Extra      map[string]any `json:"extra_data,omitempty"`
}

// RuleResult is the outcome of one rule over one document.
type RuleResult struct {
	RuleName string         `json:"rule_name"`
	RuleCode string         `json:"rule_code"`
	Passed   bool           `json:"passed"`
	Errors   []RuleError    `json:"errors"`
	Stats    map[string]any `json:"stats,omitempty"`
}

func (r RuleResult) ErrorCount() int { return len(r.Errors) }

// Rule is a formatting check. Implementations must not modify the document
// and must return the same result for the same input.
type Rule interface {
	// Name is the human readable title.
	Name() string
	// Code uniquely identifies the rule in reports and configuration.
	Code() string
	Description() string
	// Weight is the rule's influence on the rating, usually in (0, 1].
	Weight() float64
	Check(doc *model.ParsedDocument) (RuleResult, error)
}

// RuleExecutionError reports a rule that returned an error or panicked.
type RuleExecutionError struct {
	RuleCode string
	Cause    error
}

func (e *RuleExecutionError) Error() string {
	return fmt.Sprintf("rules: %s: %v", e.RuleCode, e.Cause)
}

func (e *RuleExecutionError) Unwrap() error { return e.Cause }

// info carries the descriptive part shared by the built-in rules.
type info struct {
	name        string
	code        string
	description string
	weight      float64
}

func (i info) Name() string        { return i.name }
func (i info) Code() string        { return i.code }
func (i info) Description() string { return i.description }
func (i info) Weight() float64     { return i.weight }

func (i info) result(errs []RuleError, stats map[string]any) RuleResult {
	if errs == nil {
		errs = []RuleError{}
	}
	return RuleResult{
		RuleName: i.name,
		RuleCode: i.code,
		Passed:   len(errs) == 0,
		Errors:   errs,
		Stats:    stats,
	}
}

func boxPtr(b model.BBox) *model.BBox { return &b }

// spanBox falls back to the block box for spans without geometry.
func spanBox(s model.TextSpan, b model.TextBlock) *model.BBox {
	if s.BBox.IsZero() {
		return boxPtr(b.BBox)
	}
	return boxPtr(s.BBox)
}
