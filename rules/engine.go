package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/workwise/aikor/model"
)

// ErrNoStructure is reported when a document has no parsed structure.
var ErrNoStructure = errors.New("rules: document has no structure")

// Report is the outcome of checking one document.
type Report struct {
	Success     bool         `json:"success"`
	Results     []RuleResult `json:"results"`
	TotalErrors int          `json:"total_errors"`
	Rating      float64      `json:"rating"`
	Error       string       `json:"error,omitempty"`
	// RunID identifies the persisted check run, if any.
	RunID string `json:"run_id,omitempty"`
}

// NumberedError is a RuleError with its report-wide sequence number.
type NumberedError struct {
	Number   int
	RuleCode string
	RuleName string
	RuleError
}

// CheckRecord is everything a ResultStore persists for one check.
type CheckRecord struct {
	DocumentID int64
	Report     Report
	Errors     []NumberedError
	StartedAt  time.Time
	FinishedAt time.Time
}

// ResultStore persists a check atomically: previous errors of the document
// are replaced and the document's rating is updated, or nothing changes.
type ResultStore interface {
	SaveCheck(ctx context.Context, rec CheckRecord) (runID string, err error)
}

// Engine runs an ordered set of rules. It is safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewEngine returns an engine running rules in the given order.
func NewEngine(rules ...Rule) *Engine {
	e := &Engine{}
	e.Register(rules...)
	return e
}

// NewDefaultEngine returns an engine with the standard catalogue.
func NewDefaultEngine() *Engine {
	e, err := NewEngineFromConfig(DefaultConfig())
	if err != nil {
		panic(err) // the default configuration is always valid
	}
	return e
}

// NewEngineFromConfig builds the enabled rules of c.
func NewEngineFromConfig(c Config) (*Engine, error) {
	rules, err := Build(c)
	if err != nil {
		return nil, err
	}
	return NewEngine(rules...), nil
}

// Register appends rules to the run order.
func (e *Engine) Register(rules ...Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rules...)
}

// Clear removes every rule.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
}

// Rules returns a copy of the run order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// weights maps each code to the weight of the first rule registered with it.
func weights(rules []Rule) map[string]float64 {
	w := make(map[string]float64, len(rules))
	for _, r := range rules {
		if _, ok := w[r.Code()]; !ok {
			w[r.Code()] = r.Weight()
		}
	}
	return w
}

// Rating scores results with the weights of the registered rules.
func (e *Engine) Rating(results []RuleResult) float64 {
	return Rating(results, weights(e.Rules()))
}

// CheckDocument runs every rule against doc. A nil document fails fast
// with Success false and rating 0. A rule that errors or panics yields a
// failed result holding one error-severity RuleError on page 0; the other
// rules still run.
func (e *Engine) CheckDocument(doc *model.ParsedDocument) Report {
	if doc == nil {
		return Report{Results: []RuleResult{}, Error: ErrNoStructure.Error()}
	}

	rules := e.Rules()
	results := make([]RuleResult, 0, len(rules))
	total := 0
	for _, r := range rules {
		res := run(r, doc)
		total += len(res.Errors)
		results = append(results, res)
	}

	return Report{
		Success:     true,
		Results:     results,
		TotalErrors: total,
		Rating:      Rating(results, weights(rules)),
	}
}

// CheckJSON decodes a stored document structure and checks it. Empty or
// undecodable input produces an unsuccessful report.
func (e *Engine) CheckJSON(data []byte) Report {
	if len(data) == 0 {
		return e.CheckDocument(nil)
	}
	var doc model.ParsedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Report{Results: []RuleResult{}, Error: fmt.Sprintf("invalid structure JSON: %v", err)}
	}
	return e.CheckDocument(&doc)
}

func run(r Rule, doc *model.ParsedDocument) (res RuleResult) {
	defer func() {
		if p := recover(); p != nil {
			res = failed(r, &RuleExecutionError{RuleCode: r.Code(), Cause: fmt.Errorf("panic: %v", p)})
		}
	}()

	res, err := r.Check(doc)
	if err != nil {
		return failed(r, &RuleExecutionError{RuleCode: r.Code(), Cause: err})
	}
	if res.Errors == nil {
		res.Errors = []RuleError{}
	}
	return res
}

func failed(r Rule, err *RuleExecutionError) RuleResult {
	slog.Warn("rules: rule failed", "rule", err.RuleCode, "error", err.Cause)
	return RuleResult{
		RuleName: r.Name(),
		RuleCode: r.Code(),
		Passed:   false,
		Errors: []RuleError{{
			PageNumber: 0,
			Message:    fmt.Sprintf("rule execution failed: %v", err.Cause),
			Severity:   SeverityError,
		}},
	}
}

// Number assigns a report-wide counter to every error, in rule order and
// then in each rule's own order, starting at 1.
func Number(results []RuleResult) []NumberedError {
	var out []NumberedError
	n := 0
	for _, res := range results {
		for _, e := range res.Errors {
			n++
			out = append(out, NumberedError{Number: n, RuleCode: res.RuleCode, RuleName: res.RuleName, RuleError: e})
		}
	}
	return out
}

// CheckAndSave checks doc and persists the outcome for documentID through
// store. Nothing is saved for a document without structure. A store
// failure is returned alongside the computed report.
func (e *Engine) CheckAndSave(ctx context.Context, store ResultStore, documentID int64, doc *model.ParsedDocument) (Report, error) {
	started := time.Now().UTC()
	report := e.CheckDocument(doc)
	if !report.Success {
		return report, ErrNoStructure
	}

	runID, err := store.SaveCheck(ctx, CheckRecord{
		DocumentID: documentID,
		Report:     report,
		Errors:     Number(report.Results),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		return report, fmt.Errorf("rules: save check for document %d: %w", documentID, err)
	}
	report.RunID = runID

	slog.Info("rules: check saved", "document_id", documentID, "run", runID,
		"errors", report.TotalErrors, "rating", report.Rating)
	return report, nil
}
