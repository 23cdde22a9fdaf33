package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Verdict is the oracle's overall compliance judgement.
type Verdict string

const (
	VerdictYes     Verdict = "yes"
	VerdictNo      Verdict = "no"
	VerdictPartial Verdict = "partial"
)

// ErrNoPages is returned when a review has neither page images nor text.
var ErrNoPages = errors.New("llm: nothing to review")

const (
	defaultMaxPages   = 8
	defaultMaxTextLen = 12000
)

const reviewSystemPrompt = `You review documents for compliance with GOST formatting standards ` +
	`(margins, fonts, font sizes, headings, page numbering, line spacing). ` +
	`Answer in the document's language.`

const reviewPromptTemplate = `Document: %s

Page images are attached in page order. Extracted structure with coordinates in points:

%s
%s
List every formatting violation you find with its page number. ` +
	`End with one line "VERDICT: yes", "VERDICT: no" or "VERDICT: partial" ` +
	`(yes: fully compliant, no: not compliant, partial: minor deviations).`

// PageImage is a rendered page to show the model.
type PageImage struct {
	Number int
	Path   string
}

// ReviewInput is what the oracle looks at.
type ReviewInput struct {
	Filename       string
	StructuredText string
	// Findings is an optional summary of automatic check results.
	Findings string
	Pages    []PageImage
}

// Review is the oracle's answer.
type Review struct {
	Verdict    Verdict `json:"verdict"`
	ReportText string  `json:"report_text"`
	Model      string  `json:"model,omitempty"`
}

// Oracle asks a vision model for a holistic compliance review.
type Oracle struct {
	provider   Provider
	model      string
	maxPages   int
	maxTextLen int
}

// OracleOption configures an Oracle.
type OracleOption func(*Oracle)

// WithMaxPages limits how many page images are sent.
func WithMaxPages(n int) OracleOption {
	return func(o *Oracle) {
		if n > 0 {
			o.maxPages = n
		}
	}
}

// WithMaxTextLength truncates the structured text to n characters.
func WithMaxTextLength(n int) OracleOption {
	return func(o *Oracle) {
		if n > 0 {
			o.maxTextLen = n
		}
	}
}

func NewOracle(p Provider, model string, opts ...OracleOption) *Oracle {
	o := &Oracle{provider: p, model: model, maxPages: defaultMaxPages, maxTextLen: defaultMaxTextLen}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Review sends the page images and structure to the model and classifies
// its answer. Unreadable page images are skipped with a warning.
func (o *Oracle) Review(ctx context.Context, in ReviewInput) (*Review, error) {
	if len(in.Pages) == 0 && strings.TrimSpace(in.StructuredText) == "" {
		return nil, ErrNoPages
	}

	var images []Image
	for _, p := range in.Pages {
		if len(images) == o.maxPages {
			slog.Info("llm: page image limit reached", "limit", o.maxPages, "pages", len(in.Pages))
			break
		}
		data, err := os.ReadFile(p.Path)
		if err != nil {
			slog.Warn("llm: skipping page image", "page", p.Number, "path", p.Path, "error", err)
			continue
		}
		images = append(images, Image{Data: data, MIMEType: http.DetectContentType(data)})
	}

	findings := ""
	if in.Findings != "" {
		findings = "\nAutomatic checks reported:\n" + in.Findings + "\n"
	}
	prompt := fmt.Sprintf(reviewPromptTemplate, in.Filename, truncate(in.StructuredText, o.maxTextLen), findings)

	start := time.Now()
	resp, err := o.provider.Chat(ctx, ChatRequest{
		Model: o.model,
		Messages: []Message{
			{Role: "system", Content: reviewSystemPrompt},
			{Role: "user", Content: prompt, Images: images},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: review of %s: %w", in.Filename, err)
	}

	model := resp.Model
	if model == "" {
		model = o.model
	}
	r := &Review{Verdict: ParseVerdict(resp.Content), ReportText: strings.TrimSpace(resp.Content), Model: model}
	slog.Info("llm: review complete", "document", in.Filename, "verdict", r.Verdict,
		"images", len(images), "elapsed", time.Since(start).Round(time.Millisecond))
	return r, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "\n..."
}

var verdictLine = regexp.MustCompile(`(?im)^[^\p{L}\n]*(?:verdict|вердикт)[^\p{L}\n]*[:\-][^\p{L}\n]*(\p{L}+)`)

// ParseVerdict extracts the verdict from a review. An explicit
// "VERDICT: ..." line wins. Otherwise the text is searched for compliance
// phrases in English and Russian; anything inconclusive is partial.
func ParseVerdict(text string) Verdict {
	if m := verdictLine.FindAllStringSubmatch(text, -1); len(m) > 0 {
		switch strings.ToLower(m[len(m)-1][1]) {
		case "yes", "да":
			return VerdictYes
		case "no", "нет":
			return VerdictNo
		case "partial", "partially", "частично":
			return VerdictPartial
		}
	}

	lower := strings.ToLower(text)
	head := func(n int) string {
		r := []rune(lower)
		if len(r) > n {
			r = r[:n]
		}
		return string(r)
	}

	switch {
	case strings.Contains(lower, "соответствует") && !strings.Contains(head(50), "не"):
		return VerdictYes
	case strings.Contains(lower, "не соответствует") || strings.Contains(head(100), "наруш"):
		return VerdictNo
	case strings.Contains(lower, "does not comply") || strings.Contains(lower, "non-compliant") ||
		strings.Contains(lower, "not compliant"):
		return VerdictNo
	case strings.Contains(lower, "fully compliant") || strings.Contains(lower, "complies"):
		return VerdictYes
	}
	return VerdictPartial
}
