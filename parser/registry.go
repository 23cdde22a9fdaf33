package parser

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/workwise/aikor/model"
)

// Registry selects a parser by file extension.
type Registry struct {
	parsers map[string]Parser
}

// Option configures the built-in parsers.
type Option func(*options)

type options struct {
	docx DOCXLayout
}

// WithDOCXLayout overrides the page geometry used for DOCX pagination.
func WithDOCXLayout(l DOCXLayout) Option {
	return func(o *options) { o.docx = l }
}

func NewRegistry(opts ...Option) *Registry {
	o := options{docx: DefaultDOCXLayout()}
	for _, fn := range opts {
		fn(&o)
	}

	r := &Registry{parsers: make(map[string]Parser)}
	pdf := &PDFParser{}
	docx := NewDOCXParser(o.docx)

	for _, p := range []Parser{pdf, docx} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Detect returns the lowercase extension of path without the dot.
func Detect(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func (r *Registry) Get(format string) (Parser, error) {
	format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return p, nil
}

func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.parsers[Detect(path)]
	return ok
}

// SupportedFormats lists the registered extensions with a leading dot.
func (r *Registry) SupportedFormats() []string {
	out := make([]string, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, "."+f)
	}
	sort.Strings(out)
	return out
}

// Parse picks the parser from the extension of path and runs it.
func (r *Registry) Parse(ctx context.Context, path string) (*model.ParsedDocument, error) {
	p, err := r.Get(Detect(path))
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, path)
}

// ParseReader parses a stream. A format hint ("pdf", ".docx") is required
// because a stream carries no extension.
func (r *Registry) ParseReader(ctx context.Context, rd io.Reader, formatHint, name string) (*model.ParsedDocument, error) {
	if strings.TrimSpace(formatHint) == "" {
		return nil, fmt.Errorf("%w: format hint required for stream input", ErrUnsupportedFormat)
	}
	p, err := r.Get(formatHint)
	if err != nil {
		return nil, err
	}
	return p.ParseReader(ctx, rd, name)
}
