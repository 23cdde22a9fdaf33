// Package aikor checks documents against GOST formatting requirements.
//
// An Engine parses PDF and DOCX files into a geometric model, runs the
// formatting rules over it, stores numbered errors and a rating per
// document, draws the errors onto page images and optionally asks a vision
// model for a second opinion.
package aikor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/workwise/aikor/batch"
	"github.com/workwise/aikor/cache"
	"github.com/workwise/aikor/export"
	"github.com/workwise/aikor/llm"
	"github.com/workwise/aikor/model"
	"github.com/workwise/aikor/parser"
	"github.com/workwise/aikor/render"
	"github.com/workwise/aikor/report"
	"github.com/workwise/aikor/rules"
	"github.com/workwise/aikor/store"
)

// Engine is the main entry point.
type Engine interface {
	// Parse reads a PDF or DOCX file, using the caches when enabled.
	Parse(ctx context.Context, path string) (*model.ParsedDocument, error)

	// ParseReader parses a stream. format is the extension ("pdf", "docx").
	ParseReader(ctx context.Context, r io.Reader, format, name string) (*model.ParsedDocument, error)

	// Ingest parses a file and stores its structure. Re-ingesting a path
	// keeps its document ID. Returns the document ID.
	Ingest(ctx context.Context, path string) (int64, error)

	// Check runs the rules over a stored document and persists the
	// numbered errors, the rating and a check run in one transaction.
	Check(ctx context.Context, documentID int64, opts ...CheckOption) (rules.Report, error)

	// CheckDocument runs the rules over an in-memory document without
	// persisting anything.
	CheckDocument(ctx context.Context, doc *model.ParsedDocument, opts ...CheckOption) (rules.Report, error)

	// Export renders a document in one of the export formats.
	Export(w io.Writer, doc *model.ParsedDocument, format string) error

	// SetPageImage records the raster image of a stored page.
	SetPageImage(ctx context.Context, documentID int64, pageNumber int, imagePath string) error

	// Render draws the stored errors onto the page images of a document.
	// Pages without errors, or whose image cannot be rendered, keep their
	// original image.
	Render(ctx context.Context, documentID int64) ([]render.PageResult, error)

	// Review asks the vision oracle for a verdict and stores it.
	Review(ctx context.Context, documentID int64) (*store.Review, error)

	// WriteReport writes the stored check results as an XLSX workbook.
	WriteReport(ctx context.Context, documentID int64, w io.Writer) error

	// Batch parses many files concurrently. Failures are per file.
	Batch(ctx context.Context, paths []string, progress batch.ProgressFunc) map[string]batch.Result

	// BatchDirectory parses every matching file in a directory.
	BatchDirectory(ctx context.Context, dir string, exts []string, recursive bool, progress batch.ProgressFunc) (map[string]batch.Result, error)

	GetDocument(ctx context.Context, documentID int64) (*store.Document, error)
	ListDocuments(ctx context.Context) ([]store.Document, error)
	Errors(ctx context.Context, documentID int64) ([]store.ErrorRecord, error)
	Delete(ctx context.Context, documentID int64) error

	// ClearCache empties the parse caches and returns the number of files
	// removed from disk.
	ClearCache() (int, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	Close() error
}

// Option configures New.
type Option func(*engineOptions)

type engineOptions struct {
	vision llm.Provider
}

// WithVisionProvider supplies the oracle's model client directly instead
// of building one from Config.Vision.
func WithVisionProvider(p llm.Provider) Option {
	return func(o *engineOptions) { o.vision = p }
}

// CheckOption adjusts a single check.
type CheckOption func(*checkOptions)

type checkOptions struct {
	codes []string
}

// WithRules runs only the given rule codes, in the given order.
func WithRules(codes ...string) CheckOption {
	return func(o *checkOptions) { o.codes = codes }
}

var tracer = otel.Tracer("github.com/workwise/aikor")

type engine struct {
	cfg      Config
	store    *store.Store
	parsers  *parser.Registry
	cached   *cache.Parser
	files    *cache.FileCache
	mem      *cache.MemoryCache
	rules    *rules.Engine
	renderer *render.Renderer
	batch    *batch.Processor
	oracle   *llm.Oracle
	closed   atomic.Bool
}

// New creates an engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := engineOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	ruleEngine, err := rules.NewEngineFromConfig(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	dbPath := cfg.resolveDBPath()
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	e := &engine{
		cfg:      cfg,
		store:    s,
		parsers:  parser.NewRegistry(parser.WithDOCXLayout(cfg.DOCX)),
		rules:    ruleEngine,
		renderer: render.New(cfg.Render.DPI),
	}

	if cfg.Cache.Enabled {
		e.files, err = cache.NewFileCache(cfg.resolveCacheDir(), cfg.Cache.MaxSizeMB)
		if err != nil {
			s.Close()
			return nil, err
		}
		e.mem = cache.NewMemoryCache(cfg.Cache.MemoryItems)
	}
	e.cached = cache.NewParser(e.parsers.Parse, e.mem, e.files)

	e.batch = batch.New(e.Parse,
		batch.WithWorkers(cfg.Batch.MaxWorkers),
		batch.WithFileTimeout(time.Duration(cfg.Batch.FileTimeoutSeconds)*time.Second))

	vision := o.vision
	if vision == nil && cfg.Vision.Provider != "" {
		vision, err = llm.NewProvider(cfg.Vision)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: vision: %v", ErrInvalidConfig, err)
		}
	}
	if vision != nil {
		e.oracle = llm.NewOracle(vision, cfg.Vision.Model)
	}

	slog.Info("aikor: engine ready", "db", dbPath, "cache", cfg.Cache.Enabled,
		"rules", len(ruleEngine.Rules()), "vision", e.oracle != nil)
	return e, nil
}

func (e *engine) live() error {
	if e.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// parseErr maps package errors onto the root sentinels.
func parseErr(path string, err error) error {
	if errors.Is(err, parser.ErrUnsupportedFormat) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return fmt.Errorf("%w: %v", ErrParsingFailed, err)
}

func (e *engine) Parse(ctx context.Context, path string) (doc *model.ParsedDocument, err error) {
	ctx, span := tracer.Start(ctx, "aikor.Parse",
		trace.WithAttributes(attribute.String("path", path), attribute.String("format", parser.Detect(path))))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	doc, cached, err := e.cached.Parse(ctx, path)
	if err != nil {
		return nil, parseErr(path, err)
	}
	span.SetAttributes(attribute.Int("pages", len(doc.Pages)), attribute.Bool("cached", cached))
	slog.Debug("aikor: parsed", "path", path, "pages", len(doc.Pages), "cached", cached,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return doc, nil
}

func (e *engine) ParseReader(ctx context.Context, r io.Reader, format, name string) (doc *model.ParsedDocument, err error) {
	ctx, span := tracer.Start(ctx, "aikor.ParseReader",
		trace.WithAttributes(attribute.String("name", name), attribute.String("format", format)))
	defer func() { endSpan(span, err) }()

	doc, err = e.parsers.ParseReader(ctx, r, format, name)
	if err != nil {
		return nil, parseErr(name, err)
	}
	return doc, nil
}

func (e *engine) Ingest(ctx context.Context, path string) (int64, error) {
	if err := e.live(); err != nil {
		return 0, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}
	doc, err := e.Parse(ctx, absPath)
	if err != nil {
		return 0, err
	}
	id, err := e.store.SaveDocument(ctx, absPath, doc)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	slog.Info("aikor: document ingested", "document_id", id, "path", absPath,
		"pages", doc.Metadata.TotalPages, "blocks", doc.TotalBlocks())
	return id, nil
}

func (e *engine) ruleEngine(opts []CheckOption) (*rules.Engine, error) {
	var o checkOptions
	for _, fn := range opts {
		fn(&o)
	}
	if len(o.codes) == 0 {
		return e.rules, nil
	}
	c := e.cfg.Rules
	c.Enabled = o.codes
	re, err := rules.NewEngineFromConfig(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return re, nil
}

func (e *engine) Check(ctx context.Context, documentID int64, opts ...CheckOption) (rep rules.Report, err error) {
	ctx, span := tracer.Start(ctx, "aikor.Check", trace.WithAttributes(attribute.Int64("document_id", documentID)))
	defer func() { endSpan(span, err) }()

	if err := e.live(); err != nil {
		return rules.Report{}, err
	}
	re, err := e.ruleEngine(opts)
	if err != nil {
		return rules.Report{}, err
	}
	doc, err := e.store.Structure(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return rules.Report{}, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return rules.Report{}, fmt.Errorf("%w: %v", ErrNoStructure, err)
	}

	rep, err = re.CheckAndSave(ctx, e.store, documentID, doc)
	switch {
	case errors.Is(err, rules.ErrNoStructure):
		return rep, fmt.Errorf("%w: document %d", ErrNoStructure, documentID)
	case err != nil:
		slog.Error("aikor: saving check failed", "document_id", documentID, "error", err)
		return rep, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	span.SetAttributes(attribute.Float64("rating", rep.Rating), attribute.Int("errors", rep.TotalErrors))
	return rep, nil
}

func (e *engine) CheckDocument(ctx context.Context, doc *model.ParsedDocument, opts ...CheckOption) (rep rules.Report, err error) {
	_, span := tracer.Start(ctx, "aikor.CheckDocument")
	defer func() { endSpan(span, err) }()

	re, err := e.ruleEngine(opts)
	if err != nil {
		return rules.Report{}, err
	}
	rep = re.CheckDocument(doc)
	if !rep.Success {
		return rep, ErrNoStructure
	}
	span.SetAttributes(attribute.Float64("rating", rep.Rating), attribute.Int("errors", rep.TotalErrors))
	return rep, nil
}

func (e *engine) Export(w io.Writer, doc *model.ParsedDocument, format string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	return export.Write(w, doc, f, export.DefaultOptions())
}

func (e *engine) SetPageImage(ctx context.Context, documentID int64, pageNumber int, imagePath string) error {
	if err := e.live(); err != nil {
		return err
	}
	err := e.store.SetPageImage(ctx, documentID, pageNumber, imagePath)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: document %d page %d", ErrPageNotFound, documentID, pageNumber)
	}
	return err
}

func (e *engine) Render(ctx context.Context, documentID int64) (results []render.PageResult, err error) {
	ctx, span := tracer.Start(ctx, "aikor.Render", trace.WithAttributes(attribute.Int64("document_id", documentID)))
	defer func() { endSpan(span, err) }()

	if err := e.live(); err != nil {
		return nil, err
	}
	if _, err := e.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	pages, err := e.store.Pages(ctx, documentID)
	if err != nil {
		return nil, err
	}
	errs, err := e.store.Errors(ctx, documentID)
	if err != nil {
		return nil, err
	}

	marks := make(map[int][]render.Mark)
	for _, r := range errs {
		marks[r.PageNumber] = append(marks[r.PageNumber], render.Mark{Number: r.ErrorNumber, Severity: r.Severity, BBox: r.BBox})
	}
	var in []render.Page
	for _, p := range pages {
		if p.ImagePath == "" {
			continue
		}
		in = append(in, render.Page{Number: p.PageNumber, ImagePath: p.ImagePath, Marks: marks[p.PageNumber]})
	}

	results = e.renderer.RenderAll(ctx, in)
	annotated := make(map[int]string, len(results))
	for _, r := range results {
		if r.Rendered {
			annotated[r.Number] = r.Path
		}
	}
	// Pages that were not rendered this time lose any annotated image left
	// over from an earlier check.
	for _, p := range pages {
		path := annotated[p.PageNumber]
		if path == p.ImageWithErrorsPath {
			continue
		}
		if err := e.store.SetPageErrorsImage(ctx, documentID, p.PageNumber, path); err != nil {
			slog.Warn("aikor: recording rendered page failed", "document_id", documentID, "page", p.PageNumber, "error", err)
		}
	}
	rendered := len(annotated)
	span.SetAttributes(attribute.Int("pages", len(in)), attribute.Int("rendered", rendered))
	slog.Info("aikor: render complete", "document_id", documentID, "pages", len(in), "rendered", rendered)
	return results, nil
}

func (e *engine) Review(ctx context.Context, documentID int64) (*store.Review, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	if e.oracle == nil {
		return nil, ErrVisionRequired
	}
	d, err := e.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	doc, err := e.store.Structure(ctx, documentID)
	if err != nil {
		return nil, err
	}
	pages, err := e.store.Pages(ctx, documentID)
	if err != nil {
		return nil, err
	}
	errs, err := e.store.Errors(ctx, documentID)
	if err != nil {
		return nil, err
	}

	in := llm.ReviewInput{Filename: d.Filename, Findings: summarizeErrors(errs)}
	if doc != nil {
		in.StructuredText = export.StructuredText(doc, export.DefaultTextOptions())
	}
	for _, p := range pages {
		if p.ImagePath != "" {
			in.Pages = append(in.Pages, llm.PageImage{Number: p.PageNumber, Path: p.ImagePath})
		}
	}

	r, err := e.oracle.Review(ctx, in)
	if err != nil {
		return nil, err
	}
	rev := store.Review{DocumentID: documentID, Verdict: string(r.Verdict), ReportText: r.ReportText, Model: r.Model}
	if err := e.store.SaveReview(ctx, rev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return e.store.GetReview(ctx, documentID)
}

func summarizeErrors(errs []store.ErrorRecord) string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range errs {
		fmt.Fprintf(&b, "%d. page %d, %s: %s\n", r.ErrorNumber, r.PageNumber, r.Severity, r.Message)
	}
	return b.String()
}

func (e *engine) WriteReport(ctx context.Context, documentID int64, w io.Writer) error {
	if err := e.live(); err != nil {
		return err
	}
	d, err := e.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	errs, err := e.store.Errors(ctx, documentID)
	if err != nil {
		return err
	}
	runs, err := e.store.CheckRuns(ctx, documentID)
	if err != nil {
		return err
	}

	in := report.Input{Document: d.Filename}
	if len(runs) > 0 && runs[0].Results != nil {
		last := runs[0]
		in.Report = rules.Report{Success: last.Success, Results: last.Results, TotalErrors: last.TotalErrors, Rating: last.Rating}
	} else {
		in.Report = storedReport(e.rules.Rules(), errs)
		if d.Rating != nil {
			in.Report.Rating = *d.Rating
		}
	}
	if len(runs) > 0 {
		in.Report.Success = runs[0].Success
		in.Report.RunID = runs[0].ID
		if t, err := time.Parse(time.RFC3339Nano, runs[0].FinishedAt); err == nil {
			in.CheckedAt = t
		}
	}
	return report.Write(w, in)
}

// storedReport rebuilds per-rule results from persisted errors, for runs
// saved without their results. Rules that are configured but have no
// stored errors count as passed.
func storedReport(configured []rules.Rule, errs []store.ErrorRecord) rules.Report {
	byCode := make(map[string][]rules.RuleError)
	names := make(map[string]string)
	var order []string
	for _, r := range errs {
		if _, ok := byCode[r.RuleCode]; !ok {
			order = append(order, r.RuleCode)
			names[r.RuleCode] = r.RuleName
		}
		byCode[r.RuleCode] = append(byCode[r.RuleCode], rules.RuleError{
			PageNumber: r.PageNumber, Message: r.Message, Severity: r.Severity,
			BBox: r.BBox, BlockID: r.BlockID, Extra: r.Extra,
		})
	}

	rep := rules.Report{Success: true, TotalErrors: len(errs)}
	seen := make(map[string]bool)
	for _, rule := range configured {
		code := rule.Code()
		if seen[code] {
			continue
		}
		seen[code] = true
		es := byCode[code]
		if es == nil {
			es = []rules.RuleError{}
		}
		rep.Results = append(rep.Results, rules.RuleResult{RuleName: rule.Name(), RuleCode: code, Passed: len(es) == 0, Errors: es})
	}
	for _, code := range order {
		if !seen[code] {
			rep.Results = append(rep.Results, rules.RuleResult{RuleName: names[code], RuleCode: code, Errors: byCode[code]})
		}
	}
	return rep
}

func (e *engine) Batch(ctx context.Context, paths []string, progress batch.ProgressFunc) map[string]batch.Result {
	return e.batch.ProcessBatch(ctx, paths, progress)
}

func (e *engine) BatchDirectory(ctx context.Context, dir string, exts []string, recursive bool, progress batch.ProgressFunc) (map[string]batch.Result, error) {
	return e.batch.ProcessDirectory(ctx, dir, exts, recursive, progress)
}

func (e *engine) GetDocument(ctx context.Context, documentID int64) (*store.Document, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	d, err := e.store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	return d, err
}

func (e *engine) ListDocuments(ctx context.Context) ([]store.Document, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	return e.store.ListDocuments(ctx)
}

func (e *engine) Errors(ctx context.Context, documentID int64) ([]store.ErrorRecord, error) {
	if _, err := e.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return e.store.Errors(ctx, documentID)
}

func (e *engine) Delete(ctx context.Context, documentID int64) error {
	if err := e.live(); err != nil {
		return err
	}
	err := e.store.DeleteDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	return err
}

func (e *engine) ClearCache() (int, error) {
	if e.mem != nil {
		e.mem.Clear()
	}
	if e.files == nil {
		return 0, nil
	}
	return e.files.Clear()
}

func (e *engine) Store() *store.Store {
	return e.store
}

func (e *engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return e.store.Close()
}
