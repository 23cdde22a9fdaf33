// Package batch parses many documents concurrently. Every file is an
// independent unit: a failure is recorded against its path and never
// stops the rest of the batch.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/workwise/aikor/model"
)

// DefaultExtensions are scanned by ProcessDirectory when none are given.
var DefaultExtensions = []string{".pdf", ".docx"}

// ParseFunc parses the document at path.
type ParseFunc func(ctx context.Context, path string) (*model.ParsedDocument, error)

// ProgressFunc is called after each file finishes, successfully or not.
// Calls are serialized.
type ProgressFunc func(completed, total int, path string)

// Result is the outcome for one file. Exactly one of Doc and Err is set.
type Result struct {
	Path string               `json:"path"`
	Doc  *model.ParsedDocument `json:"document,omitempty"`
	Err  error                `json:"-"`
}

// OK reports whether the file parsed.
func (r Result) OK() bool { return r.Err == nil }

// ErrorString renders a failure as "Error: <msg>", or "" on success.
func (r Result) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return "Error: " + r.Err.Error()
}

// Processor runs a ParseFunc over batches of files with bounded concurrency.
type Processor struct {
	parse   ParseFunc
	workers int
	timeout time.Duration
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers bounds the number of files parsed at once. n <= 0 uses the
// number of CPUs.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithFileTimeout sets a deadline on the context passed to each parse. The
// deadline is cooperative: parsers check it between pages or paragraphs, so
// a single very large page can run past it, and a parse that ignores the
// context finishes normally. A parse that returns the deadline error is
// recorded as a failure for that file. Zero means no limit.
func WithFileTimeout(d time.Duration) Option {
	return func(p *Processor) { p.timeout = d }
}

func New(parse ParseFunc, opts ...Option) *Processor {
	p := &Processor{parse: parse, workers: runtime.NumCPU()}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Processor) Workers() int { return p.workers }

// ProcessBatch parses every path and returns the results keyed by path.
// Duplicate paths are parsed once. Files not yet started when ctx is
// cancelled are recorded with ctx.Err().
func (p *Processor) ProcessBatch(ctx context.Context, paths []string, progress ProgressFunc) map[string]Result {
	unique := dedupe(paths)
	results := make(map[string]Result, len(unique))
	if len(unique) == 0 {
		return results
	}

	var (
		mu        sync.Mutex
		completed int
		failed    int
		start     = time.Now()
		total     = len(unique)
	)

	record := func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		results[r.Path] = r
		completed++
		if r.Err != nil {
			failed++
		}
		if progress != nil {
			progress(completed, total, r.Path)
		}
	}

	slog.Info("batch: starting", "files", total, "workers", p.workers)

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for _, path := range unique {
		if ctx.Err() != nil {
			record(Result{Path: path, Err: ctx.Err()})
			continue
		}
		g.Go(func() error {
			record(p.one(ctx, path))
			return nil
		})
	}
	g.Wait()

	slog.Info("batch: done",
		"files", total, "failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return results
}

func (p *Processor) one(ctx context.Context, path string) (res Result) {
	res.Path = path
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res.Doc = nil
			res.Err = fmt.Errorf("panic while parsing: %v", r)
			slog.Warn("batch: parser panicked", "path", path, "panic", r)
		}
	}()

	t := time.Now()
	doc, err := p.parse(ctx, path)
	switch {
	case err != nil:
		res.Err = err
	case doc == nil:
		res.Err = fmt.Errorf("parser returned no document")
	default:
		res.Doc = doc
	}
	if res.Err != nil {
		slog.Warn("batch: file failed", "path", path, "error", res.Err)
	} else {
		slog.Debug("batch: file parsed", "path", path, "pages", len(doc.Pages),
			"elapsed", time.Since(t).Round(time.Millisecond))
	}
	return res
}

// ProcessDirectory parses every file in dir whose extension is in exts
// (case-insensitive, leading dot optional). An empty exts uses
// DefaultExtensions. Subdirectories are scanned when recursive is set.
func (p *Processor) ProcessDirectory(ctx context.Context, dir string, exts []string, recursive bool, progress ProgressFunc) (map[string]Result, error) {
	paths, err := Collect(dir, exts, recursive)
	if err != nil {
		return nil, err
	}
	slog.Info("batch: scanned directory", "dir", dir, "recursive", recursive, "files", len(paths))
	return p.ProcessBatch(ctx, paths, progress), nil
}

// Collect lists the matching files under dir in lexical order.
func Collect(dir string, exts []string, recursive bool) ([]string, error) {
	want := normalizeExts(exts)

	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if want[strings.ToLower(filepath.Ext(path))] {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch: scanning %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

func normalizeExts(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = true
	}
	return m
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Split separates the parsed documents from the failures.
func Split(results map[string]Result) (docs map[string]*model.ParsedDocument, failures map[string]string) {
	docs = make(map[string]*model.ParsedDocument)
	failures = make(map[string]string)
	for path, r := range results {
		if r.Err != nil {
			failures[path] = r.ErrorString()
		} else {
			docs[path] = r.Doc
		}
	}
	return docs, failures
}
