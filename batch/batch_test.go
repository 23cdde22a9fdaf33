package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workwise/aikor/model"
	"github.com/workwise/aikor/parser"
	"github.com/workwise/aikor/parser/parsertest"
)

func fakeParse(ctx context.Context, path string) (*model.ParsedDocument, error) {
	if strings.Contains(path, "bad") {
		return nil, errors.New("corrupt file")
	}
	return &model.ParsedDocument{Metadata: model.DocumentMetadata{Filename: filepath.Base(path)}}, nil
}

func touchFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
}

// ---------------------------------------------------------------------------
// ProcessBatch
// ---------------------------------------------------------------------------

func TestProcessBatchRecordsEachFile(t *testing.T) {
	p := New(fakeParse, WithWorkers(3))
	paths := []string{"a.pdf", "bad.pdf", "c.docx", "a.pdf"}

	var (
		mu    sync.Mutex
		calls []int
	)
	results := p.ProcessBatch(context.Background(), paths, func(completed, total int, path string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		calls = append(calls, completed)
	})

	require.Len(t, results, 3)
	assert.True(t, results["a.pdf"].OK())
	assert.Equal(t, "a.pdf", results["a.pdf"].Doc.Metadata.Filename)
	assert.Equal(t, "Error: corrupt file", results["bad.pdf"].ErrorString())
	assert.Nil(t, results["bad.pdf"].Doc)
	assert.Equal(t, []int{1, 2, 3}, calls)

	docs, failures := Split(results)
	assert.Len(t, docs, 2)
	assert.Equal(t, map[string]string{"bad.pdf": "Error: corrupt file"}, failures)
}

func TestProcessBatchEmpty(t *testing.T) {
	results := New(fakeParse).ProcessBatch(context.Background(), nil, nil)
	assert.Empty(t, results)
}

func TestProcessBatchBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	parse := func(ctx context.Context, path string) (*model.ParsedDocument, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return &model.ParsedDocument{}, nil
	}

	var paths []string
	for i := 0; i < 12; i++ {
		paths = append(paths, filepath.Join("dir", string(rune('a'+i))+".pdf"))
	}
	results := New(parse, WithWorkers(2)).ProcessBatch(context.Background(), paths, nil)
	assert.Len(t, results, 12)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestProcessBatchContainsPanics(t *testing.T) {
	parse := func(ctx context.Context, path string) (*model.ParsedDocument, error) {
		if path == "boom.pdf" {
			panic("broken xref")
		}
		return &model.ParsedDocument{}, nil
	}
	results := New(parse).ProcessBatch(context.Background(), []string{"boom.pdf", "ok.pdf"}, nil)
	assert.True(t, results["ok.pdf"].OK())
	require.Error(t, results["boom.pdf"].Err)
	assert.Contains(t, results["boom.pdf"].ErrorString(), "broken xref")
}

func TestProcessBatchNilDocumentIsFailure(t *testing.T) {
	parse := func(context.Context, string) (*model.ParsedDocument, error) { return nil, nil }
	results := New(parse).ProcessBatch(context.Background(), []string{"x.pdf"}, nil)
	assert.False(t, results["x.pdf"].OK())
}

func TestProcessBatchFileTimeout(t *testing.T) {
	parse := func(ctx context.Context, path string) (*model.ParsedDocument, error) {
		if path == "slow.pdf" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &model.ParsedDocument{}, nil
	}
	p := New(parse, WithFileTimeout(20*time.Millisecond))
	results := p.ProcessBatch(context.Background(), []string{"slow.pdf", "fast.pdf"}, nil)
	assert.ErrorIs(t, results["slow.pdf"].Err, context.DeadlineExceeded)
	assert.True(t, results["fast.pdf"].OK())
}

func TestProcessBatchFileTimeoutIsCooperative(t *testing.T) {
	parse := func(ctx context.Context, path string) (*model.ParsedDocument, error) {
		time.Sleep(40 * time.Millisecond)
		return &model.ParsedDocument{}, nil
	}
	p := New(parse, WithFileTimeout(10*time.Millisecond))
	results := p.ProcessBatch(context.Background(), []string{"big.pdf"}, nil)
	assert.True(t, results["big.pdf"].OK(), "a parse that ignores its deadline still completes")
}

func TestProcessBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := New(fakeParse).ProcessBatch(ctx, []string{"a.pdf", "b.pdf"}, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestWorkersDefault(t *testing.T) {
	assert.Positive(t, New(fakeParse).Workers())
	assert.Positive(t, New(fakeParse, WithWorkers(0)).Workers())
	assert.Equal(t, 5, New(fakeParse, WithWorkers(5)).Workers())
}

// ---------------------------------------------------------------------------
// Directory scanning
// ---------------------------------------------------------------------------

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	touchFiles(t, dir, "b.pdf", "a.DOCX", "notes.txt", "sub/c.pdf", "sub/deep/d.docx")

	tests := []struct {
		name      string
		exts      []string
		recursive bool
		want      []string
	}{
		{"defaults", nil, false, []string{"a.DOCX", "b.pdf"}},
		{"recursive", nil, true, []string{"a.DOCX", "b.pdf", "sub/c.pdf", "sub/deep/d.docx"}},
		{"no dot", []string{"pdf"}, true, []string{"b.pdf", "sub/c.pdf"}},
		{"other ext", []string{".txt"}, false, []string{"notes.txt"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Collect(dir, tc.exts, tc.recursive)
			require.NoError(t, err)
			var rel []string
			for _, g := range got {
				r, err := filepath.Rel(dir, g)
				require.NoError(t, err)
				rel = append(rel, filepath.ToSlash(r))
			}
			assert.Equal(t, tc.want, rel)
		})
	}

	_, err := Collect(filepath.Join(dir, "missing"), nil, false)
	assert.Error(t, err)
}

func TestProcessDirectoryWithRegistry(t *testing.T) {
	dir := t.TempDir()
	pdf := parsertest.PDF(parsertest.PDFInfo{Title: "Report"}, parsertest.Page{
		Texts: []parsertest.Text{{Font: parsertest.Regular, Size: 12, X: 85, Y: 700, S: "Hello"}},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.pdf"), pdf, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("%PDF-1.4 garbage"), 0o644))

	reg := parser.NewRegistry()
	p := New(reg.Parse, WithWorkers(2))

	var last int
	results, err := p.ProcessDirectory(context.Background(), dir, nil, false, func(completed, total int, path string) {
		last = completed
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, last)

	good := results[filepath.Join(dir, "good.pdf")]
	require.True(t, good.OK(), good.ErrorString())
	assert.Equal(t, 1, good.Doc.Metadata.TotalPages)

	broken := results[filepath.Join(dir, "broken.pdf")]
	assert.False(t, broken.OK())
	assert.True(t, strings.HasPrefix(broken.ErrorString(), "Error: "))
}
