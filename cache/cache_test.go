package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workwise/aikor/model"
)

func sampleDoc(name string) *model.ParsedDocument {
	span := model.TextSpan{
		Text:  "Введение",
		Style: model.TextStyle{FontName: "Times New Roman", FontSize: 14, FontWeight: model.WeightBold, FontStyle: model.SlantNormal, Color: "#000000"},
		BBox:  model.NewBBox(85, 60, 200, 74),
	}
	return &model.ParsedDocument{
		Metadata: model.DocumentMetadata{Filename: name, Type: model.TypePDF, TotalPages: 1, FileSize: 10},
		Pages: []model.DocumentPage{{
			Info: model.PageInfo{PageNumber: 1, Width: 595, Height: 842},
			Blocks: []model.TextBlock{{
				ID:         "p1_b0",
				Type:       model.BlockHeading,
				Lines:      []model.TextLine{{Spans: []model.TextSpan{span}, BBox: span.BBox}},
				BBox:       span.BBox,
				PageNumber: 1,
			}},
		}},
	}
}

func sourceFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// touch moves the modification time forward so the file looks edited.
func touch(t *testing.T, path string, d time.Duration) {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	mt := fi.ModTime().Add(d)
	require.NoError(t, os.Chtimes(path, mt, mt))
}

// ---------------------------------------------------------------------------
// FileCache
// ---------------------------------------------------------------------------

func TestKeyStableAndSensitiveToChanges(t *testing.T) {
	dir := t.TempDir()
	path := sourceFile(t, dir, "a.pdf", "one")

	k1 := Key(path)
	assert.Len(t, k1, 16)
	assert.Equal(t, k1, Key(path))

	touch(t, path, time.Minute)
	k2 := Key(path)
	assert.NotEqual(t, k1, k2)

	require.NoError(t, os.WriteFile(path, []byte("one more"), 0o644))
	assert.NotEqual(t, k2, Key(path))

	missing := filepath.Join(dir, "missing.pdf")
	assert.Len(t, Key(missing), 16)
	assert.Equal(t, Key(missing), Key(missing))
}

func TestFileCacheRoundTrip(t *testing.T) {
	c, err := NewFileCache(filepath.Join(t.TempDir(), "cache"), 0)
	require.NoError(t, err)
	src := sourceFile(t, t.TempDir(), "doc.pdf", "pdf bytes")

	_, ok := c.Get(src)
	assert.False(t, ok)

	want := sampleDoc("doc.pdf")
	require.NoError(t, c.Set(src, want))

	got, ok := c.Get(src)
	require.True(t, ok)
	assert.Equal(t, want, got)

	touch(t, src, time.Minute)
	_, ok = c.Get(src)
	assert.False(t, ok, "modified file must miss")
}

func TestFileCacheDropsCorruptedEntry(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0)
	require.NoError(t, err)
	src := sourceFile(t, t.TempDir(), "doc.pdf", "x")

	entry := filepath.Join(c.Dir(), Key(src)+".json")
	require.NoError(t, os.WriteFile(entry, []byte("{not json"), 0o644))

	_, ok := c.Get(src)
	assert.False(t, ok)
	assert.NoFileExists(t, entry)
}

func TestFileCacheInvalidateAndClear(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0)
	require.NoError(t, err)
	srcDir := t.TempDir()
	a := sourceFile(t, srcDir, "a.pdf", "a")
	b := sourceFile(t, srcDir, "b.pdf", "b")

	require.NoError(t, c.Set(a, sampleDoc("a.pdf")))
	require.NoError(t, c.Set(b, sampleDoc("b.pdf")))

	assert.True(t, c.Invalidate(a))
	assert.False(t, c.Invalidate(a))

	// Files that are not cache entries survive Clear.
	require.NoError(t, os.WriteFile(filepath.Join(c.Dir(), "notes.txt"), []byte("keep"), 0o644))

	n, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, filepath.Join(c.Dir(), "notes.txt"))

	size, err := c.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestFileCacheEvictsOldestEntries(t *testing.T) {
	dir := t.TempDir()
	srcDir := t.TempDir()

	sizer, err := NewFileCache(t.TempDir(), 0)
	require.NoError(t, err)
	first := sourceFile(t, srcDir, "d0.pdf", "0")
	require.NoError(t, sizer.Set(first, sampleDoc("d0.pdf")))
	entrySize, err := sizer.Size()
	require.NoError(t, err)
	require.Positive(t, entrySize)

	// Room for a little over three entries.
	limitMB := float64(entrySize*3+entrySize/2) / (1024 * 1024)
	c, err := NewFileCache(dir, limitMB)
	require.NoError(t, err)

	var paths []string
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		name := "d" + string(rune('0'+i)) + ".pdf"
		p := sourceFile(t, srcDir, name, name)
		paths = append(paths, p)
		require.NoError(t, c.Set(p, sampleDoc(name)))
		// Give each entry a distinct write time, oldest first.
		entry := filepath.Join(dir, Key(p)+".json")
		mt := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(entry, mt, mt))
	}

	// Four entries exceed the limit; the next Set trims to 80% first.
	p := sourceFile(t, srcDir, "d4.pdf", "d4.pdf")
	require.NoError(t, c.Set(p, sampleDoc("d4.pdf")))

	_, ok := c.Get(paths[0])
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get(paths[1])
	assert.False(t, ok, "second oldest entry should be evicted")
	_, ok = c.Get(paths[3])
	assert.True(t, ok)
	_, ok = c.Get(p)
	assert.True(t, ok)
}

// ---------------------------------------------------------------------------
// MemoryCache
// ---------------------------------------------------------------------------

func TestMemoryCacheLRU(t *testing.T) {
	dir := t.TempDir()
	c := NewMemoryCache(2)
	a := sourceFile(t, dir, "a.pdf", "a")
	b := sourceFile(t, dir, "b.pdf", "b")
	d := sourceFile(t, dir, "c.pdf", "c")

	c.Set(a, sampleDoc("a.pdf"))
	c.Set(b, sampleDoc("b.pdf"))
	_, ok := c.Get(a) // a is now most recent
	require.True(t, ok)

	c.Set(d, sampleDoc("c.pdf"))
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get(b)
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get(a)
	assert.True(t, ok)

	touch(t, a, time.Minute)
	_, ok = c.Get(a)
	assert.False(t, ok, "modified file must miss")

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestMemoryCacheSkipsMissingFiles(t *testing.T) {
	c := NewMemoryCache(0)
	missing := filepath.Join(t.TempDir(), "gone.pdf")
	c.Set(missing, sampleDoc("gone.pdf"))
	assert.Zero(t, c.Len())
	_, ok := c.Get(missing)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

func TestParserUsesCachesInOrder(t *testing.T) {
	src := sourceFile(t, t.TempDir(), "doc.pdf", "bytes")
	var calls atomic.Int32
	parse := func(ctx context.Context, path string) (*model.ParsedDocument, error) {
		calls.Add(1)
		return sampleDoc(filepath.Base(path)), nil
	}

	files, err := NewFileCache(t.TempDir(), 0)
	require.NoError(t, err)
	mem := NewMemoryCache(10)
	p := NewParser(parse, mem, files)
	ctx := context.Background()

	doc, cached, err := p.Parse(ctx, src)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "doc.pdf", doc.Metadata.Filename)

	_, cached, err = p.Parse(ctx, src)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.EqualValues(t, 1, calls.Load())

	// A fresh memory cache falls back to the file cache and refills.
	p2 := NewParser(parse, NewMemoryCache(10), files)
	_, cached, err = p2.Parse(ctx, src)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.EqualValues(t, 1, calls.Load())

	p.Invalidate(src)
	_, cached, err = p.Parse(ctx, src)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.EqualValues(t, 2, calls.Load())
}

func TestParserErrorsAreNotCached(t *testing.T) {
	src := sourceFile(t, t.TempDir(), "bad.pdf", "bytes")
	boom := errors.New("boom")
	p := NewParser(func(context.Context, string) (*model.ParsedDocument, error) {
		return nil, boom
	}, NewMemoryCache(1), nil)

	_, _, err := p.Parse(context.Background(), src)
	require.ErrorIs(t, err, boom)

	p = NewParser(func(context.Context, string) (*model.ParsedDocument, error) {
		return nil, nil
	}, nil, nil)
	_, _, err = p.Parse(context.Background(), src)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no document"))
}
