// Package cache avoids re-parsing unchanged files. FileCache keeps parsed
// documents as JSON on disk; MemoryCache is a bounded in-process LRU.
// Both key entries on the file's resolved path and modification time, so
// an edited file is a miss.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/workwise/aikor/export"
	"github.com/workwise/aikor/model"
)

const entryExt = ".json"

// FileCache stores one JSON file per document in a directory. When the
// directory outgrows MaxBytes, the least recently written entries are
// removed until it is under 80% of the limit.
type FileCache struct {
	dir      string
	maxBytes int64
	mu       sync.Mutex
}

// NewFileCache creates dir if needed. maxSizeMB <= 0 disables eviction.
func NewFileCache(dir string, maxSizeMB float64) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cache: creating %s: %w", dir, err)
	}
	return &FileCache{dir: dir, maxBytes: int64(maxSizeMB * 1024 * 1024)}, nil
}

func (c *FileCache) Dir() string { return c.dir }

// Key derives the cache key of a source file from its absolute path, size
// and modification time. Files that cannot be stat'ed are keyed by path.
func Key(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	data := abs
	if fi, err := os.Stat(abs); err == nil {
		data = fmt.Sprintf("%s:%d:%d", abs, fi.Size(), fi.ModTime().UnixNano())
	}
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:16]
}

func (c *FileCache) entry(path string) string {
	return filepath.Join(c.dir, Key(path)+entryExt)
}

// Get returns the cached parse of path. Corrupted entries are deleted and
// reported as a miss.
func (c *FileCache) Get(path string) (*model.ParsedDocument, bool) {
	name := c.entry(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, false
	}
	doc, err := export.FromJSON(data)
	if err != nil {
		slog.Warn("cache: dropping corrupted entry", "path", path, "entry", name, "error", err)
		os.Remove(name)
		return nil, false
	}
	return doc, true
}

// Set stores doc as the parse of path.
func (c *FileCache) Set(path string, doc *model.ParsedDocument) error {
	data, err := export.JSON(doc, true)
	if err != nil {
		return fmt.Errorf("cache: encoding %s: %w", path, err)
	}
	name := c.entry(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evict()

	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: writing %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: writing %s: %w", path, err)
	}
	slog.Debug("cache: stored", "path", path, "entry", name, "bytes", len(data))
	return nil
}

// Invalidate removes the entry of path and reports whether one existed.
func (c *FileCache) Invalidate(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.Remove(c.entry(path)) == nil
}

// Clear removes every entry and returns how many were removed.
func (c *FileCache) Clear() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.entries()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if os.Remove(e.path) == nil {
			n++
		}
	}
	slog.Info("cache: cleared", "dir", c.dir, "entries", n)
	return n, nil
}

// Size returns the total size of all entries in bytes.
func (c *FileCache) Size() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.entries()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.size
	}
	return total, nil
}

type cacheFile struct {
	path    string
	size    int64
	modTime int64
}

func (c *FileCache) entries() ([]cacheFile, error) {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("cache: listing %s: %w", c.dir, err)
	}
	var out []cacheFile
	for _, de := range des {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entryExt) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, cacheFile{
			path:    filepath.Join(c.dir, de.Name()),
			size:    fi.Size(),
			modTime: fi.ModTime().UnixNano(),
		})
	}
	return out, nil
}

// evict must be called with mu held.
func (c *FileCache) evict() {
	if c.maxBytes <= 0 {
		return
	}
	entries, err := c.entries()
	if err != nil {
		slog.Warn("cache: eviction skipped", "error", err)
		return
	}
	var total int64
	for _, e := range entries {
		total += e.size
	}
	if total <= c.maxBytes {
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime < entries[j].modTime })
	target := c.maxBytes * 8 / 10
	for _, e := range entries {
		if total <= target {
			break
		}
		if err := os.Remove(e.path); err != nil {
			continue
		}
		total -= e.size
		slog.Debug("cache: evicted", "entry", e.path)
	}
}
