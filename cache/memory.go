package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/workwise/aikor/model"
)

// DefaultMemoryItems is the default capacity of a MemoryCache.
const DefaultMemoryItems = 100

type memoryKey struct {
	path    string
	modTime int64
}

// MemoryCache is a fixed-size LRU of parsed documents. It is safe for
// concurrent use.
type MemoryCache struct {
	lru *lru.Cache[memoryKey, *model.ParsedDocument]
}

// NewMemoryCache returns a cache holding at most maxItems documents.
// maxItems <= 0 uses DefaultMemoryItems.
func NewMemoryCache(maxItems int) *MemoryCache {
	if maxItems <= 0 {
		maxItems = DefaultMemoryItems
	}
	c, err := lru.New[memoryKey, *model.ParsedDocument](maxItems)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &MemoryCache{lru: c}
}

func memKey(path string) (memoryKey, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return memoryKey{}, false
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return memoryKey{}, false
	}
	return memoryKey{path: abs, modTime: fi.ModTime().UnixNano()}, true
}

// Get returns the cached document of path if the file is unchanged.
func (c *MemoryCache) Get(path string) (*model.ParsedDocument, bool) {
	k, ok := memKey(path)
	if !ok {
		return nil, false
	}
	return c.lru.Get(k)
}

// Set caches doc for path, evicting the least recently used entry when full.
// Files that cannot be stat'ed are not cached.
func (c *MemoryCache) Set(path string, doc *model.ParsedDocument) {
	if k, ok := memKey(path); ok {
		c.lru.Add(k, doc)
	}
}

func (c *MemoryCache) Len() int { return c.lru.Len() }

func (c *MemoryCache) Clear() { c.lru.Purge() }

// ParseFunc parses the document at path.
type ParseFunc func(ctx context.Context, path string) (*model.ParsedDocument, error)

// Parser serves parses from the memory cache, then the file cache, then
// the wrapped parse function, filling the caches on the way back. Either
// cache may be nil.
type Parser struct {
	parse ParseFunc
	mem   *MemoryCache
	files *FileCache
}

func NewParser(parse ParseFunc, mem *MemoryCache, files *FileCache) *Parser {
	return &Parser{parse: parse, mem: mem, files: files}
}

// Parse returns the parse of path and whether it came from a cache.
func (p *Parser) Parse(ctx context.Context, path string) (*model.ParsedDocument, bool, error) {
	if p.mem != nil {
		if doc, ok := p.mem.Get(path); ok {
			return doc, true, nil
		}
	}
	if p.files != nil {
		if doc, ok := p.files.Get(path); ok {
			if p.mem != nil {
				p.mem.Set(path, doc)
			}
			return doc, true, nil
		}
	}

	doc, err := p.parse(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if doc == nil {
		return nil, false, fmt.Errorf("cache: parser returned no document for %s", path)
	}
	if p.mem != nil {
		p.mem.Set(path, doc)
	}
	if p.files != nil {
		if err := p.files.Set(path, doc); err != nil {
			slog.Warn("cache: storing parse failed", "path", path, "error", err)
		}
	}
	return doc, false, nil
}

// Invalidate drops path from both caches.
func (p *Parser) Invalidate(path string) {
	if p.mem != nil {
		if k, ok := memKey(path); ok {
			p.mem.lru.Remove(k)
		}
	}
	if p.files != nil {
		p.files.Invalidate(path)
	}
}
