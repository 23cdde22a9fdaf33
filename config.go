package aikor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/workwise/aikor/llm"
	"github.com/workwise/aikor/parser"
	"github.com/workwise/aikor/rules"
)

// Config holds all configuration for the aikor engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.aikor/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the database file name without extension, used when DBPath
	// is empty. Defaults to "aikor".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.aikor/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	Cache  CacheConfig  `json:"cache" yaml:"cache"`
	Batch  BatchConfig  `json:"batch" yaml:"batch"`
	Render RenderConfig `json:"render" yaml:"render"`

	// DOCX pagination geometry.
	DOCX parser.DOCXLayout `json:"docx" yaml:"docx"`

	// Rules selects the checks and their parameters.
	Rules rules.Config `json:"rules" yaml:"rules"`

	// Vision enables the document review oracle. An empty provider
	// disables it.
	Vision llm.Config `json:"vision" yaml:"vision"`
}

// CacheConfig configures the parse caches.
type CacheConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Dir         string  `json:"dir" yaml:"dir"`
	MaxSizeMB   float64 `json:"max_size_mb" yaml:"max_size_mb"`
	MemoryItems int     `json:"memory_items" yaml:"memory_items"`
}

// BatchConfig configures directory and multi-file processing.
type BatchConfig struct {
	// MaxWorkers bounds concurrent parses. Zero uses the number of CPUs.
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`
	// FileTimeoutSeconds caps a single parse. Zero means no limit.
	FileTimeoutSeconds int `json:"file_timeout_seconds" yaml:"file_timeout_seconds"`
}

// RenderConfig configures the error overlay renderer.
type RenderConfig struct {
	// DPI is the resolution page images were rasterized at.
	DPI int `json:"dpi" yaml:"dpi"`
}

// DefaultConfig returns a Config with the standard rule catalogue, A4 DOCX
// pagination and caching enabled. The database lives in ~/.aikor/aikor.db.
func DefaultConfig() Config {
	return Config{
		DBName:     "aikor",
		StorageDir: "home",
		Cache: CacheConfig{
			Enabled:     true,
			MaxSizeMB:   500,
			MemoryItems: 100,
		},
		Render: RenderConfig{DPI: 150},
		DOCX:   parser.DefaultDOCXLayout(),
		Rules:  rules.DefaultConfig(),
	}
}

// LoadConfig reads a YAML or JSON file (chosen by extension, YAML
// otherwise) over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.Cache.MaxSizeMB < 0 || c.Cache.MemoryItems < 0 {
		return fmt.Errorf("%w: cache limits must not be negative", ErrInvalidConfig)
	}
	if c.Batch.MaxWorkers < 0 || c.Batch.FileTimeoutSeconds < 0 {
		return fmt.Errorf("%w: batch limits must not be negative", ErrInvalidConfig)
	}
	if c.Render.DPI < 0 {
		return fmt.Errorf("%w: render dpi must not be negative", ErrInvalidConfig)
	}
	if c.DOCX.PageWidth <= 2*c.DOCX.MarginLeft || c.DOCX.PageHeight <= 2*c.DOCX.MarginTop {
		return fmt.Errorf("%w: docx margins leave no content area", ErrInvalidConfig)
	}
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	name := c.DBName
	if name == "" {
		name = "aikor"
	}
	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".aikor", name+".db")
	}
}

// resolveCacheDir places the file cache next to the database unless a
// directory is configured.
func (c *Config) resolveCacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return filepath.Join(filepath.Dir(c.resolveDBPath()), "cache")
}
