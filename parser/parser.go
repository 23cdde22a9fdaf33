// Package parser converts PDF and DOCX files into the model.ParsedDocument
// tree. PDF coordinates come from glyph positions and are exact; DOCX is a
// flow format, so its coordinates come from simulated pagination and are
// only suitable for relative or heuristic checks. Convert a DOCX to PDF
// first when margin or bounds checks must be coordinate-exact.
package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/workwise/aikor/model"
)

// ErrUnsupportedFormat is returned before any I/O for unknown extensions.
var ErrUnsupportedFormat = errors.New("parser: unsupported format")

// ParseError reports a file that exists but could not be parsed.
type ParseError struct {
	Path   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %s: %v", e.Format, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser can parse a specific document format.
type Parser interface {
	// Parse reads the file at path. It never modifies the source.
	Parse(ctx context.Context, path string) (*model.ParsedDocument, error)

	// ParseReader parses an in-memory stream. name is used for metadata
	// only and may be empty.
	ParseReader(ctx context.Context, r io.Reader, name string) (*model.ParsedDocument, error)

	SupportedFormats() []string
}

// source is a fully read input plus the metadata derived from the file itself.
type source struct {
	path string
	data []byte
	meta model.DocumentMetadata
}

func readFile(path string, typ model.DocumentType) (*source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &source{
		path: path,
		data: data,
		meta: model.DocumentMetadata{
			Filename:    filepath.Base(path),
			Type:        typ,
			FileSize:    int64(len(data)),
			ContentHash: contentHash(data),
		},
	}, nil
}

func readStream(r io.Reader, name string, typ model.DocumentType) (*source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "unknown." + string(typ)
	}
	return &source{
		path: name,
		data: data,
		meta: model.DocumentMetadata{
			Filename:    filepath.Base(name),
			Type:        typ,
			FileSize:    int64(len(data)),
			ContentHash: contentHash(data),
		},
	}, nil
}

// contentHash is the first 16 hex characters of the SHA-256 of the file.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
