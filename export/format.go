package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/workwise/aikor/model"
)

// ErrUnknownFormat is returned by Write for unrecognized format names.
var ErrUnknownFormat = errors.New("export: unknown format")

// Format names an export rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatChunks   Format = "chunks"
	FormatSections Format = "sections"
	FormatContext  Format = "context"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatMarkdown, FormatChunks, FormatSections, FormatContext}
}

// ParseFormat accepts the format names plus the "md" and "txt" aliases.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatMarkdown, FormatChunks, FormatSections, FormatContext:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the MIME type of the rendering.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON, FormatChunks, FormatSections:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Options bundles the per-format settings used by Write.
type Options struct {
	Text    TextOptions    `json:"text" yaml:"text"`
	Chunks  ChunkOptions   `json:"chunks" yaml:"chunks"`
	Context ContextOptions `json:"context" yaml:"context"`
	Compact bool           `json:"compact" yaml:"compact"`
}

func DefaultOptions() Options {
	return Options{
		Text:    DefaultTextOptions(),
		Chunks:  DefaultChunkOptions(),
		Context: ContextOptions{Coordinates: true},
	}
}

// Write renders doc in format f.
func Write(w io.Writer, doc *model.ParsedDocument, f Format, opts Options) error {
	switch f {
	case FormatText:
		_, err := io.WriteString(w, StructuredText(doc, opts.Text))
		return err
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(doc))
		return err
	case FormatContext:
		_, err := io.WriteString(w, LLMContext(doc, opts.Context))
		return err
	case FormatJSON:
		data, err := JSON(doc, opts.Compact)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatChunks:
		return encode(w, Chunks(doc, opts.Chunks), opts.Compact)
	case FormatSections:
		return encode(w, Sections(doc), opts.Compact)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// JSON encodes the full document. Non-ASCII text is written as UTF-8 and
// HTML characters are not escaped.
func JSON(doc *model.ParsedDocument, compact bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, doc, compact); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// FromJSON decodes a document written by JSON. Derived fields such as
// summary, text and line_count are ignored.
func FromJSON(data []byte) (*model.ParsedDocument, error) {
	var doc model.ParsedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("export: decode document: %w", err)
	}
	return &doc, nil
}

func encode(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
