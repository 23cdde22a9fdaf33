// Package export renders a model.ParsedDocument into formats meant for
// language models and retrieval: annotated plain text, JSON, Markdown,
// fixed-size chunks and heading-delimited sections.
package export

import (
	"fmt"
	"strings"

	"github.com/workwise/aikor/model"
)

// TextOptions controls StructuredText annotations.
type TextOptions struct {
	Coordinates bool `json:"coordinates" yaml:"coordinates"`
	Styles      bool `json:"styles" yaml:"styles"`
	BlockTypes  bool `json:"block_types" yaml:"block_types"`
}

// DefaultTextOptions annotates blocks with type tags and coordinates.
func DefaultTextOptions() TextOptions {
	return TextOptions{Coordinates: true, BlockTypes: true}
}

var typeTags = map[model.BlockType]string{
	model.BlockListItem:  "[LI]",
	model.BlockParagraph: "[P]",
	model.BlockTableCell: "[TC]",
	model.BlockCaption:   "[CAP]",
	model.BlockHeader:    "[HDR]",
	model.BlockFooter:    "[FTR]",
}

func typeTag(b model.TextBlock) string {
	if b.Type == model.BlockHeading {
		return fmt.Sprintf("[H%d]", headingLevel(b))
	}
	if tag, ok := typeTags[b.Type]; ok {
		return tag
	}
	return "[?]"
}

func headingLevel(b model.TextBlock) int {
	if b.SemanticLevel > 0 {
		return b.SemanticLevel
	}
	return 1
}

// StructuredText writes one line per block in reading order, for example
//
//	[H1] @(85,57)-(510,75) [425x18] Introduction
//
// Line breaks inside a block are shown as " ↵ ".
func StructuredText(doc *model.ParsedDocument, opts TextOptions) string {
	var lines []string
	lines = append(lines,
		fmt.Sprintf("=== DOCUMENT: %s ===", doc.Metadata.Filename),
		fmt.Sprintf("Format: %s", strings.ToUpper(string(doc.Metadata.Type))),
		fmt.Sprintf("Pages: %d", doc.Metadata.TotalPages),
		"",
	)

	for _, page := range doc.Pages {
		lines = append(lines, fmt.Sprintf("--- PAGE %d (%.0fx%.0f) ---", page.Info.PageNumber, page.Info.Width, page.Info.Height))
		for _, b := range page.InReadingOrder() {
			lines = append(lines, formatBlock(b, opts))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func formatBlock(b model.TextBlock, opts TextOptions) string {
	var parts []string
	if opts.BlockTypes {
		parts = append(parts, typeTag(b))
	}
	if opts.Coordinates {
		r := b.BBox
		parts = append(parts,
			fmt.Sprintf("@(%.0f,%.0f)-(%.0f,%.0f)", r.X0, r.Y0, r.X1, r.Y1),
			fmt.Sprintf("[%.0fx%.0f]", r.Width(), r.Height()))
	}
	if opts.Styles {
		if s, ok := b.FirstLineStyle(); ok {
			parts = append(parts, fmt.Sprintf("<%s,%.0fpt,%s>", s.FontName, s.FontSize, s.Color))
		}
	}
	parts = append(parts, strings.ReplaceAll(b.Text(), "\n", " ↵ "))
	return strings.Join(parts, " ")
}

// ContextOptions controls LLMContext.
type ContextOptions struct {
	Coordinates bool `json:"coordinates" yaml:"coordinates"`
	// MaxLength truncates the output to this many characters, the last
	// three being "...". Zero means unlimited.
	MaxLength int `json:"max_length" yaml:"max_length"`
}

// LLMContext is a Markdown-flavoured prompt rendering. Headings are pushed
// two levels down so they nest under the page headings.
func LLMContext(doc *model.ParsedDocument, opts ContextOptions) string {
	out := []string{
		fmt.Sprintf("# Document: %s", doc.Metadata.Filename),
		fmt.Sprintf("Type: %s", strings.ToUpper(string(doc.Metadata.Type))),
		fmt.Sprintf("Pages: %d", doc.Metadata.TotalPages),
		"---\n",
	}
	for _, page := range doc.Pages {
		out = append(out, fmt.Sprintf("## Page %d", page.Info.PageNumber))
		for _, b := range page.InReadingOrder() {
			prefix := ""
			switch b.Type {
			case model.BlockHeading:
				prefix = strings.Repeat("#", headingLevel(b)+2) + " "
			case model.BlockListItem:
				prefix = "• "
			}
			if opts.Coordinates {
				r := b.BBox
				out = append(out, fmt.Sprintf("%s%s [pos: (%.0f,%.0f)-(%.0f,%.0f)]", prefix, b.Text(), r.X0, r.Y0, r.X1, r.Y1))
			} else {
				out = append(out, prefix+b.Text())
			}
			out = append(out, "")
		}
	}

	result := strings.Join(out, "\n")
	if opts.MaxLength > 0 {
		if r := []rune(result); len(r) > opts.MaxLength {
			cut := opts.MaxLength - 3
			if cut < 0 {
				cut = 0
			}
			return string(r[:cut]) + "..."
		}
	}
	return result
}
