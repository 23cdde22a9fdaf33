package export

import (
	"strings"
	"unicode/utf8"

	"github.com/workwise/aikor/model"
)

// Chunk is a retrieval unit: consecutive blocks of one page.
type Chunk struct {
	ID         int               `json:"chunk_id"`
	Text       string            `json:"text"`
	Page       int               `json:"page"`
	BlockIDs   []string          `json:"block_ids"`
	BBox       *model.BBox       `json:"bbox,omitempty"`
	BlockTypes []model.BlockType `json:"block_types,omitempty"`
}

// ChunkOptions controls Chunks. Sizes are in characters.
type ChunkOptions struct {
	MaxSize  int  `json:"max_chunk_size" yaml:"max_chunk_size"`
	Overlap  int  `json:"overlap" yaml:"overlap"`
	Metadata bool `json:"include_metadata" yaml:"include_metadata"`
}

func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{MaxSize: 500, Overlap: 50, Metadata: true}
}

// Chunks packs blocks greedily, page by page, in reading order. A chunk is
// closed when adding the next block would exceed MaxSize; a single block
// larger than MaxSize becomes its own oversized chunk.
//
// Overlap does not re-pack text. When a chunk closes, the next chunk is
// seeded with the last Overlap characters of the closed chunk's final
// block, and that block is listed again in the new chunk's BlockIDs and
// counted toward its bbox. Chunks never span pages.
func Chunks(doc *model.ParsedDocument, opts ChunkOptions) []Chunk {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultChunkOptions().MaxSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}

	var chunks []Chunk
	for _, page := range doc.Pages {
		var texts []string
		var blocks []model.TextBlock
		size := 0

		emit := func() {
			c := Chunk{
				ID:   len(chunks),
				Text: strings.Join(texts, "\n"),
				Page: page.Info.PageNumber,
			}
			boxes := make([]model.BBox, len(blocks))
			for i, b := range blocks {
				c.BlockIDs = append(c.BlockIDs, b.ID)
				boxes[i] = b.BBox
			}
			if opts.Metadata {
				u := model.UnionAll(boxes)
				c.BBox = &u
				for _, b := range blocks {
					c.BlockTypes = append(c.BlockTypes, b.Type)
				}
			}
			chunks = append(chunks, c)
		}

		for _, b := range page.InReadingOrder() {
			text := b.Text()
			n := utf8.RuneCountInString(text)

			if size+n > opts.MaxSize && len(texts) > 0 {
				emit()
				last := blocks[len(blocks)-1]
				texts, blocks, size = nil, nil, 0
				if opts.Overlap > 0 {
					tail := lastRunes(last.Text(), opts.Overlap)
					texts = []string{tail}
					blocks = []model.TextBlock{last}
					size = utf8.RuneCountInString(tail)
				}
			}
			texts = append(texts, text)
			blocks = append(blocks, b)
			size += n
		}
		if len(texts) > 0 {
			emit()
		}
	}
	return chunks
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
