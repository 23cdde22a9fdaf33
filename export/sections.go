package export

import "github.com/workwise/aikor/model"

// Section is the content between one heading and the next. Content before
// the first heading forms a section with a nil Heading and level 0.
type Section struct {
	Heading      *string  `json:"heading"`
	HeadingLevel int      `json:"heading_level"`
	Text         string   `json:"text"`
	BlockIDs     []string `json:"blocks"`
	PageStart    int      `json:"page_start"`
	PageEnd      int      `json:"page_end"`
}

// Sections splits the document at every heading block regardless of level.
// Heading blocks themselves are not listed in BlockIDs.
func Sections(doc *model.ParsedDocument) []Section {
	var out []Section
	var cur *Section

	for _, page := range doc.Pages {
		n := page.Info.PageNumber
		for _, b := range page.InReadingOrder() {
			if b.Type == model.BlockHeading {
				if cur != nil {
					out = append(out, *cur)
				}
				text := b.Text()
				cur = &Section{Heading: &text, HeadingLevel: headingLevel(b), BlockIDs: []string{}, PageStart: n, PageEnd: n}
				continue
			}
			if cur == nil {
				cur = &Section{BlockIDs: []string{}, PageStart: n, PageEnd: n}
			}
			if cur.Text != "" {
				cur.Text += "\n\n"
			}
			cur.Text += b.Text()
			cur.BlockIDs = append(cur.BlockIDs, b.ID)
			cur.PageEnd = n
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}
