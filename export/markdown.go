package export

import (
	"strings"

	"github.com/workwise/aikor/model"
)

const listMarkers = "•-–●○▪◦ "

// Markdown renders headings as ATX headings, list items with a "- "
// marker and separates pages with a thematic break.
func Markdown(doc *model.ParsedDocument) string {
	var lines []string
	for _, page := range doc.Pages {
		if page.Info.PageNumber > 1 {
			lines = append(lines, "\n---\n")
		}
		for _, b := range page.InReadingOrder() {
			switch b.Type {
			case model.BlockHeading:
				lines = append(lines, strings.Repeat("#", headingLevel(b))+" "+b.Text())
			case model.BlockListItem:
				lines = append(lines, "- "+strings.TrimLeft(b.Text(), listMarkers))
			default:
				lines = append(lines, b.Text())
			}
			lines = append(lines, "")
		}
	}
	return strings.Join(lines, "\n")
}
