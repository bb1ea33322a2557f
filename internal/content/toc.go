package content

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
)

// TocEntry is one heading in an article's table of contents.
type TocEntry struct {
	ID    int    `json:"id"`
	Level int    `json:"level"`
	Title string `json:"title"`
}

// TableOfContents returns the heading blocks in order with their markup
// stripped.
func TableOfContents(blocks []Block) []TocEntry {
	return lo.FilterMap(blocks, func(b Block, _ int) (TocEntry, bool) {
		if b.Type != BlockHeading {
			return TocEntry{}, false
		}
		return TocEntry{ID: b.ID, Level: b.Level, Title: StripHTML(b.Content)}, true
	})
}

// Anchor is the navigation anchor for the heading block with the given id.
func Anchor(blockID int) string {
	return fmt.Sprintf("heading-%d", blockID)
}

// BlockKey identifies one block of one article, e.g. for block favorites.
func BlockKey(articleID string, blockID int) string {
	return fmt.Sprintf("%s:%d", articleID, blockID)
}

// StripHTML returns the text of an HTML fragment with whitespace collapsed.
func StripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
