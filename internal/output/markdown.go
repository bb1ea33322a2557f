package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/bryan-buckman/rssdash/internal/content"
	"github.com/bryan-buckman/rssdash/internal/model"
)

const (
	// readingWidth caps the wrap column when it comes from the terminal.
	readingWidth  = 100
	narrowestWrap = 20
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// BlockMarkdown converts one content block to markdown.
func BlockMarkdown(b content.Block) (string, error) {
	switch b.Type {
	case content.BlockHeading:
		return strings.Repeat("#", max(1, b.Level)) + " " + content.StripHTML(b.Content), nil
	case content.BlockImage:
		return fmt.Sprintf("![%s](%s)", b.Content, b.SourceURL), nil
	case content.BlockVideo, content.BlockEmbed:
		return fmt.Sprintf("[%s](%s)", b.Type, b.SourceURL), nil
	case content.BlockCode:
		return "```" + b.Language + "\n" + strings.TrimRight(b.Content, "\n") + "\n```", nil
	case content.BlockText:
		return b.Content, nil
	}
	return mdConverter.ConvertString(b.Content)
}

// Markdown builds a markdown document for an article from its blocks,
// preceded by a table of contents when it has more than one heading.
func Markdown(a model.Article, blocks []content.Block) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", a.Title)
	meta := []string{a.PublishDate.Local().Format(dateLayout)}
	if a.FeedName != "" {
		meta = append(meta, a.FeedName)
	}
	if a.Author != "" {
		meta = append(meta, a.Author)
	}
	fmt.Fprintf(&sb, "*%s*\n\n", strings.Join(meta, " · "))
	if a.Link != "" {
		fmt.Fprintf(&sb, "<%s>\n\n", a.Link)
	}

	if toc := content.TableOfContents(blocks); len(toc) > 1 {
		sb.WriteString("**Contents**\n\n")
		for _, e := range toc {
			fmt.Fprintf(&sb, "%s- %s\n", strings.Repeat("  ", max(0, e.Level-1)), e.Title)
		}
		sb.WriteString("\n---\n\n")
	}

	for _, b := range blocks {
		md, err := BlockMarkdown(b)
		if err != nil {
			return "", fmt.Errorf("convert block %d: %w", b.ID, err)
		}
		if strings.TrimSpace(md) == "" {
			continue
		}
		sb.WriteString(md)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// wrapWidth returns the column to wrap at. A positive width is used as
// given; otherwise the width of the terminal behind w, capped at
// readingWidth, is used.
func wrapWidth(w io.Writer, width int) int {
	if width <= 0 {
		width = readingWidth
		if f, ok := w.(interface{ Fd() uintptr }); ok {
			if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
				width = min(cols, readingWidth)
			}
		}
	}
	return max(width, narrowestWrap)
}

// Article renders an article for the terminal, wrapped at width columns.
// A width of 0 fits the terminal w writes to.
func Article(w io.Writer, a model.Article, blocks []content.Block, width int) error {
	md, err := Markdown(a, blocks)
	if err != nil {
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth(w, width)),
	)
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("render article %s: %w", a.ID, err)
	}
	_, err = io.WriteString(w, strings.TrimRight(rendered, "\n")+"\n")
	return err
}
