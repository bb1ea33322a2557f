// Package content splits article HTML into addressable blocks for rendering,
// table-of-contents navigation and per-block favorites.
package content

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BlockType identifies the kind of content a Block carries.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockParagraph  BlockType = "paragraph"
	BlockHeading    BlockType = "heading"
	BlockImage      BlockType = "image"
	BlockVideo      BlockType = "video"
	BlockEmbed      BlockType = "embed"
	BlockCode       BlockType = "code"
	BlockBlockquote BlockType = "blockquote"
	BlockList       BlockType = "list"
	BlockTable      BlockType = "table"
	BlockHTML       BlockType = "html"
)

// Block is one structural piece of an article.
type Block struct {
	ID        int       `json:"id"`
	Type      BlockType `json:"type"`
	Content   string    `json:"content"`
	SourceURL string    `json:"sourceUrl,omitempty"`
	Level     int       `json:"level,omitempty"`
	Language  string    `json:"language,omitempty"`
}

// Decompose walks the HTML tree depth first and returns its blocks in
// document order. IDs count up from 0 within a single call, so the same
// input always yields the same blocks.
func Decompose(src string) []Block {
	if strings.TrimSpace(src) == "" {
		return []Block{}
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), bodyContext)
	if err != nil {
		return []Block{}
	}

	d := &decomposer{blocks: []Block{}}
	for _, n := range nodes {
		d.walk(n)
	}
	return d.blocks
}

// bodyContext parses input as body content, so elements that a full document
// parse would move into <head> stay in document order.
var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

type decomposer struct {
	blocks []Block
}

func (d *decomposer) emit(b Block) {
	b.ID = len(d.blocks)
	d.blocks = append(d.blocks, b)
}

func (d *decomposer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			d.emit(Block{Type: BlockText, Content: text})
		}
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
		return
	case atom.Img:
		d.image(n)
	case atom.Video:
		d.emit(Block{Type: BlockVideo, SourceURL: videoSource(n), Content: outerHTML(n)})
	case atom.Iframe:
		d.emit(Block{Type: BlockEmbed, SourceURL: attr(n, "src"), Content: outerHTML(n)})
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		d.emit(Block{Type: BlockHeading, Level: int(n.Data[1] - '0'), Content: strings.TrimSpace(innerHTML(n))})
	case atom.P:
		if img := soleImage(n); img != nil {
			d.image(img)
			return
		}
		if inner := strings.TrimSpace(innerHTML(n)); inner != "" {
			d.emit(Block{Type: BlockParagraph, Content: inner})
		}
	case atom.Pre:
		d.emit(Block{Type: BlockCode, Content: textContent(n), Language: codeLanguage(n)})
	case atom.Blockquote:
		d.emit(Block{Type: BlockBlockquote, Content: strings.TrimSpace(innerHTML(n))})
	case atom.Ul, atom.Ol:
		d.emit(Block{Type: BlockList, Content: outerHTML(n)})
	case atom.Table:
		d.emit(Block{Type: BlockTable, Content: outerHTML(n)})
	default:
		if hasElementChild(n) {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				d.walk(c)
			}
			return
		}
		if strings.TrimSpace(innerHTML(n)) != "" {
			d.emit(Block{Type: BlockHTML, Content: outerHTML(n)})
		}
	}
}

// image emits an image block. Images without a src carry nothing to show.
func (d *decomposer) image(n *html.Node) {
	src := attr(n, "src")
	if src == "" {
		return
	}
	d.emit(Block{Type: BlockImage, SourceURL: src, Content: attr(n, "alt")})
}

// soleImage returns the img of a paragraph whose only non-blank child is
// that img.
func soleImage(p *html.Node) *html.Node {
	var img *html.Node
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
		case c.Type == html.CommentNode:
		case c.Type == html.ElementNode && c.DataAtom == atom.Img && img == nil:
			img = c
		default:
			return nil
		}
	}
	return img
}

func hasElementChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
	}
	return false
}

func videoSource(n *html.Node) string {
	if src := attr(n, "src"); src != "" {
		return src
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Source {
			if src := attr(c, "src"); src != "" {
				return src
			}
		}
	}
	return ""
}

// codeLanguage reads a language-* or lang-* class from the pre element or
// its inner code element.
func codeLanguage(pre *html.Node) string {
	if lang := classLanguage(pre); lang != "" {
		return lang
	}
	for c := pre.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Code {
			return classLanguage(c)
		}
	}
	return ""
}

func classLanguage(n *html.Node) string {
	for _, class := range strings.Fields(attr(n, "class")) {
		for _, prefix := range []string{"language-", "lang-"} {
			if lang, ok := strings.CutPrefix(class, prefix); ok && lang != "" {
				return lang
			}
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}

// renderNode writes n into buf. Render only fails on writer errors, which a
// bytes.Buffer never returns.
func renderNode(buf *bytes.Buffer, n *html.Node) {
	_ = html.Render(buf, n)
}

func outerHTML(n *html.Node) string {
	var buf bytes.Buffer
	renderNode(&buf, n)
	return buf.String()
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(&buf, c)
	}
	return buf.String()
}
