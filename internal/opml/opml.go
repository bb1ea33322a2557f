// Package opml handles importing and exporting OPML files.
package opml

import (
	"encoding/xml"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/bryan-buckman/rssdash/internal/model"
)

// FolderSeparator joins nested OPML folder names into a FeedSource folder.
const FolderSeparator = "/"

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and returns its feeds. Outlines with an
// xmlUrl are feeds; outlines without one are folders, and nested folder
// names are joined with FolderSeparator. A URL listed twice keeps its first
// occurrence.
func Parse(r io.Reader) ([]model.FeedSource, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, model.Errorf(model.EINVALID, "decode opml: %v", err)
	}
	sources := []model.FeedSource{}
	var walk func(outlines []Outline, path []string)
	walk = func(outlines []Outline, path []string) {
		for _, o := range outlines {
			if url := strings.TrimSpace(o.XMLURL); url != "" {
				sources = append(sources, model.FeedSource{
					Name:   lo.CoalesceOrEmpty(strings.TrimSpace(o.Title), strings.TrimSpace(o.Text), url),
					URL:    url,
					Folder: strings.Join(path, FolderSeparator),
				})
			} else if len(o.Outlines) > 0 {
				name := lo.CoalesceOrEmpty(strings.TrimSpace(o.Text), strings.TrimSpace(o.Title))
				next := path
				if name != "" {
					next = append(append([]string{}, path...), name)
				}
				walk(o.Outlines, next)
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return lo.UniqBy(sources, func(s model.FeedSource) string { return s.URL }), nil
}

// folder is an outline folder being assembled for export.
type folder struct {
	name    string
	feeds   []model.FeedSource
	folders map[string]*folder
}

func newFolder(name string) *folder {
	return &folder{name: name, folders: map[string]*folder{}}
}

func (f *folder) child(name string) *folder {
	c, ok := f.folders[name]
	if !ok {
		c = newFolder(name)
		f.folders[name] = c
	}
	return c
}

// outlines renders the folder's subfolders followed by its feeds, both
// sorted, so the same sources always export to the same document.
func (f *folder) outlines() []Outline {
	var out []Outline
	names := lo.Keys(f.folders)
	sort.Strings(names)
	for _, name := range names {
		sub := f.folders[name]
		out = append(out, Outline{Text: sub.name, Title: sub.name, Outlines: sub.outlines()})
	}

	feeds := append([]model.FeedSource{}, f.feeds...)
	sort.Slice(feeds, func(i, j int) bool {
		if feeds[i].Name != feeds[j].Name {
			return feeds[i].Name < feeds[j].Name
		}
		return feeds[i].URL < feeds[j].URL
	})
	for _, s := range feeds {
		name := lo.CoalesceOrEmpty(s.Name, s.URL)
		out = append(out, Outline{Text: name, Title: name, Type: "rss", XMLURL: s.URL})
	}
	return out
}

// Export generates an OPML 2.0 document from sources. Folders containing
// FolderSeparator become nested outlines, the inverse of Parse.
func Export(title string, sources []model.FeedSource) ([]byte, error) {
	root := newFolder("")
	for _, s := range sources {
		f := root
		for _, part := range strings.Split(s.Folder, FolderSeparator) {
			if part = strings.TrimSpace(part); part != "" {
				f = f.child(part)
			}
		}
		f.feeds = append(f.feeds, s)
	}

	doc := OPML{
		Version: "2.0",
		Head:    Head{Title: title},
		Body:    Body{Outlines: root.outlines()},
	}
	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}
