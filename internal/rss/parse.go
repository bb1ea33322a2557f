package rss

import (
	"bytes"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
	"github.com/samber/lo"

	"github.com/bryan-buckman/rssdash/internal/model"
)

const (
	// DefaultTitle replaces empty entry titles.
	DefaultTitle = "untitled"
	// SummaryLength is the maximum number of runes kept in a summary.
	SummaryLength = 200
)

// ErrNoEntries is wrapped by the parse error of a feed without usable entries.
var ErrNoEntries = errors.New("no parseable entries")

var errEmptyEntry = errors.New("entry has no title, link or content")

// ParseResult is a normalized feed document.
type ParseResult struct {
	Title    string
	Articles []model.Article
	Skipped  []*EntryError
	Degraded int
}

// entry is the format-neutral view of one RSS item or Atom entry.
type entry struct {
	title     string
	link      string
	content   string
	published *time.Time
	author    string
	tags      []string
	image     string
}

// Parse decodes an RSS 2.0 or Atom document and normalizes its entries into
// articles of src. RSS items win; Atom entries are only used when the
// document has no RSS items. Entries missing every useful field are skipped
// and reported in Skipped. The returned error is always a *FetchError of
// KindParse.
func Parse(body []byte, src model.FeedSource, now time.Time) (*ParseResult, error) {
	feedType := gofeed.DetectFeedType(bytes.NewReader(body))

	var title string
	var entries []entry
	if feedType == gofeed.FeedTypeRSS {
		feed, err := (&rss.Parser{}).Parse(bytes.NewReader(body))
		if err != nil {
			return nil, &FetchError{Kind: KindParse, URL: src.URL, Err: err}
		}
		title = feed.Title
		entries = lo.Map(feed.Items, func(it *rss.Item, _ int) entry { return rssEntry(it) })
	} else if feedType != gofeed.FeedTypeAtom {
		return nil, &FetchError{Kind: KindParse, URL: src.URL, Err: errors.New("not an RSS or Atom document")}
	}

	if len(entries) == 0 {
		feed, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
		if err != nil && feedType == gofeed.FeedTypeAtom {
			return nil, &FetchError{Kind: KindParse, URL: src.URL, Err: err}
		}
		if err == nil {
			if title == "" {
				title = feed.Title
			}
			entries = lo.Map(feed.Entries, func(e *atom.Entry, _ int) entry { return atomEntry(e) })
		}
	}

	res := &ParseResult{Title: strings.TrimSpace(title)}
	feedName := src.Name
	if feedName == "" {
		feedName = res.Title
	}
	seen := make(map[string]bool)
	for i, e := range entries {
		a, kind, err := normalize(e, src, feedName, now)
		if err != nil {
			res.Skipped = append(res.Skipped, &EntryError{Index: i, Err: err})
			continue
		}
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		if kind == IDDegraded {
			res.Degraded++
		}
		res.Articles = append(res.Articles, a)
	}
	if len(res.Articles) == 0 {
		return nil, &FetchError{Kind: KindParse, URL: src.URL, Err: ErrNoEntries}
	}
	return res, nil
}

func rssEntry(it *rss.Item) entry {
	if it == nil {
		return entry{}
	}
	e := entry{
		title:     it.Title,
		link:      strings.TrimSpace(it.Link),
		content:   it.Content,
		published: it.PubDateParsed,
		author:    strings.TrimSpace(it.Author),
	}
	if strings.TrimSpace(e.content) == "" {
		e.content = it.Description
	}
	if e.author == "" && it.DublinCoreExt != nil && len(it.DublinCoreExt.Creator) > 0 {
		e.author = strings.TrimSpace(it.DublinCoreExt.Creator[0])
	}
	for _, c := range it.Categories {
		if c != nil && strings.TrimSpace(c.Value) != "" {
			e.tags = append(e.tags, strings.TrimSpace(c.Value))
		}
	}
	if it.Enclosure != nil && strings.HasPrefix(it.Enclosure.Type, "image/") {
		e.image = it.Enclosure.URL
	}
	return e
}

func atomEntry(it *atom.Entry) entry {
	if it == nil {
		return entry{}
	}
	e := entry{
		title: it.Title,
		link:  atomLink(it.Links),
	}
	if it.Content != nil {
		e.content = it.Content.Value
	}
	if strings.TrimSpace(e.content) == "" {
		e.content = it.Summary
	}
	e.published = it.PublishedParsed
	if e.published == nil {
		e.published = it.UpdatedParsed
	}
	if len(it.Authors) > 0 && it.Authors[0] != nil {
		e.author = strings.TrimSpace(it.Authors[0].Name)
	}
	for _, c := range it.Categories {
		if c != nil && strings.TrimSpace(c.Term) != "" {
			e.tags = append(e.tags, strings.TrimSpace(c.Term))
		}
	}
	return e
}

// atomLink prefers rel="alternate" and falls back to the first link with an href.
func atomLink(links []*atom.Link) string {
	var first string
	for _, l := range links {
		if l == nil || l.Href == "" {
			continue
		}
		if l.Rel == "alternate" {
			return l.Href
		}
		if first == "" {
			first = l.Href
		}
	}
	return first
}

func normalize(e entry, src model.FeedSource, feedName string, now time.Time) (model.Article, IDKind, error) {
	title := strings.TrimSpace(e.title)
	if title == "" && e.link == "" && strings.TrimSpace(e.content) == "" {
		return model.Article{}, IDStable, errEmptyEntry
	}
	if title == "" {
		title = DefaultTitle
	}
	id, kind := ArticleID(src.URL, title)

	published := now
	if e.published != nil && !e.published.IsZero() {
		published = *e.published
	}
	summary, image := extract(e.content)
	if image == "" {
		image = e.image
	}
	tags := e.tags
	if tags == nil {
		tags = []string{}
	}
	return model.Article{
		ID:          id,
		Title:       title,
		Content:     e.content,
		Summary:     summary,
		Link:        e.link,
		PublishDate: published.UTC(),
		Author:      e.author,
		FeedURL:     src.URL,
		FeedName:    feedName,
		Folder:      src.Folder,
		ImageURL:    image,
		Tags:        lo.Uniq(tags),
	}, kind, nil
}

// extract derives the plain-text summary and the first image source of an
// HTML fragment.
func extract(content string) (summary, image string) {
	if strings.TrimSpace(content) == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return truncate(collapse(content), SummaryLength), ""
	}
	image, _ = doc.Find("img[src]").First().Attr("src")
	doc.Find("script, style").Remove()
	return truncate(collapse(doc.Text()), SummaryLength), strings.TrimSpace(image)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
