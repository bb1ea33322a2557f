package rss

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// IDKind tells whether an article id is guaranteed to be reproducible.
type IDKind int

const (
	// IDStable ids are a pure function of (feedURL, title).
	IDStable IDKind = iota
	// IDDegraded ids embed a timestamp and differ between runs.
	// Re-ingesting such an article creates a new record.
	IDDegraded
)

func (k IDKind) String() string {
	if k == IDDegraded {
		return "degraded"
	}
	return "stable"
}

// ArticleID derives the identifier of an article from its feed URL and title.
// Both inputs are NFC-normalized first so canonically equivalent Unicode
// titles hash the same. Input that is not valid UTF-8 falls back to a
// content hash plus timestamp, tagged IDDegraded.
func ArticleID(feedURL, title string) (string, IDKind) {
	if !utf8.ValidString(feedURL) || !utf8.ValidString(title) {
		return degradedID(feedURL, title, time.Now()), IDDegraded
	}
	d := xxhash.New()
	_, _ = d.WriteString(norm.NFC.String(feedURL))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(norm.NFC.String(title))
	return fmt.Sprintf("%016x", d.Sum64()), IDStable
}

func degradedID(feedURL, title string, now time.Time) string {
	sum := xxhash.Sum64String(feedURL + "\x00" + title)
	return fmt.Sprintf("%016x-%s", sum, strconv.FormatInt(now.UnixNano(), 36))
}
