// Package model defines shared data structures.
package model

import "time"

// FeedSource is one subscription from the configured source list.
// The URL is its identity.
type FeedSource struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Folder string `json:"folder" yaml:"folder"`
}

// FeedMeta is the store's cached view of a subscribed feed.
type FeedMeta struct {
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Folder      string    `json:"folder"`
	LastUpdated time.Time `json:"lastUpdated"`
	ItemCount   int       `json:"itemCount"`
}

// Article is a normalized feed entry with its local read/favorite state.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary"`
	Link        string    `json:"link"`
	PublishDate time.Time `json:"publishDate"`
	Author      string    `json:"author,omitempty"`
	FeedURL     string    `json:"feedUrl"`
	FeedName    string    `json:"feedName"`
	Folder      string    `json:"folder"`
	IsRead      bool      `json:"isRead"`
	IsFavorite  bool      `json:"isFavorite"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Tags        []string  `json:"tags"`
}

// Order selects how article listings are sorted.
type Order string

// Order constants for ArticleQuery.
const (
	OrderNewest Order = "newest"
	OrderOldest Order = "oldest"
	OrderRandom Order = "random"
)

// ParseOrder converts a user supplied string into an Order.
// Empty input means newest first.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "", OrderNewest:
		return OrderNewest, nil
	case OrderOldest:
		return OrderOldest, nil
	case OrderRandom:
		return OrderRandom, nil
	}
	return "", Errorf(EINVALID, "unknown order %q", s)
}

// ArticleQuery filters and orders article listings.
// Nil filters match everything.
type ArticleQuery struct {
	Folder  *string `json:"folder,omitempty"`
	IsRead  *bool   `json:"isRead,omitempty"`
	OrderBy Order   `json:"orderBy"`
}

// FolderStat is the number of stored articles in one folder.
type FolderStat struct {
	Folder string `json:"folder"`
	Count  int    `json:"count"`
}

// FeedFailure records why one feed failed during a sync.
type FeedFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// SyncResult aggregates the outcome of syncing the whole source list.
type SyncResult struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Articles  int           `json:"articles"`
	Removed   int           `json:"removed"`
	Failures  []FeedFailure `json:"failures,omitempty"`
}

// Partial reports whether some, but not all, feeds failed.
func (r SyncResult) Partial() bool {
	return r.Failed > 0 && r.Succeeded > 0
}

// AllFailed reports whether every attempted feed failed.
func (r SyncResult) AllFailed() bool {
	return r.Failed > 0 && r.Succeeded == 0
}

// MinPollingIntervalMinutes is the shortest allowed background poll interval.
const MinPollingIntervalMinutes = 15
