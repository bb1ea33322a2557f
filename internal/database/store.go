// Package database provides storage backends for the RSS reader.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bryan-buckman/rssdash/internal/model"
)

// Store defines the interface for database operations.
// Both the SQLite and PostgreSQL dialects of DB satisfy this interface.
//
// Every operation lazily opens the underlying connection, so callers never
// observe an uninitialized store. Mutations of a single missing article
// return an ENOTFOUND error.
type Store interface {
	Open(ctx context.Context) error
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	// SQLite returns false due to write locking limitations.
	SupportsHighConcurrency() bool

	// Feed operations
	UpsertFeedMeta(ctx context.Context, meta model.FeedMeta) error
	StoreFeed(ctx context.Context, meta model.FeedMeta, items []model.Article) error
	GetAllFeeds(ctx context.Context) ([]model.FeedMeta, error)
	GetFeedByURL(ctx context.Context, url string) (*model.FeedMeta, error)
	DeleteFeedByURL(ctx context.Context, url string) error
	CleanupOrphanedFeeds(ctx context.Context, validURLs []string) (int, error)
	SynchronizeWithConfig(ctx context.Context, sources []model.FeedSource) (int, error)

	// Item operations
	UpsertItems(ctx context.Context, items []model.Article) error
	GetAllItems(ctx context.Context) ([]model.Article, error)
	GetItemByID(ctx context.Context, id string) (*model.Article, error)
	GetItemsByFeedURL(ctx context.Context, url string) ([]model.Article, error)
	GetFavoriteItems(ctx context.Context) ([]model.Article, error)
	GetReadItems(ctx context.Context) ([]model.Article, error)
	DeleteItemsByFeedURL(ctx context.Context, url string) (int, error)

	// Queries
	GetArticlesByOptions(ctx context.Context, q model.ArticleQuery) ([]model.Article, error)
	GetRandomItem(ctx context.Context, folder *string) (*model.Article, error)
	GetNextArticle(ctx context.Context, currentID string, q model.ArticleQuery) (*model.Article, error)
	GetPrevArticle(ctx context.Context, currentID string, q model.ArticleQuery) (*model.Article, error)
	GetItemStatsByFolder(ctx context.Context) ([]model.FolderStat, error)

	// State
	MarkItemAsRead(ctx context.Context, id string) error
	MarkItemsRead(ctx context.Context, ids []string) (int, error)
	SetReadStatus(ctx context.Context, id string, read bool) error
	ToggleFavorite(ctx context.Context, id string) (bool, error)
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// timeLayout is a fixed-width ISO8601 layout, so stored timestamps sort
// lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value, fieldName string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", fieldName, err)
	}
	return t, nil
}
