package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"github.com/bryan-buckman/rssdash/internal/model"
)

var feedColumns = []string{"url", "name", "folder", "last_updated", "item_count"}

// UpsertFeedMeta creates or replaces the cached metadata of a feed.
func (db *DB) UpsertFeedMeta(ctx context.Context, meta model.FeedMeta) error {
	conn, err := db.handle(ctx)
	if err != nil {
		return err
	}
	return db.upsertFeed(ctx, conn, meta)
}

// StoreFeed writes the metadata and articles of one fetched feed in a single
// transaction. Either both land or the store is left as it was.
func (db *DB) StoreFeed(ctx context.Context, meta model.FeedMeta, items []model.Article) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.upsertFeed(ctx, tx, meta); err != nil {
			return err
		}
		return db.upsertItems(ctx, tx, items)
	})
}

func (db *DB) upsertFeed(ctx context.Context, e execer, meta model.FeedMeta) error {
	if meta.URL == "" {
		return model.Errorf(model.EINVALID, "feed url required")
	}
	insert := db.sb.Insert("feeds").
		Columns(feedColumns...).
		Values(meta.URL, meta.Name, meta.Folder, formatTime(meta.LastUpdated), meta.ItemCount).
		Suffix(`ON CONFLICT (url) DO UPDATE SET
			name = excluded.name,
			folder = excluded.folder,
			last_updated = excluded.last_updated,
			item_count = excluded.item_count`)
	if _, err := exec(ctx, e, insert); err != nil {
		return fmt.Errorf("upsert feed %s: %w", meta.URL, err)
	}
	return nil
}

// GetAllFeeds returns all feeds ordered by folder then name.
func (db *DB) GetAllFeeds(ctx context.Context) ([]model.FeedMeta, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := db.sb.Select(feedColumns...).From("feeds").OrderBy("folder ASC", "name ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	feeds := []model.FeedMeta{}
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// GetFeedByURL returns the metadata of one feed or ENOTFOUND.
func (db *DB) GetFeedByURL(ctx context.Context, url string) (*model.FeedMeta, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := db.sb.Select(feedColumns...).From("feeds").Where(sq.Eq{"url": url}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	f, err := scanFeed(conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.Errorf(model.ENOTFOUND, "feed %q not found", url)
	} else if err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFeedByURL removes a feed and all of its articles.
func (db *DB) DeleteFeedByURL(ctx context.Context, url string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := exec(ctx, tx, db.sb.Delete("items").Where(sq.Eq{"feed_url": url})); err != nil {
			return fmt.Errorf("delete items of %s: %w", url, err)
		}
		n, err := exec(ctx, tx, db.sb.Delete("feeds").Where(sq.Eq{"url": url}))
		if err != nil {
			return fmt.Errorf("delete feed %s: %w", url, err)
		}
		if n == 0 {
			return model.Errorf(model.ENOTFOUND, "feed %q not found", url)
		}
		return nil
	})
}

// CleanupOrphanedFeeds removes every feed whose url is not in validURLs,
// together with its articles, and returns the number of feeds removed.
// Articles whose feed_url is not valid are removed even without a feed row.
func (db *DB) CleanupOrphanedFeeds(ctx context.Context, validURLs []string) (int, error) {
	var removed int
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = db.cleanupOrphans(ctx, tx, validURLs)
		return err
	})
	return removed, err
}

func (db *DB) cleanupOrphans(ctx context.Context, tx *sql.Tx, validURLs []string) (int, error) {
	validURLs = lo.Uniq(validURLs)
	if _, err := exec(ctx, tx, db.sb.Delete("items").Where(sq.NotEq{"feed_url": validURLs})); err != nil {
		return 0, fmt.Errorf("delete orphaned items: %w", err)
	}
	n, err := exec(ctx, tx, db.sb.Delete("feeds").Where(sq.NotEq{"url": validURLs}))
	if err != nil {
		return 0, fmt.Errorf("delete orphaned feeds: %w", err)
	}
	return int(n), nil
}

// SynchronizeWithConfig reconciles the store with the current source list:
// orphaned feeds are removed, every source gets a feed row (keeping its
// last_updated and item_count), and renamed or moved feeds propagate their
// name and folder to their articles. It returns the number of feeds removed.
func (db *DB) SynchronizeWithConfig(ctx context.Context, sources []model.FeedSource) (int, error) {
	sources = lo.UniqBy(sources, func(s model.FeedSource) string { return s.URL })
	urls := lo.Map(sources, func(s model.FeedSource, _ int) string { return s.URL })

	var removed int
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if removed, err = db.cleanupOrphans(ctx, tx, urls); err != nil {
			return err
		}
		for _, src := range sources {
			insert := db.sb.Insert("feeds").
				Columns(feedColumns...).
				Values(src.URL, src.Name, src.Folder, formatTime(time.Time{}), 0).
				Suffix("ON CONFLICT (url) DO UPDATE SET name = excluded.name, folder = excluded.folder")
			if _, err := exec(ctx, tx, insert); err != nil {
				return fmt.Errorf("sync feed %s: %w", src.URL, err)
			}
			update := db.sb.Update("items").
				Set("feed_name", src.Name).
				Set("folder", src.Folder).
				Where(sq.And{
					sq.Eq{"feed_url": src.URL},
					sq.Or{sq.NotEq{"feed_name": src.Name}, sq.NotEq{"folder": src.Folder}},
				})
			if _, err := exec(ctx, tx, update); err != nil {
				return fmt.Errorf("sync items of %s: %w", src.URL, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func scanFeed(row rowScanner) (model.FeedMeta, error) {
	var f model.FeedMeta
	var lastUpdated string
	if err := row.Scan(&f.URL, &f.Name, &f.Folder, &lastUpdated, &f.ItemCount); err != nil {
		return f, err
	}
	var err error
	f.LastUpdated, err = parseTime(lastUpdated, "last_updated")
	return f, err
}
