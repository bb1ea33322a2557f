package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/bryan-buckman/rssdash/internal/model"
)

var itemColumns = []string{
	"id", "title", "content", "summary", "link", "publish_date", "author",
	"feed_url", "feed_name", "folder", "is_read", "is_favorite", "image_url", "tags",
}

// upsertItemSuffix refreshes content-derived columns only. is_read and
// is_favorite belong to the reader and survive re-ingestion.
const upsertItemSuffix = `ON CONFLICT (id) DO UPDATE SET
	title = excluded.title,
	content = excluded.content,
	summary = excluded.summary,
	link = excluded.link,
	publish_date = excluded.publish_date,
	author = excluded.author,
	feed_url = excluded.feed_url,
	feed_name = excluded.feed_name,
	folder = excluded.folder,
	image_url = excluded.image_url,
	tags = excluded.tags`

// UpsertItems inserts new articles and refreshes existing ones in a single
// transaction, preserving read and favorite state of existing ids.
func (db *DB) UpsertItems(ctx context.Context, items []model.Article) error {
	if len(items) == 0 {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return db.upsertItems(ctx, tx, items)
	})
}

func (db *DB) upsertItems(ctx context.Context, e execer, items []model.Article) error {
	for _, it := range items {
		if it.ID == "" {
			return model.Errorf(model.EINVALID, "article id required")
		}
		tags := it.Tags
		if tags == nil {
			tags = []string{}
		}
		rawTags, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("encode tags for %s: %w", it.ID, err)
		}
		insert := db.sb.Insert("items").
			Columns(itemColumns...).
			Values(it.ID, it.Title, it.Content, it.Summary, it.Link, formatTime(it.PublishDate), it.Author,
				it.FeedURL, it.FeedName, it.Folder, it.IsRead, it.IsFavorite, it.ImageURL, string(rawTags)).
			Suffix(upsertItemSuffix)
		if _, err := exec(ctx, e, insert); err != nil {
			return fmt.Errorf("upsert item %s: %w", it.ID, err)
		}
	}
	return nil
}

// GetAllItems returns every stored article, newest first.
func (db *DB) GetAllItems(ctx context.Context) ([]model.Article, error) {
	return db.findItems(ctx, nil)
}

// GetItemByID returns one article or ENOTFOUND.
func (db *DB) GetItemByID(ctx context.Context, id string) (*model.Article, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := db.sb.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	it, err := scanItem(conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.Errorf(model.ENOTFOUND, "article %q not found", id)
	} else if err != nil {
		return nil, err
	}
	return &it, nil
}

// GetItemsByFeedURL returns the articles of one feed, newest first.
func (db *DB) GetItemsByFeedURL(ctx context.Context, url string) ([]model.Article, error) {
	return db.findItems(ctx, sq.Eq{"feed_url": url})
}

// GetFavoriteItems returns favorited articles, newest first.
func (db *DB) GetFavoriteItems(ctx context.Context) ([]model.Article, error) {
	return db.findItems(ctx, sq.Eq{"is_favorite": true})
}

// GetReadItems returns read articles, newest first.
func (db *DB) GetReadItems(ctx context.Context) ([]model.Article, error) {
	return db.findItems(ctx, sq.Eq{"is_read": true})
}

// DeleteItemsByFeedURL removes every article of a feed and returns how many were deleted.
func (db *DB) DeleteItemsByFeedURL(ctx context.Context, url string) (int, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return 0, err
	}
	n, err := exec(ctx, conn, db.sb.Delete("items").Where(sq.Eq{"feed_url": url}))
	if err != nil {
		return 0, fmt.Errorf("delete items of %s: %w", url, err)
	}
	return int(n), nil
}

// MarkItemAsRead marks an item as read.
func (db *DB) MarkItemAsRead(ctx context.Context, id string) error {
	return db.SetReadStatus(ctx, id, true)
}

// SetReadStatus sets the read flag of one article.
func (db *DB) SetReadStatus(ctx context.Context, id string, read bool) error {
	conn, err := db.handle(ctx)
	if err != nil {
		return err
	}
	n, err := exec(ctx, conn, db.sb.Update("items").Set("is_read", read).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("set read status of %s: %w", id, err)
	}
	if n == 0 {
		return model.Errorf(model.ENOTFOUND, "article %q not found", id)
	}
	return nil
}

// MarkItemsRead marks multiple items as read and returns how many matched.
// Unknown ids are ignored.
func (db *DB) MarkItemsRead(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		n, err := exec(ctx, tx, db.sb.Update("items").Set("is_read", true).Where(sq.Eq{"id": ids}))
		total = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark items read: %w", err)
	}
	return int(total), nil
}

// ToggleFavorite flips the favorite flag in one statement and returns the new value.
func (db *DB) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return false, err
	}
	query, args, err := db.sb.Update("items").
		Set("is_favorite", sq.Expr("NOT is_favorite")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING is_favorite").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	var fav bool
	err = conn.QueryRowContext(ctx, query, args...).Scan(&fav)
	if errors.Is(err, sql.ErrNoRows) {
		return false, model.Errorf(model.ENOTFOUND, "article %q not found", id)
	} else if err != nil {
		return false, fmt.Errorf("toggle favorite of %s: %w", id, err)
	}
	return fav, nil
}

// findItems returns articles matching pred (nil matches all), newest first.
func (db *DB) findItems(ctx context.Context, pred sq.Sqlizer) ([]model.Article, error) {
	b := db.sb.Select(itemColumns...).From("items")
	if pred != nil {
		b = b.Where(pred)
	}
	return db.queryItems(ctx, b.OrderBy(orderClause(model.OrderNewest)...))
}

func (db *DB) queryItems(ctx context.Context, b sq.SelectBuilder) ([]model.Article, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (model.Article, error) {
	var it model.Article
	var publishDate, rawTags string
	if err := row.Scan(&it.ID, &it.Title, &it.Content, &it.Summary, &it.Link, &publishDate, &it.Author,
		&it.FeedURL, &it.FeedName, &it.Folder, &it.IsRead, &it.IsFavorite, &it.ImageURL, &rawTags); err != nil {
		return it, err
	}
	var err error
	if it.PublishDate, err = parseTime(publishDate, "publish_date"); err != nil {
		return it, err
	}
	if err := json.Unmarshal([]byte(rawTags), &it.Tags); err != nil {
		return it, fmt.Errorf("failed to parse tags: %w", err)
	}
	return it, nil
}

func scanItems(rows *sql.Rows) ([]model.Article, error) {
	items := []model.Article{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
