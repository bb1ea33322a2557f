package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"github.com/bryan-buckman/rssdash/internal/model"
)

// orderClause returns ORDER BY terms. Ties on publish_date break by id so
// listings and next/prev navigation are deterministic. Random listings are
// fetched newest first and shuffled afterwards.
func orderClause(order model.Order) []string {
	if order == model.OrderOldest {
		return []string{"publish_date ASC", "id ASC"}
	}
	return []string{"publish_date DESC", "id ASC"}
}

// queryFilter converts the filter part of an ArticleQuery into a predicate.
func queryFilter(q model.ArticleQuery) sq.And {
	pred := sq.And{}
	if q.Folder != nil {
		pred = append(pred, sq.Eq{"folder": *q.Folder})
	}
	if q.IsRead != nil {
		pred = append(pred, sq.Eq{"is_read": *q.IsRead})
	}
	return pred
}

// GetArticlesByOptions returns the articles matching q in the requested order.
// A random order is a uniform shuffle of the filtered set.
func (db *DB) GetArticlesByOptions(ctx context.Context, q model.ArticleQuery) ([]model.Article, error) {
	b := db.sb.Select(itemColumns...).From("items").
		Where(queryFilter(q)).
		OrderBy(orderClause(q.OrderBy)...)
	items, err := db.queryItems(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	if q.OrderBy == model.OrderRandom {
		items = lo.Shuffle(items)
	}
	return items, nil
}

// GetRandomItem returns a uniformly drawn article, optionally restricted to a
// folder. It returns ENOTFOUND when nothing matches.
func (db *DB) GetRandomItem(ctx context.Context, folder *string) (*model.Article, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := db.sb.Select(itemColumns...).From("items").
		Where(queryFilter(model.ArticleQuery{Folder: folder})).
		OrderBy("RANDOM()").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	it, err := scanItem(conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.Errorf(model.ENOTFOUND, "no articles to pick from")
	} else if err != nil {
		return nil, err
	}
	return &it, nil
}

// GetNextArticle returns the article after currentID in the list described by q.
// There is no wrap-around: the last element has no next article.
func (db *DB) GetNextArticle(ctx context.Context, currentID string, q model.ArticleQuery) (*model.Article, error) {
	return db.neighbour(ctx, currentID, q, 1)
}

// GetPrevArticle returns the article before currentID in the list described by q.
func (db *DB) GetPrevArticle(ctx context.Context, currentID string, q model.ArticleQuery) (*model.Article, error) {
	return db.neighbour(ctx, currentID, q, -1)
}

func (db *DB) neighbour(ctx context.Context, currentID string, q model.ArticleQuery, step int) (*model.Article, error) {
	// A shuffled list has no stable neighbours, so navigate it newest first.
	if q.OrderBy == model.OrderRandom {
		q.OrderBy = model.OrderNewest
	}
	ids, err := db.orderedIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	idx := lo.IndexOf(ids, currentID)
	if idx < 0 {
		return nil, model.Errorf(model.ENOTFOUND, "article %q not in list", currentID)
	}
	next := idx + step
	if next < 0 || next >= len(ids) {
		return nil, model.Errorf(model.ENOTFOUND, "no article beyond %q", currentID)
	}
	return db.GetItemByID(ctx, ids[next])
}

func (db *DB) orderedIDs(ctx context.Context, q model.ArticleQuery) ([]string, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := db.sb.Select("id").From("items").
		Where(queryFilter(q)).
		OrderBy(orderClause(q.OrderBy)...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetItemStatsByFolder counts stored articles per folder, ordered by folder name.
func (db *DB) GetItemStatsByFolder(ctx context.Context) ([]model.FolderStat, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := db.sb.Select("folder", "COUNT(*)").From("items").
		GroupBy("folder").
		OrderBy("folder ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stats := []model.FolderStat{}
	for rows.Next() {
		var s model.FolderStat
		if err := rows.Scan(&s.Folder, &s.Count); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
