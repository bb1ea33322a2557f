package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/rssdash/internal/database"
	"github.com/bryan-buckman/rssdash/internal/model"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db := database.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func article(id, feedURL, folder string, hoursAfterBase int) model.Article {
	return model.Article{
		ID:          id,
		Title:       "Title " + id,
		Content:     "<p>" + id + "</p>",
		Summary:     id,
		Link:        "https://example.com/" + id,
		PublishDate: base.Add(time.Duration(hoursAfterBase) * time.Hour),
		FeedURL:     feedURL,
		FeedName:    "Feed " + feedURL,
		Folder:      folder,
		Tags:        []string{"go"},
	}
}

func seed(t *testing.T, db *database.DB, items ...model.Article) {
	t.Helper()
	ctx := context.Background()
	for _, url := range lo.Uniq(lo.Map(items, func(it model.Article, _ int) string { return it.FeedURL })) {
		require.NoError(t, db.UpsertFeedMeta(ctx, model.FeedMeta{URL: url, Name: "Feed " + url, LastUpdated: base}))
	}
	require.NoError(t, db.UpsertItems(ctx, items))
}

func ids(items []model.Article) []string {
	return lo.Map(items, func(it model.Article, _ int) string { return it.ID })
}

func TestDB_LazyOpen(t *testing.T) {
	t.Parallel()

	t.Run("operations open the database on first use", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)

		items, err := db.GetAllItems(context.Background())
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("reopens after close", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db, article("a", "https://a.example/feed", "tech", 0))

		require.NoError(t, db.Close())

		got, err := db.GetItemByID(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Title a", got.Title)
	})

	t.Run("reports backend capabilities", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		assert.Equal(t, "SQLite", db.DatabaseType())
		assert.False(t, db.SupportsHighConcurrency())
		assert.True(t, database.NewPostgres("postgres://localhost/x").SupportsHighConcurrency())
	})
}

func TestDB_UpsertItems(t *testing.T) {
	t.Parallel()

	t.Run("round trips every field", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		in := article("a", "https://a.example/feed", "tech", 0)
		in.Author = "Ann"
		in.ImageURL = "https://a.example/img.png"
		seed(t, db, in)

		got, err := db.GetItemByID(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, in.Title, got.Title)
		assert.Equal(t, in.Content, got.Content)
		assert.Equal(t, in.Author, got.Author)
		assert.Equal(t, in.ImageURL, got.ImageURL)
		assert.Equal(t, []string{"go"}, got.Tags)
		assert.True(t, in.PublishDate.Equal(got.PublishDate))
		assert.False(t, got.IsRead)
		assert.False(t, got.IsFavorite)
	})

	t.Run("preserves read and favorite state on re-ingestion", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db, article("a", "https://a.example/feed", "tech", 0))

		require.NoError(t, db.MarkItemAsRead(ctx, "a"))
		fav, err := db.ToggleFavorite(ctx, "a")
		require.NoError(t, err)
		require.True(t, fav)

		updated := article("a", "https://a.example/feed", "tech", 0)
		updated.Content = "<p>new body</p>"
		require.NoError(t, db.UpsertItems(ctx, []model.Article{updated}))

		got, err := db.GetItemByID(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "<p>new body</p>", got.Content)
		assert.True(t, got.IsRead)
		assert.True(t, got.IsFavorite)
	})

	t.Run("rejects articles without id", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		err := db.UpsertItems(context.Background(), []model.Article{{Title: "x"}})
		assert.Equal(t, model.EINVALID, model.ErrorCode(err))
	})
}

func TestDB_StoreFeed(t *testing.T) {
	t.Parallel()
	const feedURL = "https://a.example/feed"

	t.Run("writes meta and articles", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		meta := model.FeedMeta{URL: feedURL, Name: "A", Folder: "tech", LastUpdated: base, ItemCount: 2}

		require.NoError(t, db.StoreFeed(ctx, meta, []model.Article{
			article("a", feedURL, "tech", 0),
			article("b", feedURL, "tech", 1),
		}))

		got, err := db.GetFeedByURL(ctx, feedURL)
		require.NoError(t, err)
		assert.Equal(t, 2, got.ItemCount)
		items, err := db.GetItemsByFeedURL(ctx, feedURL)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, ids(items))
	})

	t.Run("failed article rolls back a new feed", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		meta := model.FeedMeta{URL: feedURL, Name: "A", LastUpdated: base, ItemCount: 2}

		err := db.StoreFeed(ctx, meta, []model.Article{
			article("a", feedURL, "tech", 0),
			{FeedURL: feedURL, Title: "no id"},
		})
		assert.Equal(t, model.EINVALID, model.ErrorCode(err))

		_, err = db.GetFeedByURL(ctx, feedURL)
		assert.True(t, model.IsNotFound(err))
		items, err := db.GetAllItems(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("failed article keeps the previous meta", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db, article("a", feedURL, "tech", 0))

		meta := model.FeedMeta{URL: feedURL, Name: "Renamed", LastUpdated: base.Add(time.Hour), ItemCount: 2}
		err := db.StoreFeed(ctx, meta, []model.Article{
			article("b", feedURL, "tech", 1),
			{FeedURL: feedURL, Title: "no id"},
		})
		require.Error(t, err)

		got, err := db.GetFeedByURL(ctx, feedURL)
		require.NoError(t, err)
		assert.Equal(t, "Feed "+feedURL, got.Name)
		assert.Equal(t, 0, got.ItemCount)
		assert.True(t, base.Equal(got.LastUpdated))
		_, err = db.GetItemByID(ctx, "b")
		assert.True(t, model.IsNotFound(err))
	})
}

func TestDB_Lookups(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()
	seed(t, db,
		article("a", "https://a.example/feed", "tech", 0),
		article("b", "https://a.example/feed", "tech", 1),
		article("c", "https://c.example/feed", "news", 2),
	)
	require.NoError(t, db.MarkItemAsRead(ctx, "a"))
	_, err := db.ToggleFavorite(ctx, "c")
	require.NoError(t, err)

	all, err := db.GetAllItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	byFeed, err := db.GetItemsByFeedURL(ctx, "https://a.example/feed")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(byFeed))

	favs, err := db.GetFavoriteItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(favs))

	read, err := db.GetReadItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(read))

	_, err = db.GetItemByID(ctx, "missing")
	assert.True(t, model.IsNotFound(err))
}

func TestDB_StateMutations(t *testing.T) {
	t.Parallel()

	t.Run("toggle favorite flips state", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db, article("a", "https://a.example/feed", "tech", 0))

		fav, err := db.ToggleFavorite(ctx, "a")
		require.NoError(t, err)
		assert.True(t, fav)
		fav, err = db.ToggleFavorite(ctx, "a")
		require.NoError(t, err)
		assert.False(t, fav)
	})

	t.Run("set read status both ways", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db, article("a", "https://a.example/feed", "tech", 0))

		require.NoError(t, db.SetReadStatus(ctx, "a", true))
		got, err := db.GetItemByID(ctx, "a")
		require.NoError(t, err)
		assert.True(t, got.IsRead)

		require.NoError(t, db.SetReadStatus(ctx, "a", false))
		got, err = db.GetItemByID(ctx, "a")
		require.NoError(t, err)
		assert.False(t, got.IsRead)
	})

	t.Run("mutations on missing ids report not found", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()

		_, err := db.ToggleFavorite(ctx, "gone")
		assert.Equal(t, model.ENOTFOUND, model.ErrorCode(err))
		assert.Equal(t, model.ENOTFOUND, model.ErrorCode(db.MarkItemAsRead(ctx, "gone")))
		assert.Equal(t, model.ENOTFOUND, model.ErrorCode(db.SetReadStatus(ctx, "gone", false)))
	})

	t.Run("mark items read ignores unknown ids", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db,
			article("a", "https://a.example/feed", "tech", 0),
			article("b", "https://a.example/feed", "tech", 1),
		)

		n, err := db.MarkItemsRead(ctx, []string{"a", "b", "zzz"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		read, err := db.GetReadItems(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, ids(read))
	})
}

func TestDB_GetArticlesByOptions(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()
	items := []model.Article{
		article("t1", "https://a.example/feed", "tech", 0),
		article("t2", "https://a.example/feed", "tech", 2),
		article("n1", "https://n.example/feed", "news", 1),
		article("n2", "https://n.example/feed", "news", 3),
		article("u1", "https://u.example/feed", "", 4),
	}
	seed(t, db, items...)
	require.NoError(t, db.MarkItemAsRead(ctx, "t1"))
	require.NoError(t, db.MarkItemAsRead(ctx, "n2"))
	read := map[string]bool{"t1": true, "n2": true}

	folders := []*string{nil, lo.ToPtr("tech"), lo.ToPtr("news"), lo.ToPtr(""), lo.ToPtr("empty")}
	readFilters := []*bool{nil, lo.ToPtr(true), lo.ToPtr(false)}

	for _, folder := range folders {
		for _, isRead := range readFilters {
			for _, order := range []model.Order{model.OrderNewest, model.OrderOldest, model.OrderRandom} {
				q := model.ArticleQuery{Folder: folder, IsRead: isRead, OrderBy: order}
				got, err := db.GetArticlesByOptions(ctx, q)
				require.NoError(t, err)

				want := lo.Filter(items, func(it model.Article, _ int) bool {
					return (folder == nil || it.Folder == *folder) && (isRead == nil || read[it.ID] == *isRead)
				})
				assert.ElementsMatch(t, ids(want), ids(got), "query %+v", q)

				for i := 1; i < len(got) && order != model.OrderRandom; i++ {
					if order == model.OrderNewest {
						assert.True(t, got[i-1].PublishDate.After(got[i].PublishDate))
					} else {
						assert.True(t, got[i-1].PublishDate.Before(got[i].PublishDate))
					}
				}
			}
		}
	}
}

func TestDB_GetRandomItem(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()
	seed(t, db,
		article("t1", "https://a.example/feed", "tech", 0),
		article("t2", "https://a.example/feed", "tech", 1),
		article("n1", "https://n.example/feed", "news", 2),
	)

	for range 20 {
		it, err := db.GetRandomItem(ctx, lo.ToPtr("tech"))
		require.NoError(t, err)
		assert.Equal(t, "tech", it.Folder)
	}

	it, err := db.GetRandomItem(ctx, nil)
	require.NoError(t, err)
	assert.Contains(t, []string{"t1", "t2", "n1"}, it.ID)

	_, err = db.GetRandomItem(ctx, lo.ToPtr("empty"))
	assert.True(t, model.IsNotFound(err))
}

func TestDB_NextPrev(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()
	seed(t, db,
		article("a", "https://a.example/feed", "tech", 0),
		article("b", "https://a.example/feed", "tech", 1),
		article("c", "https://a.example/feed", "tech", 2),
		article("x", "https://x.example/feed", "news", 3),
	)
	q := model.ArticleQuery{Folder: lo.ToPtr("tech"), OrderBy: model.OrderOldest}

	next, err := db.GetNextArticle(ctx, "b", q)
	require.NoError(t, err)
	assert.Equal(t, "c", next.ID)

	prev, err := db.GetPrevArticle(ctx, "b", q)
	require.NoError(t, err)
	assert.Equal(t, "a", prev.ID)

	_, err = db.GetNextArticle(ctx, "c", q)
	assert.True(t, model.IsNotFound(err), "no wrap-around at the end")

	_, err = db.GetPrevArticle(ctx, "a", q)
	assert.True(t, model.IsNotFound(err), "no wrap-around at the start")

	_, err = db.GetNextArticle(ctx, "x", q)
	assert.True(t, model.IsNotFound(err), "current id outside the filtered set")

	newest, err := db.GetNextArticle(ctx, "b", model.ArticleQuery{Folder: lo.ToPtr("tech"), OrderBy: model.OrderNewest})
	require.NoError(t, err)
	assert.Equal(t, "a", newest.ID)
}

func TestDB_GetItemStatsByFolder(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	seed(t, db,
		article("t1", "https://a.example/feed", "tech", 0),
		article("t2", "https://a.example/feed", "tech", 1),
		article("n1", "https://n.example/feed", "news", 2),
	)

	stats, err := db.GetItemStatsByFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.FolderStat{{Folder: "news", Count: 1}, {Folder: "tech", Count: 2}}, stats)
}

func TestDB_Reconciliation(t *testing.T) {
	t.Parallel()

	t.Run("cleanup removes orphaned feeds and their articles", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db,
			article("a1", "https://a.example/feed", "", 0),
			article("b1", "https://b.example/feed", "", 1),
			article("c1", "https://c.example/feed", "", 2),
			article("c2", "https://c.example/feed", "", 3),
		)

		removed, err := db.CleanupOrphanedFeeds(ctx, []string{"https://a.example/feed", "https://b.example/feed"})
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		feeds, err := db.GetAllFeeds(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"https://a.example/feed", "https://b.example/feed"},
			lo.Map(feeds, func(f model.FeedMeta, _ int) string { return f.URL }))

		left, err := db.GetItemsByFeedURL(ctx, "https://c.example/feed")
		require.NoError(t, err)
		assert.Empty(t, left)

		all, err := db.GetAllItems(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a1", "b1"}, ids(all))
	})

	t.Run("cleanup with no valid urls empties the store", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db, article("a1", "https://a.example/feed", "", 0))

		removed, err := db.CleanupOrphanedFeeds(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		all, err := db.GetAllItems(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("synchronize keeps fetch stats and propagates renames", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db,
			article("a1", "https://a.example/feed", "old", 0),
			article("c1", "https://c.example/feed", "", 1),
		)
		require.NoError(t, db.UpsertFeedMeta(ctx, model.FeedMeta{
			URL: "https://a.example/feed", Name: "A", Folder: "old", LastUpdated: base, ItemCount: 1,
		}))

		removed, err := db.SynchronizeWithConfig(ctx, []model.FeedSource{
			{Name: "A renamed", URL: "https://a.example/feed", Folder: "new"},
			{Name: "B", URL: "https://b.example/feed", Folder: "new"},
			{Name: "B dup", URL: "https://b.example/feed", Folder: "new"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		a, err := db.GetFeedByURL(ctx, "https://a.example/feed")
		require.NoError(t, err)
		assert.Equal(t, "A renamed", a.Name)
		assert.Equal(t, "new", a.Folder)
		assert.Equal(t, 1, a.ItemCount)
		assert.True(t, base.Equal(a.LastUpdated))

		b, err := db.GetFeedByURL(ctx, "https://b.example/feed")
		require.NoError(t, err)
		assert.Equal(t, "B", b.Name)
		assert.True(t, b.LastUpdated.IsZero())

		item, err := db.GetItemByID(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "A renamed", item.FeedName)
		assert.Equal(t, "new", item.Folder)

		_, err = db.GetFeedByURL(ctx, "https://c.example/feed")
		assert.True(t, model.IsNotFound(err))
	})

	t.Run("delete feed by url removes its articles", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db,
			article("a1", "https://a.example/feed", "", 0),
			article("b1", "https://b.example/feed", "", 1),
		)

		require.NoError(t, db.DeleteFeedByURL(ctx, "https://a.example/feed"))
		all, err := db.GetAllItems(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b1"}, ids(all))

		err = db.DeleteFeedByURL(ctx, "https://a.example/feed")
		assert.True(t, model.IsNotFound(err))
	})

	t.Run("delete items by feed url keeps the feed", func(t *testing.T) {
		t.Parallel()
		db := newTestDB(t)
		ctx := context.Background()
		seed(t, db,
			article("a1", "https://a.example/feed", "", 0),
			article("a2", "https://a.example/feed", "", 1),
		)

		n, err := db.DeleteItemsByFeedURL(ctx, "https://a.example/feed")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = db.GetFeedByURL(ctx, "https://a.example/feed")
		require.NoError(t, err)
	})
}
