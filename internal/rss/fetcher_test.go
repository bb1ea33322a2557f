package rss_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/rssdash/internal/database"
	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/rss"
)

// recordingStore is a FeedWriter that remembers every write.
type recordingStore struct {
	mu    sync.Mutex
	metas []model.FeedMeta
	items []model.Article
	err   error
}

func (s *recordingStore) StoreFeed(_ context.Context, meta model.FeedMeta, items []model.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.metas = append(s.metas, meta)
	s.items = append(s.items, items...)
	return nil
}

// brokenItemStore stores through a real database but slips an invalid
// article into every batch, so the item writes fail after the feed row.
type brokenItemStore struct {
	*database.DB
}

func (s brokenItemStore) StoreFeed(ctx context.Context, meta model.FeedMeta, items []model.Article) error {
	return s.DB.StoreFeed(ctx, meta, append(items, model.Article{FeedURL: meta.URL}))
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestFetcher(store rss.FeedWriter, opts ...rss.Option) *rss.Fetcher {
	base := []rss.Option{
		rss.WithRateLimit(0),
		rss.WithClock(func() time.Time { return testNow }),
		rss.WithLogger(quietLogger()),
	}
	return rss.NewFetcher(store, append(base, opts...)...)
}

func serveBody(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("stores feed meta and articles", func(t *testing.T) {
		t.Parallel()
		server := serveBody(t, http.StatusOK, rssTwoItems)
		store := &recordingStore{}
		src := model.FeedSource{Name: "Example", URL: server.URL, Folder: "tech"}

		items, err := newTestFetcher(store).Fetch(context.Background(), src)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.NotEqual(t, items[0].ID, items[1].ID)
		for _, it := range items {
			assert.Equal(t, server.URL, it.FeedURL)
			assert.False(t, it.IsRead)
			assert.False(t, it.IsFavorite)
		}

		require.Len(t, store.metas, 1)
		assert.Equal(t, model.FeedMeta{URL: server.URL, Name: "Example", Folder: "tech", LastUpdated: testNow, ItemCount: 2}, store.metas[0])
		assert.Len(t, store.items, 2)
	})

	t.Run("sends feed accept header and user agent", func(t *testing.T) {
		t.Parallel()
		var accept, ua string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accept = r.Header.Get("Accept")
			ua = r.Header.Get("User-Agent")
			_, _ = w.Write([]byte(rssTwoItems))
		}))
		defer server.Close()

		_, err := newTestFetcher(&recordingStore{}, rss.WithUserAgent("test-agent")).
			Fetch(context.Background(), model.FeedSource{URL: server.URL})
		require.NoError(t, err)
		assert.Contains(t, accept, "application/rss+xml")
		assert.Contains(t, accept, "application/atom+xml")
		assert.Equal(t, "test-agent", ua)
	})

	t.Run("non-2xx status is a network error and writes nothing", func(t *testing.T) {
		t.Parallel()
		server := serveBody(t, http.StatusNotFound, "missing")
		store := &recordingStore{}

		_, err := newTestFetcher(store).Fetch(context.Background(), model.FeedSource{URL: server.URL})
		var fe *rss.FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, rss.KindNetwork, fe.Kind)
		assert.Equal(t, http.StatusNotFound, fe.Status)
		assert.Empty(t, store.metas)
		assert.Empty(t, store.items)
	})

	t.Run("malformed xml is a parse error and writes nothing", func(t *testing.T) {
		t.Parallel()
		server := serveBody(t, http.StatusOK, "<rss><channel><item>")
		store := &recordingStore{}

		_, err := newTestFetcher(store).Fetch(context.Background(), model.FeedSource{URL: server.URL})
		var fe *rss.FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, rss.KindParse, fe.Kind)
		assert.Empty(t, store.metas)
		assert.Empty(t, store.items)
	})

	t.Run("transport failure is a network error", func(t *testing.T) {
		t.Parallel()
		_, err := newTestFetcher(&recordingStore{}, rss.WithTimeout(100*time.Millisecond)).
			Fetch(context.Background(), model.FeedSource{URL: "http://non-existent-host.invalid/feed"})
		var fe *rss.FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, rss.KindNetwork, fe.Kind)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		t.Parallel()
		server := serveBody(t, http.StatusOK, rssTwoItems)
		store := &recordingStore{err: errors.New("disk full")}

		_, err := newTestFetcher(store).Fetch(context.Background(), model.FeedSource{URL: server.URL})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Empty(t, store.metas)
		assert.Empty(t, store.items)
	})

	t.Run("failed item write leaves no feed row", func(t *testing.T) {
		t.Parallel()
		server := serveBody(t, http.StatusOK, rssTwoItems)
		db := database.NewSQLite(filepath.Join(t.TempDir(), "broken.db"))
		t.Cleanup(func() { _ = db.Close() })
		ctx := context.Background()

		_, err := newTestFetcher(brokenItemStore{db}).Fetch(ctx, model.FeedSource{URL: server.URL})
		require.Error(t, err)
		assert.Equal(t, model.EINVALID, model.ErrorCode(err))

		_, err = db.GetFeedByURL(ctx, server.URL)
		assert.True(t, model.IsNotFound(err), "feed meta must not be written")
		items, err := db.GetItemsByFeedURL(ctx, server.URL)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestFetcher_EndToEnd(t *testing.T) {
	t.Parallel()
	server := serveBody(t, http.StatusOK, rssTwoItems)
	db := database.NewSQLite(filepath.Join(t.TempDir(), "e2e.db"))
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	src := model.FeedSource{Name: "Example", URL: server.URL, Folder: "tech"}
	fetcher := newTestFetcher(db)

	first, err := fetcher.Fetch(ctx, src)
	require.NoError(t, err)
	require.Len(t, first, 2)

	fav, err := db.ToggleFavorite(ctx, first[0].ID)
	require.NoError(t, err)
	require.True(t, fav)
	require.NoError(t, db.MarkItemAsRead(ctx, first[1].ID))

	second, err := fetcher.Fetch(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, ids(first), ids(second), "re-ingestion yields the same ids")

	stored, err := db.GetItemsByFeedURL(ctx, server.URL)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	item1, err := db.GetItemByID(ctx, first[0].ID)
	require.NoError(t, err)
	assert.True(t, item1.IsFavorite)
	assert.False(t, item1.IsRead)

	item2, err := db.GetItemByID(ctx, first[1].ID)
	require.NoError(t, err)
	assert.True(t, item2.IsRead)
	assert.False(t, item2.IsFavorite)

	meta, err := db.GetFeedByURL(ctx, server.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.ItemCount)
	assert.True(t, testNow.Equal(meta.LastUpdated))
}

func ids(items []model.Article) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
