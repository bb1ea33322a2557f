package rss

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bryan-buckman/rssdash/internal/model"
)

// Concurrency settings
const (
	// MaxConcurrencyPostgres is the number of parallel fetches for PostgreSQL
	MaxConcurrencyPostgres = 8
	// MaxConcurrencySQLite is the number of parallel fetches for SQLite (limited due to locking)
	MaxConcurrencySQLite = 1
)

// Ingester fetches one feed into the store.
type Ingester interface {
	Fetch(ctx context.Context, src model.FeedSource) ([]model.Article, error)
}

// Reconciler aligns the store with the source list.
type Reconciler interface {
	SynchronizeWithConfig(ctx context.Context, sources []model.FeedSource) (int, error)
}

// ProgressFunc is called after each feed with the number of finished feeds.
// Calls are serialized and done increases by one each time.
type ProgressFunc func(done, total int, src model.FeedSource, err error)

// Syncer fetches every subscribed feed and reconciles the store afterwards.
type Syncer struct {
	fetcher     Ingester
	store       Reconciler
	concurrency int
	progress    ProgressFunc
	logger      log.FieldLogger
}

// SyncOption configures a Syncer.
type SyncOption func(*Syncer)

// WithConcurrency sets how many feeds are fetched at once. Values below 2
// fetch sequentially.
func WithConcurrency(n int) SyncOption {
	return func(s *Syncer) {
		s.concurrency = n
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) SyncOption {
	return func(s *Syncer) {
		s.progress = fn
	}
}

// WithSyncLogger sets the logger.
func WithSyncLogger(l log.FieldLogger) SyncOption {
	return func(s *Syncer) {
		s.logger = l
	}
}

// NewSyncer creates a Syncer. Concurrency defaults to sequential.
func NewSyncer(fetcher Ingester, store Reconciler, opts ...SyncOption) *Syncer {
	s := &Syncer{
		fetcher:     fetcher,
		store:       store,
		concurrency: MaxConcurrencySQLite,
		logger:      log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultConcurrency picks the fetch concurrency a store can sustain.
func DefaultConcurrency(highConcurrency bool) int {
	if highConcurrency {
		return MaxConcurrencyPostgres
	}
	return MaxConcurrencySQLite
}

// SyncAll fetches every source, isolating per-feed failures, and then
// reconciles the store with sources. Feed failures never produce an error;
// they are counted in the result. An error is returned only when ctx is
// cancelled (no reconciliation happens then) or reconciliation fails.
func (s *Syncer) SyncAll(ctx context.Context, sources []model.FeedSource) (model.SyncResult, error) {
	sources = lo.UniqBy(sources, func(src model.FeedSource) string { return src.URL })
	logger := s.logger.WithField("run", uuid.NewString())

	t := &tally{result: model.SyncResult{Total: len(sources)}, progress: s.progress}
	logger.Infof("Syncing %d feeds with concurrency=%d", len(sources), s.concurrency)

	var err error
	if s.concurrency <= 1 {
		err = s.syncSequential(ctx, sources, t)
	} else {
		err = s.syncParallel(ctx, sources, t)
	}
	if err != nil {
		logger.Warnf("Sync cancelled after %d/%d feeds", t.done, len(sources))
		return t.result, err
	}

	removed, err := s.store.SynchronizeWithConfig(ctx, sources)
	if err != nil {
		return t.result, err
	}
	t.result.Removed = removed

	r := t.result
	entry := logger.WithFields(log.Fields{
		"succeeded": r.Succeeded,
		"failed":    r.Failed,
		"articles":  r.Articles,
		"removed":   r.Removed,
	})
	switch {
	case r.AllFailed():
		entry.Error("Sync failed for every feed")
	case r.Partial():
		entry.Warn("Sync finished with failures; already stored articles remain available")
	default:
		entry.Info("Sync finished")
	}
	return r, nil
}

// syncSequential fetches feeds one at a time (for SQLite).
func (s *Syncer) syncSequential(ctx context.Context, sources []model.FeedSource, t *tally) error {
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := s.fetchOne(ctx, src)
		t.add(src, len(items), err)
	}
	return nil
}

// syncParallel fetches feeds using a bounded worker pool (for PostgreSQL).
func (s *Syncer) syncParallel(ctx context.Context, sources []model.FeedSource, t *tally) error {
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			items, err := s.fetchOne(ctx, src)
			t.add(src, len(items), err)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (s *Syncer) fetchOne(ctx context.Context, src model.FeedSource) ([]model.Article, error) {
	if src.URL == "" {
		return nil, model.Errorf(model.EINVALID, "feed %q has no url", src.Name)
	}
	items, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		fields := log.Fields{"feed": src.URL}
		var fe *FetchError
		if errors.As(err, &fe) {
			fields["kind"] = fe.Kind
			if fe.Status != 0 {
				fields["status"] = fe.Status
			}
		}
		s.logger.WithFields(fields).WithError(err).Warn("Failed to fetch feed")
	}
	return items, err
}

// tally accumulates per-feed outcomes.
type tally struct {
	mu       sync.Mutex
	done     int
	result   model.SyncResult
	progress ProgressFunc
}

func (t *tally) add(src model.FeedSource, items int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	if err != nil {
		t.result.Failed++
		t.result.Failures = append(t.result.Failures, model.FeedFailure{URL: src.URL, Error: err.Error()})
	} else {
		t.result.Succeeded++
		t.result.Articles += items
	}
	if t.progress != nil {
		t.progress(t.done, t.result.Total, src, err)
	}
}
