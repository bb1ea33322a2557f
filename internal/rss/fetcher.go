// Package rss provides feed fetching, parsing and the sync loop that keeps
// the local store in step with the subscription list.
package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/rssdash/internal/model"
)

const (
	// DefaultFetchTimeout bounds a single feed request.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultUserAgent is sent with every feed request.
	DefaultUserAgent = "rssdash/1.0 (+https://github.com/bryan-buckman/rssdash)"
	// MaxBodySize caps how much of a feed response is read.
	MaxBodySize = 10 << 20

	acceptHeader = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
)

// FeedWriter is the part of the store the fetcher writes to. StoreFeed must
// write the metadata and the articles atomically.
type FeedWriter interface {
	StoreFeed(ctx context.Context, meta model.FeedMeta, items []model.Article) error
}

// Fetcher handles RSS feed fetching.
type Fetcher struct {
	db            FeedWriter
	client        *http.Client
	timeout       time.Duration
	userAgent     string
	domainLimiter *domainLimiter
	now           func() time.Time
	logger        log.FieldLogger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. Its timeout is left untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithTimeout sets the timeout for HTTP requests.
// Defaults to DefaultFetchTimeout if not specified.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithRateLimit sets the per-host request rate. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(f *Fetcher) {
		f.domainLimiter = newDomainLimiter(rps)
	}
}

// WithClock overrides the time source used for missing publish dates and
// feed update stamps.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		f.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a new fetcher writing into db.
func NewFetcher(db FeedWriter, opts ...Option) *Fetcher {
	f := &Fetcher{
		db:            db,
		timeout:       DefaultFetchTimeout,
		userAgent:     DefaultUserAgent,
		domainLimiter: newDomainLimiter(DefaultRateLimit),
		now:           time.Now,
		logger:        log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	return f
}

// Fetch downloads and parses one feed, then stores its metadata and articles
// together. Any failure leaves the store untouched. Fetch and parse failures
// are returned as *FetchError; store failures are returned wrapped.
func (f *Fetcher) Fetch(ctx context.Context, src model.FeedSource) ([]model.Article, error) {
	logger := f.logger.WithField("feed", src.URL)

	body, err := f.download(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	now := f.now()
	res, err := Parse(body, src, now)
	if err != nil {
		return nil, err
	}
	for _, skipped := range res.Skipped {
		logger.WithError(skipped).Warn("Skipping malformed entry")
	}
	if res.Degraded > 0 {
		logger.WithField("count", res.Degraded).Warn("Articles got non-reproducible ids; they will duplicate on the next sync")
	}

	name := src.Name
	if name == "" {
		name = res.Title
	}
	meta := model.FeedMeta{
		URL:         src.URL,
		Name:        name,
		Folder:      src.Folder,
		LastUpdated: now,
		ItemCount:   len(res.Articles),
	}
	if err := f.db.StoreFeed(ctx, meta, res.Articles); err != nil {
		return nil, fmt.Errorf("store feed %s: %w", src.URL, err)
	}

	logger.WithField("items", len(res.Articles)).Debug("Fetched feed")
	return res.Articles, nil
}

// download performs the rate-limited GET and returns the response body.
func (f *Fetcher) download(ctx context.Context, feedURL string) ([]byte, error) {
	if err := f.domainLimiter.wait(ctx, extractDomain(feedURL)); err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: feedURL, Err: fmt.Errorf("rate limit cancelled: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: feedURL, Err: err}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: KindNetwork, URL: feedURL, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: feedURL, Err: err}
	}
	return body, nil
}
