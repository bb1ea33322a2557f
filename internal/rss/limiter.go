package rss

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultRateLimit is the default number of requests per second sent to a single host.
const DefaultRateLimit = 2.0

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
// Each domain gets its own token bucket with a burst of 1.
type domainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
}

// newDomainLimiter creates a per-domain rate limiter. A non-positive rps
// disables limiting.
func newDomainLimiter(rps float64) *domainLimiter {
	return &domainLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
	}
}

// wait blocks until the domain's limiter allows a request or ctx is done.
func (dl *domainLimiter) wait(ctx context.Context, domain string) error {
	if dl.rps <= 0 {
		return nil
	}
	dl.mu.Lock()
	limiter, ok := dl.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(dl.rps), 1)
		dl.limiters[domain] = limiter
	}
	dl.mu.Unlock()

	return limiter.Wait(ctx)
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL // fallback to full URL
	}
	return u.Host
}
