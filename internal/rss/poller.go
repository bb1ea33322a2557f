package rss

import (
	"context"
	"sync"
	"time"

	"github.com/bryan-buckman/rssdash/internal/model"
)

// SourceFunc returns the current subscription list. It is called at the
// start of every poll so edits to the list are picked up without a restart.
type SourceFunc func() ([]model.FeedSource, error)

// pollTimeout bounds one complete sync run started by the poller.
const pollTimeout = 10 * time.Minute

// Poller runs continuous polling.
type Poller struct {
	syncer   *Syncer
	sources  SourceFunc
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a background poller. Intervals shorter than
// model.MinPollingIntervalMinutes are raised to it.
func NewPoller(syncer *Syncer, sources SourceFunc, interval time.Duration) *Poller {
	if floor := time.Duration(model.MinPollingIntervalMinutes) * time.Minute; interval < floor {
		interval = floor
	}
	return &Poller{
		syncer:   syncer,
		sources:  sources,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Interval returns the effective polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start begins the polling loop. The first sync runs immediately.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			p.poll()

			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

func (p *Poller) poll() {
	logger := p.syncer.logger.WithField("component", "poller")
	logger.Infof("Fetching all feeds (interval: %s)", p.interval)
	sources, err := p.sources()
	if err != nil {
		logger.WithError(err).Error("Cannot load sources")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()
	go func() {
		select {
		case <-p.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := p.syncer.SyncAll(ctx, sources)
	if err != nil {
		logger.WithError(err).Error("Sync failed")
		return
	}
	logger.Infof("Fetched %d items from %d/%d feeds", result.Articles, result.Succeeded, result.Total)
}

// Stop stops the poller gracefully, cancelling an in-flight sync between feeds.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
