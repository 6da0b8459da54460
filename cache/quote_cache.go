package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"options-dashboard/interfaces"
	"options-dashboard/metrics"
)

// Backend stores quote entries. Set replaces an entry as a whole.
type Backend interface {
	Get(ctx context.Context, ticker string) (*interfaces.QuoteEntry, bool, error)
	Set(ctx context.Context, entry *interfaces.QuoteEntry, ttl time.Duration) error
	Delete(ctx context.Context, ticker string) error
}

// FetchFunc loads the reference payload for a ticker on a cache miss
type FetchFunc func(ctx context.Context, ticker string) (json.RawMessage, error)

// QuoteCache memoizes reference payloads per ticker and collapses
// concurrent misses for the same ticker into one fetch.
type QuoteCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *logrus.Logger
	now     func() time.Time

	// mu orders flight writes against Invalidate; gens counts invalidations per ticker
	mu   sync.Mutex
	gens map[string]uint64
}

// NewQuoteCache creates a cache over backend. A ttl <= 0 keeps entries until invalidated.
func NewQuoteCache(backend Backend, ttl time.Duration, log *logrus.Logger) *QuoteCache {
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return &QuoteCache{
		backend: backend,
		ttl:     ttl,
		logger:  log,
		now:     time.Now,
		gens:    make(map[string]uint64),
	}
}

// GetOrFetch returns the cached entry for ticker, fetching it at most once
// across concurrent callers when absent. Failures are handed to every
// waiter and never cached.
//
// The fetch runs detached from the caller's cancellation: a caller that
// gives up returns ctx.Err() while the fetch still completes and fills the
// cache for later requests.
func (c *QuoteCache) GetOrFetch(ctx context.Context, ticker string, fetch FetchFunc) (*interfaces.QuoteEntry, error) {
	if entry, ok := c.lookup(ctx, ticker); ok {
		metrics.QuoteCacheRequests.WithLabelValues("hit").Inc()
		return entry, nil
	}
	metrics.QuoteCacheRequests.WithLabelValues("miss").Inc()

	fetchCtx := context.WithoutCancel(ctx)
	results := c.group.DoChan(ticker, func() (interface{}, error) {
		gen := c.generation(ticker)

		// A flight that finished after our lookup may already have filled the entry.
		if entry, ok := c.lookup(fetchCtx, ticker); ok {
			return entry, nil
		}

		payload, err := fetch(fetchCtx, ticker)
		if err != nil {
			return nil, err
		}

		entry := &interfaces.QuoteEntry{
			Ticker:    ticker,
			Payload:   payload,
			FetchedAt: c.now().UnixMilli(),
		}
		c.store(fetchCtx, entry, gen)
		return entry, nil
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		entry, ok := res.Val.(*interfaces.QuoteEntry)
		if !ok {
			return nil, fmt.Errorf("unexpected cache result %T", res.Val)
		}
		return entry, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the entry for ticker. Missing entries are not an error.
// A fetch already in flight still answers its waiters but no longer fills
// the cache, and later callers start a fresh fetch.
func (c *QuoteCache) Invalidate(ctx context.Context, ticker string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[ticker]++
	c.group.Forget(ticker)
	if err := c.backend.Delete(ctx, ticker); err != nil {
		return fmt.Errorf("failed to invalidate quote %s: %w", ticker, err)
	}
	c.logger.WithField("ticker", ticker).Debug("Quote invalidated")
	return nil
}

func (c *QuoteCache) generation(ticker string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[ticker]
}

// store writes entry unless ticker was invalidated since the flight began
func (c *QuoteCache) store(ctx context.Context, entry *interfaces.QuoteEntry, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.logger.WithField("ticker", entry.Ticker)
	if c.gens[entry.Ticker] != gen {
		log.Debug("Quote invalidated during fetch, not cached")
		return
	}
	if err := c.backend.Set(ctx, entry, c.ttl); err != nil {
		log.WithError(err).Warn("Failed to store quote in cache")
		return
	}
	log.Debug("Quote cached")
}

// lookup treats backend failures as misses so a broken cache only costs an upstream call
func (c *QuoteCache) lookup(ctx context.Context, ticker string) (*interfaces.QuoteEntry, bool) {
	entry, ok, err := c.backend.Get(ctx, ticker)
	if err != nil {
		c.logger.WithField("ticker", ticker).WithError(err).Warn("Quote cache read failed")
		return nil, false
	}
	return entry, ok
}
