package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"options-dashboard/cache"
	"options-dashboard/interfaces"
)

// QuoteWarmer keeps reference data for stored contracts in the cache so
// enriched reads are served without waiting on the provider.
type QuoteWarmer struct {
	store    interfaces.OptionStore
	quotes   *cache.QuoteCache
	fetcher  interfaces.QuoteFetcher
	interval time.Duration
	logger   *logrus.Logger
}

// WarmResult counts the outcome of one pass
type WarmResult struct {
	Tickers int
	Failed  int
}

// NewQuoteWarmer creates a warmer that runs every interval
func NewQuoteWarmer(
	store interfaces.OptionStore,
	quotes *cache.QuoteCache,
	fetcher interfaces.QuoteFetcher,
	interval time.Duration,
	log *logrus.Logger,
) *QuoteWarmer {
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return &QuoteWarmer{
		store:    store,
		quotes:   quotes,
		fetcher:  fetcher,
		interval: interval,
		logger:   log,
	}
}

// Run warms the cache every interval until ctx is cancelled
func (w *QuoteWarmer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.WithField("interval", w.interval).Info("Quote warming started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Quote warming stopped")
			return
		case <-ticker.C:
			if _, err := w.WarmOnce(ctx); err != nil {
				w.logger.WithError(err).Error("Failed to list contracts for warming")
			}
		}
	}
}

// WarmOnce fetches every distinct reference ticker that is not already cached.
// Provider failures are counted, not returned; a store failure aborts the pass.
func (w *QuoteWarmer) WarmOnce(ctx context.Context) (WarmResult, error) {
	contracts, err := w.store.List(ctx, 0, nil)
	if err != nil {
		return WarmResult{}, err
	}

	seen := make(map[string]struct{})
	var result WarmResult
	for _, contract := range contracts {
		ticker := contract.ReferenceTicker()
		if ticker == "" {
			continue
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		result.Tickers++

		if _, err := w.quotes.GetOrFetch(ctx, ticker, w.fetcher.Fetch); err != nil {
			result.Failed++
			w.logger.WithError(err).WithField("ticker", ticker).Debug("Failed to warm quote")
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	w.logger.WithFields(logrus.Fields{
		"tickers": result.Tickers,
		"failed":  result.Failed,
	}).Debug("Quote warming pass complete")
	return result, nil
}
