package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"options-dashboard/interfaces"
)

// RetryingQuoteClient decorates a QuoteFetcher with exponential backoff.
// Only transport failures and 429/5xx responses are retried.
type RetryingQuoteClient struct {
	next            interfaces.QuoteFetcher
	maxRetries      uint64
	initialInterval time.Duration
	logger          *logrus.Logger
}

// NewRetryingQuoteClient wraps next with up to maxRetries additional attempts
func NewRetryingQuoteClient(next interfaces.QuoteFetcher, maxRetries uint64, initialInterval time.Duration, log *logrus.Logger) *RetryingQuoteClient {
	if log == nil {
		log = logrus.New()
	}
	return &RetryingQuoteClient{
		next:            next,
		maxRetries:      maxRetries,
		initialInterval: initialInterval,
		logger:          log,
	}
}

func (r *RetryingQuoteClient) Fetch(ctx context.Context, ticker string) (json.RawMessage, error) {
	var payload json.RawMessage

	operation := func() error {
		p, err := r.next.Fetch(ctx, ticker)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		payload = p
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx)

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		r.logger.WithFields(logrus.Fields{
			"ticker": ticker,
			"wait":   wait,
		}).WithError(err).Warn("Retrying reference data request")
	})
	if err != nil {
		return nil, err
	}

	return payload, nil
}

func retryable(err error) bool {
	var transportErr *interfaces.TransportError
	if errors.As(err, &transportErr) {
		return true
	}

	var upstreamErr *interfaces.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Status == http.StatusTooManyRequests || upstreamErr.Status >= 500
	}

	return false
}
