package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"options-dashboard/interfaces"
	"options-dashboard/metrics"
)

// Upstream error bodies are kept for diagnostics, truncated to this size
const maxErrorBody = 4 << 10

// PolygonClient fetches options contract reference data from Polygon.
// Every call is a single attempt; see RetryingQuoteClient for retries.
type PolygonClient struct {
	apiKey  string
	baseURL string
	logger  *logrus.Logger
	client  *http.Client
}

// NewPolygonClient creates a reference data client. The API key is sent
// only as a bearer credential, never in the URL.
func NewPolygonClient(apiKey, baseURL string, timeout time.Duration, log *logrus.Logger) *PolygonClient {
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return &PolygonClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch returns the provider's payload for an options ticker unchanged
func (c *PolygonClient) Fetch(ctx context.Context, ticker string) (json.RawMessage, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, &interfaces.ValidationError{Field: "ticker", Reason: "must not be empty"}
	}

	endpoint := fmt.Sprintf("%s/v3/reference/options/contracts/%s", c.baseURL, url.PathEscape(ticker))

	c.logger.WithField("ticker", ticker).Debug("Fetching options contract reference data")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reference request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("transport_error").Inc()
		c.logger.WithField("ticker", ticker).WithError(c.scrub(err)).Warn("Reference data request failed")
		return nil, &interfaces.TransportError{Cause: c.scrub(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read past the cap so a key straddling it is redacted whole before truncation
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+int64(len(c.apiKey))))
		metrics.UpstreamRequests.WithLabelValues("status_error").Inc()
		c.logger.WithFields(logrus.Fields{
			"ticker": ticker,
			"status": resp.StatusCode,
		}).Warn("Reference data provider returned an error")
		return nil, &interfaces.UpstreamError{
			Status: resp.StatusCode,
			Body:   truncate(c.redact(string(body)), maxErrorBody),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("transport_error").Inc()
		return nil, &interfaces.TransportError{Cause: c.scrub(err)}
	}
	if !json.Valid(body) {
		metrics.UpstreamRequests.WithLabelValues("status_error").Inc()
		return nil, &interfaces.UpstreamError{
			Status: resp.StatusCode,
			Body:   "provider returned a non-JSON payload",
		}
	}

	metrics.UpstreamRequests.WithLabelValues("ok").Inc()
	return json.RawMessage(body), nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// redact strips the API key from text that came back from the provider
func (c *PolygonClient) redact(s string) string {
	if c.apiKey == "" {
		return s
	}
	return strings.ReplaceAll(s, c.apiKey, "[REDACTED]")
}

// scrub replaces err when its message would leak the API key
func (c *PolygonClient) scrub(err error) error {
	if c.apiKey == "" || !strings.Contains(err.Error(), c.apiKey) {
		return err
	}
	return &redactedError{msg: c.redact(err.Error()), timeout: isTimeout(err)}
}

type redactedError struct {
	msg     string
	timeout bool
}

func (e *redactedError) Error() string   { return e.msg }
func (e *redactedError) Timeout() bool   { return e.timeout }
func (e *redactedError) Temporary() bool { return false }

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
