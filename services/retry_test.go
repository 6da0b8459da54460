package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-dashboard/interfaces"
)

type scriptedFetcher struct {
	calls atomic.Int32
	errs  []error
}

func (f *scriptedFetcher) Fetch(_ context.Context, _ string) (json.RawMessage, error) {
	n := int(f.calls.Add(1)) - 1
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	return json.RawMessage(`{"status":"OK"}`), nil
}

func TestRetryingQuoteClientRetriesTransientFailures(t *testing.T) {
	inner := &scriptedFetcher{errs: []error{
		&interfaces.TransportError{Cause: errors.New("connection reset")},
		&interfaces.UpstreamError{Status: 503, Body: "busy"},
	}}
	client := NewRetryingQuoteClient(inner, 3, time.Millisecond, quietLogger())

	payload, err := client.Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"OK"}`, string(payload))
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetryingQuoteClientStopsOnClientErrors(t *testing.T) {
	inner := &scriptedFetcher{errs: []error{
		&interfaces.UpstreamError{Status: 404, Body: "not found"},
	}}
	client := NewRetryingQuoteClient(inner, 3, time.Millisecond, quietLogger())

	_, err := client.Fetch(context.Background(), "AAPL")
	var upstreamErr *interfaces.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, 404, upstreamErr.Status)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetryingQuoteClientGivesUp(t *testing.T) {
	failure := &interfaces.UpstreamError{Status: 500, Body: "boom"}
	inner := &scriptedFetcher{errs: []error{failure, failure, failure, failure}}
	client := NewRetryingQuoteClient(inner, 2, time.Millisecond, quietLogger())

	_, err := client.Fetch(context.Background(), "AAPL")
	var upstreamErr *interfaces.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, int32(3), inner.calls.Load())
}
