package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-dashboard/interfaces"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type countingFetcher struct {
	calls   atomic.Int32
	payload json.RawMessage
	err     error
}

func (f *countingFetcher) Fetch(_ context.Context, _ string) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func TestGetOrFetchCachesSuccess(t *testing.T) {
	ctx := context.Background()
	qc := NewQuoteCache(NewMemoryBackend(), time.Minute, quietLogger())
	fetcher := &countingFetcher{payload: json.RawMessage(`{"results":{"ticker":"O:AAPL"}}`)}

	first, err := qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)
	second, err := qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.JSONEq(t, string(fetcher.payload), string(first.Payload))
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, "AAPL", second.Ticker)
}

func TestGetOrFetchExpiresEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend()
	backend.now = func() time.Time { return now }

	qc := NewQuoteCache(backend, time.Minute, quietLogger())
	fetcher := &countingFetcher{payload: json.RawMessage(`{}`)}

	_, err := qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	now = now.Add(time.Second)
	_, err = qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	ctx := context.Background()
	qc := NewQuoteCache(NewMemoryBackend(), time.Minute, quietLogger())

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(_ context.Context, _ string) (json.RawMessage, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return json.RawMessage(`{"status":"OK"}`), nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*interfaces.QuoteEntry, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = qc.GetOrFetch(ctx, "AAPL", fetch)
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Payload, results[i].Payload)
		assert.Equal(t, results[0].FetchedAt, results[i].FetchedAt)
	}
}

func TestGetOrFetchDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	qc := NewQuoteCache(NewMemoryBackend(), time.Minute, quietLogger())

	upstreamErr := &interfaces.UpstreamError{Status: 503, Body: "unavailable"}
	var calls atomic.Int32
	release := make(chan struct{})
	failing := func(_ context.Context, _ string) (json.RawMessage, error) {
		calls.Add(1)
		<-release
		return nil, upstreamErr
	}

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = qc.GetOrFetch(ctx, "SPY", failing)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		var got *interfaces.UpstreamError
		require.True(t, errors.As(err, &got))
		assert.Equal(t, 503, got.Status)
	}

	recovered := &countingFetcher{payload: json.RawMessage(`{"ok":true}`)}
	entry, err := qc.GetOrFetch(ctx, "SPY", recovered.Fetch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(entry.Payload))
	assert.Equal(t, int32(1), recovered.calls.Load())
}

func TestGetOrFetchAbandonedCallerStillFillsCache(t *testing.T) {
	qc := NewQuoteCache(NewMemoryBackend(), time.Minute, quietLogger())

	release := make(chan struct{})
	done := make(chan struct{})
	fetch := func(ctx context.Context, _ string) (json.RawMessage, error) {
		defer close(done)
		<-release
		// the caller's cancellation must not reach the fetch
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return json.RawMessage(`{"late":true}`), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := qc.GetOrFetch(ctx, "QQQ", fetch)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	<-done

	never := &countingFetcher{err: errors.New("should not be called")}
	require.Eventually(t, func() bool {
		entry, err := qc.GetOrFetch(context.Background(), "QQQ", never.Fetch)
		return err == nil && string(entry.Payload) == `{"late":true}`
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), never.calls.Load())
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	qc := NewQuoteCache(NewMemoryBackend(), time.Minute, quietLogger())
	fetcher := &countingFetcher{payload: json.RawMessage(`{}`)}

	require.NoError(t, qc.Invalidate(ctx, "AAPL"))

	_, err := qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)
	require.NoError(t, qc.Invalidate(ctx, "AAPL"))
	require.NoError(t, qc.Invalidate(ctx, "AAPL"))

	_, err = qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestInvalidateDuringFetchDropsStaleResult(t *testing.T) {
	ctx := context.Background()
	qc := NewQuoteCache(NewMemoryBackend(), time.Minute, quietLogger())

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context, string) (json.RawMessage, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return json.RawMessage(`{"stale":true}`), nil
		}
		return json.RawMessage(`{"fresh":true}`), nil
	}

	staleCh := make(chan *interfaces.QuoteEntry, 1)
	go func() {
		entry, err := qc.GetOrFetch(ctx, "AAPL", fetch)
		assert.NoError(t, err)
		staleCh <- entry
	}()
	<-started

	require.NoError(t, qc.Invalidate(ctx, "AAPL"))

	fresh, err := qc.GetOrFetch(ctx, "AAPL", fetch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fresh":true}`, string(fresh.Payload))

	close(release)
	stale := <-staleCh
	require.NotNil(t, stale)
	assert.JSONEq(t, `{"stale":true}`, string(stale.Payload))

	cached, err := qc.GetOrFetch(ctx, "AAPL", fetch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fresh":true}`, string(cached.Payload))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	backend := NewRedisBackend(client)

	_, ok, err := backend.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)

	payload := json.RawMessage("{\n  \"results\": {\"strike_price\": 100}\n}")
	require.NoError(t, backend.Set(ctx, &interfaces.QuoteEntry{
		Ticker:    "AAPL",
		Payload:   payload,
		FetchedAt: 1718000000000,
	}, time.Minute))

	entry, ok, err := backend.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(payload), string(entry.Payload))
	assert.Equal(t, int64(1718000000000), entry.FetchedAt)

	mr.FastForward(2 * time.Minute)
	_, ok, err = backend.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, backend.Set(ctx, &interfaces.QuoteEntry{Ticker: "SPY", Payload: json.RawMessage(`{}`)}, 0))
	require.NoError(t, backend.Delete(ctx, "SPY"))
	require.NoError(t, backend.Delete(ctx, "SPY"))
	_, ok, err = backend.Get(ctx, "SPY")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuoteCacheOverRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	qc := NewQuoteCache(NewRedisBackend(client), time.Minute, quietLogger())
	fetcher := &countingFetcher{payload: json.RawMessage(`{"status":"OK"}`)}

	_, err := qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)
	_, err = qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	// a dead backend degrades to fetching every time
	mr.Close()
	entry, err := qc.GetOrFetch(ctx, "AAPL", fetcher.Fetch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"OK"}`, string(entry.Payload))
	assert.Equal(t, int32(2), fetcher.calls.Load())
}
