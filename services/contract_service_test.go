package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-dashboard/cache"
	"options-dashboard/database"
	"options-dashboard/interfaces"
)

type tokenVerifier map[string]*interfaces.Identity

func (v tokenVerifier) Verify(_ context.Context, token string) (*interfaces.Identity, error) {
	if token == "disabled" {
		return nil, &interfaces.AuthError{Reason: "inactive user", Inactive: true}
	}
	identity, ok := v[token]
	if !ok {
		return nil, &interfaces.AuthError{Reason: "could not validate credentials"}
	}
	return identity, nil
}

var testVerifier = tokenVerifier{"good": {Username: "johndoe"}}

type stubFetcher struct {
	calls   atomic.Int32
	payload json.RawMessage
	err     error
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func newTestService(t *testing.T, fetcher interfaces.QuoteFetcher) (*ContractService, *ActivityLogger) {
	t.Helper()
	activity := NewActivityLogger(t.TempDir())
	activity.logger = quietLogger()
	quotes := cache.NewQuoteCache(cache.NewMemoryBackend(), time.Minute, quietLogger())
	svc := NewContractService(database.NewMemoryStore(), quotes, fetcher, testVerifier, activity, quietLogger())
	return svc, activity
}

func callDraft() interfaces.OptionDraft {
	return interfaces.OptionDraft{
		Underlying:     "AAPL",
		ContractType:   interfaces.ContractTypeCall,
		ExerciseStyle:  interfaces.ExerciseStyleAmerican,
		StrikePrice:    decimal.NewFromInt(100),
		ExpirationDate: civil.Date{Year: 2025, Month: 6, Day: 20},
	}
}

func TestMutationsRequireIdentity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &stubFetcher{})

	for _, token := range []string{"", "bogus", "disabled"} {
		_, err := svc.Create(ctx, token, callDraft())
		var authErr *interfaces.AuthError
		require.True(t, errors.As(err, &authErr), "token %q", token)
		assert.Equal(t, token == "disabled", authErr.Inactive)
	}

	all, err := svc.List(ctx, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, all)

	created, err := svc.Create(ctx, "good", callDraft())
	require.NoError(t, err)

	strike := decimal.NewFromInt(120)
	_, err = svc.Update(ctx, "bogus", created.ID, interfaces.OptionPatch{StrikePrice: &strike})
	var authErr *interfaces.AuthError
	assert.True(t, errors.As(err, &authErr))

	err = svc.Delete(ctx, "", created.ID)
	assert.True(t, errors.As(err, &authErr))

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.StrikePrice.Equal(decimal.NewFromInt(100)))
}

func TestLifecycleIsRecorded(t *testing.T) {
	ctx := context.Background()
	svc, activity := newTestService(t, &stubFetcher{})

	created, err := svc.Create(ctx, "good", callDraft())
	require.NoError(t, err)
	strike := decimal.NewFromInt(110)
	_, err = svc.Update(ctx, "good", created.ID, interfaces.OptionPatch{StrikePrice: &strike})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "good", created.ID))

	_, err = svc.Get(ctx, created.ID)
	var notFound *interfaces.NotFoundError
	assert.True(t, errors.As(err, &notFound))

	log, err := activity.GetCurrentLog()
	require.NoError(t, err)
	require.Len(t, log.Activities, 3)
	assert.Equal(t, ActionOptionCreated, log.Activities[0].Action)
	assert.Equal(t, ActionOptionUpdated, log.Activities[1].Action)
	assert.Equal(t, ActionOptionDeleted, log.Activities[2].Action)
	assert.Equal(t, "johndoe", log.Activities[2].Username)
	assert.Equal(t, 1, log.Summary.OptionsCreated)
	assert.Equal(t, 3, log.Summary.TotalActivities)
}

func TestGetEnrichedMergesReferenceData(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{payload: json.RawMessage(`{"results":{"ticker":"O:AAPL250620C00100000"},"status":"OK"}`)}
	svc, _ := newTestService(t, fetcher)

	created, err := svc.Create(ctx, "good", callDraft())
	require.NoError(t, err)

	enriched, err := svc.GetEnriched(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, enriched.EnrichmentUnavailable)
	assert.Equal(t, "O:AAPL250620C00100000", enriched.ReferenceTicker)
	assert.JSONEq(t, string(fetcher.payload), string(enriched.Reference))
	require.NotNil(t, enriched.ReferenceFetchedAt)

	_, err = svc.GetEnriched(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	body, err := json.Marshal(enriched)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, float64(created.ID), decoded["id"])
	assert.Equal(t, "call", decoded["contract_type"])
	assert.Equal(t, float64(100), decoded["strike_price"])
	assert.Equal(t, "2025-06-20", decoded["expiration_date"])
	assert.Equal(t, false, decoded["enrichment_unavailable"])
}

func TestGetEnrichedDegradesOnUpstreamFailure(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"ERROR"}`))
	}))
	defer server.Close()

	svc, _ := newTestService(t, NewPolygonClient(testAPIKey, server.URL, time.Second, quietLogger()))

	created, err := svc.Create(ctx, "good", callDraft())
	require.NoError(t, err)

	enriched, err := svc.GetEnriched(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, enriched.EnrichmentUnavailable)
	assert.Contains(t, enriched.EnrichmentError, "503")
	assert.Nil(t, enriched.Reference)
	assert.Equal(t, created.ID, enriched.ID)
	assert.True(t, enriched.StrikePrice.Equal(decimal.NewFromInt(100)))
}

func TestGetEnrichedWithoutTicker(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{}
	svc, _ := newTestService(t, fetcher)

	draft := callDraft()
	draft.Underlying = ""
	created, err := svc.Create(ctx, "good", draft)
	require.NoError(t, err)

	enriched, err := svc.GetEnriched(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, enriched.EnrichmentUnavailable)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestGetEnrichedPropagatesStoreErrors(t *testing.T) {
	svc, _ := newTestService(t, &stubFetcher{})

	_, err := svc.GetEnriched(context.Background(), 77)
	var notFound *interfaces.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestQuoteAndRefresh(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{payload: json.RawMessage(`{"status":"OK"}`)}
	svc, _ := newTestService(t, fetcher)

	entry, err := svc.Quote(ctx, "o:aapl250620c00100000")
	require.NoError(t, err)
	assert.Equal(t, "O:AAPL250620C00100000", entry.Ticker)

	_, err = svc.Quote(ctx, "O:AAPL250620C00100000")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	var authErr *interfaces.AuthError
	assert.True(t, errors.As(svc.RefreshQuote(ctx, "", "O:AAPL250620C00100000"), &authErr))

	require.NoError(t, svc.RefreshQuote(ctx, "good", "O:AAPL250620C00100000"))
	_, err = svc.Quote(ctx, "O:AAPL250620C00100000")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())

	fetcher.err = &interfaces.UpstreamError{Status: 404, Body: "not found"}
	_, err = svc.Quote(ctx, "SPY")
	var upstreamErr *interfaces.UpstreamError
	assert.True(t, errors.As(err, &upstreamErr))
}
