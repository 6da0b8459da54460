package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"options-dashboard/cache"
	"options-dashboard/interfaces"
)

// EnrichedOption is a local contract merged with live reference data.
// The local fields are always present; Reference is omitted when the
// provider could not be reached or the contract has no ticker.
type EnrichedOption struct {
	*interfaces.OptionContract
	ReferenceTicker       string          `json:"reference_ticker,omitempty"`
	Reference             json.RawMessage `json:"reference,omitempty"`
	ReferenceFetchedAt    *time.Time      `json:"reference_fetched_at,omitempty"`
	EnrichmentUnavailable bool            `json:"enrichment_unavailable"`
	EnrichmentError       string          `json:"enrichment_error,omitempty"`
}

// ContractService serves option contracts, enriched with reference data,
// and guards mutations behind a verified identity.
type ContractService struct {
	store    interfaces.OptionStore
	quotes   *cache.QuoteCache
	fetcher  interfaces.QuoteFetcher
	identity interfaces.IdentityVerifier
	activity *ActivityLogger
	logger   *logrus.Logger
}

// NewContractService wires the service. activity may be nil.
func NewContractService(
	store interfaces.OptionStore,
	quotes *cache.QuoteCache,
	fetcher interfaces.QuoteFetcher,
	identity interfaces.IdentityVerifier,
	activity *ActivityLogger,
	log *logrus.Logger,
) *ContractService {
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return &ContractService{
		store:    store,
		quotes:   quotes,
		fetcher:  fetcher,
		identity: identity,
		activity: activity,
		logger:   log,
	}
}

// List returns contracts in insertion order
func (s *ContractService) List(ctx context.Context, offset int, limit *int) ([]*interfaces.OptionContract, error) {
	return s.store.List(ctx, offset, limit)
}

// Get returns a single contract
func (s *ContractService) Get(ctx context.Context, id int64) (*interfaces.OptionContract, error) {
	return s.store.Get(ctx, id)
}

// GetEnriched returns the local contract plus its reference data. Upstream
// failures degrade to the local record with EnrichmentUnavailable set;
// store failures are returned as is.
func (s *ContractService) GetEnriched(ctx context.Context, id int64) (*EnrichedOption, error) {
	contract, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	enriched := &EnrichedOption{
		OptionContract:  contract,
		ReferenceTicker: contract.ReferenceTicker(),
	}

	if enriched.ReferenceTicker == "" {
		enriched.EnrichmentUnavailable = true
		enriched.EnrichmentError = "contract has no ticker or underlying symbol"
		return enriched, nil
	}

	entry, err := s.quotes.GetOrFetch(ctx, enriched.ReferenceTicker, s.fetcher.Fetch)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"option_id": id,
			"ticker":    enriched.ReferenceTicker,
		}).WithError(err).Warn("Enrichment unavailable, serving local record")

		enriched.EnrichmentUnavailable = true
		enriched.EnrichmentError = err.Error()
		return enriched, nil
	}

	fetchedAt := time.UnixMilli(entry.FetchedAt).UTC()
	enriched.Reference = entry.Payload
	enriched.ReferenceFetchedAt = &fetchedAt
	return enriched, nil
}

// Quote returns the cached reference payload for a ticker
func (s *ContractService) Quote(ctx context.Context, ticker string) (*interfaces.QuoteEntry, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, &interfaces.ValidationError{Field: "ticker", Reason: "must not be empty"}
	}
	return s.quotes.GetOrFetch(ctx, ticker, s.fetcher.Fetch)
}

// RefreshQuote drops the cached payload for ticker so the next read refetches it
func (s *ContractService) RefreshQuote(ctx context.Context, token, ticker string) error {
	identity, err := s.authorize(ctx, token)
	if err != nil {
		return err
	}

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return &interfaces.ValidationError{Field: "ticker", Reason: "must not be empty"}
	}
	if err := s.quotes.Invalidate(ctx, ticker); err != nil {
		return err
	}

	s.record(identity, ActionQuoteRefreshed, 0, ticker, nil)
	return nil
}

// Me returns the identity behind token
func (s *ContractService) Me(ctx context.Context, token string) (*interfaces.Identity, error) {
	return s.authorize(ctx, token)
}

// Create stores a new contract on behalf of the caller
func (s *ContractService) Create(ctx context.Context, token string, draft interfaces.OptionDraft) (*interfaces.OptionContract, error) {
	identity, err := s.authorize(ctx, token)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"option_id": created.ID,
		"username":  identity.Username,
	}).Info("Option contract created")

	s.record(identity, ActionOptionCreated, created.ID, created.Ticker, map[string]interface{}{
		"contract": created,
	})
	return created, nil
}

// Update applies a partial patch on behalf of the caller
func (s *ContractService) Update(ctx context.Context, token string, id int64, patch interfaces.OptionPatch) (*interfaces.OptionContract, error) {
	identity, err := s.authorize(ctx, token)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"option_id": id,
		"username":  identity.Username,
	}).Info("Option contract updated")

	s.record(identity, ActionOptionUpdated, id, updated.Ticker, map[string]interface{}{
		"patch":    patch,
		"contract": updated,
	})
	return updated, nil
}

// Delete removes a contract on behalf of the caller
func (s *ContractService) Delete(ctx context.Context, token string, id int64) error {
	identity, err := s.authorize(ctx, token)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"option_id": id,
		"username":  identity.Username,
	}).Info("Option contract deleted")

	s.record(identity, ActionOptionDeleted, id, "", nil)
	return nil
}

func (s *ContractService) authorize(ctx context.Context, token string) (*interfaces.Identity, error) {
	if s.identity == nil {
		return nil, &interfaces.AuthError{Reason: "no identity provider configured"}
	}
	return s.identity.Verify(ctx, token)
}

// record writes to the activity log; the mutation has already committed,
// so a failure here is logged rather than returned.
func (s *ContractService) record(identity *interfaces.Identity, action string, optionID int64, ticker string, details map[string]interface{}) {
	if s.activity == nil {
		return
	}
	if err := s.activity.LogActivity(action, optionID, ticker, identity.Username, details); err != nil {
		s.logger.WithError(err).WithField("action", action).Warn("Failed to write activity log")
	}
}
