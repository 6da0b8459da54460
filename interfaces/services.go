package interfaces

import (
	"context"
	"encoding/json"
)

// OptionStore is the authoritative CRUD collection of option contracts.
// Create, Update and Delete are mutually exclusive; Get and List observe
// committed state only.
type OptionStore interface {
	Create(ctx context.Context, draft OptionDraft) (*OptionContract, error)
	Get(ctx context.Context, id int64) (*OptionContract, error)
	List(ctx context.Context, offset int, limit *int) ([]*OptionContract, error)
	Update(ctx context.Context, id int64, patch OptionPatch) (*OptionContract, error)
	Delete(ctx context.Context, id int64) error
}

// QuoteFetcher retrieves the reference payload for a ticker from the upstream provider
type QuoteFetcher interface {
	Fetch(ctx context.Context, ticker string) (json.RawMessage, error)
}

// IdentityVerifier resolves a bearer token to an active account
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// UserStore looks up accounts for the identity collaborator
type UserStore interface {
	FindUser(ctx context.Context, username string) (*User, error)
	SaveUser(ctx context.Context, user *User) error
}

// Identity is the verified caller of a request
type Identity struct {
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// User is a stored account
type User struct {
	Username       string
	FullName       string
	Email          string
	HashedPassword string
	Disabled       bool
}

// QuoteEntry is a cached reference payload for one ticker
type QuoteEntry struct {
	Ticker    string          `json:"ticker"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt int64           `json:"fetched_at"` // Unix milliseconds
}
