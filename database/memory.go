package database

import (
	"context"
	"sync"

	"options-dashboard/interfaces"
)

// MemoryStore is an in-process OptionStore and UserStore. Records are kept
// in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	options []interfaces.OptionContract
	lastID  int64
	users   map[string]interfaces.User
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]interfaces.User)}
}

func (m *MemoryStore) Create(_ context.Context, draft interfaces.OptionDraft) (*interfaces.OptionContract, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID++
	contract := draft.ToContract(m.lastID)
	m.options = append(m.options, contract)

	return &contract, nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*interfaces.OptionContract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return nil, &interfaces.NotFoundError{ID: id}
	}

	contract := m.options[idx]
	return &contract, nil
}

func (m *MemoryStore) List(_ context.Context, offset int, limit *int) ([]*interfaces.OptionContract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start, end, err := interfaces.CheckRange(offset, limit, len(m.options))
	if err != nil {
		return nil, err
	}

	contracts := make([]*interfaces.OptionContract, 0, end-start)
	for i := start; i < end; i++ {
		contract := m.options[i]
		contracts = append(contracts, &contract)
	}
	return contracts, nil
}

func (m *MemoryStore) Update(_ context.Context, id int64, patch interfaces.OptionPatch) (*interfaces.OptionContract, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return nil, &interfaces.NotFoundError{ID: id}
	}

	m.options[idx] = patch.Apply(m.options[idx])
	contract := m.options[idx]
	return &contract, nil
}

func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return &interfaces.NotFoundError{ID: id}
	}

	m.options = append(m.options[:idx], m.options[idx+1:]...)
	return nil
}

// FindUser retrieves an account by username
func (m *MemoryStore) FindUser(_ context.Context, username string) (*interfaces.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[username]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	return &user, nil
}

// SaveUser inserts or replaces an account keyed by username
func (m *MemoryStore) SaveUser(_ context.Context, user *interfaces.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[user.Username] = *user
	return nil
}

// indexOf relies on ids being appended in increasing order
func (m *MemoryStore) indexOf(id int64) int {
	lo, hi := 0, len(m.options)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case m.options[mid].ID == id:
			return mid
		case m.options[mid].ID < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}
