package cache

import (
	"context"
	"sync"
	"time"

	"options-dashboard/interfaces"
)

type memoryItem struct {
	entry     interfaces.QuoteEntry
	expiresAt time.Time // zero: never
}

// MemoryBackend keeps entries in process memory
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryBackend creates an empty in-process backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (m *MemoryBackend) Get(_ context.Context, ticker string) (*interfaces.QuoteEntry, bool, error) {
	m.mu.RLock()
	item, ok := m.items[ticker]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		return nil, false, nil
	}

	entry := item.entry
	return &entry, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, entry *interfaces.QuoteEntry, ttl time.Duration) error {
	item := memoryItem{entry: *entry}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.items[entry.Ticker] = item
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, ticker string) error {
	m.mu.Lock()
	delete(m.items, ticker)
	m.mu.Unlock()
	return nil
}
