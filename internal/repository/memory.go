package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryMarkerStore is the in-process fallback marker store.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	markers map[string]time.Time
}

func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{markers: make(map[string]time.Time)}
}

func (m *MemoryMarkerStore) Seen(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.markers[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiresAt) {
		delete(m.markers, key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryMarkerStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	m.markers[key] = time.Now().Add(ttl)
	return nil
}
