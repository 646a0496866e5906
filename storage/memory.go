package storage

import (
	"context"
	"sync"

	"github.com/teranos/trellis/errors"
)

// MemoryStore keeps blobs in process memory. Used for tests and ephemeral
// servers.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, errors.NewNotFoundError("graph %s", key)
	}
	return append([]byte(nil), blob...), nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
