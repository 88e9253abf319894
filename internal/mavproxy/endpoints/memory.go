package endpoints

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

// MemoryStore keeps endpoints in process memory only.
type MemoryStore struct {
	mu    sync.RWMutex
	items []endpoint.Endpoint
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// List returns all stored endpoints.
func (m *MemoryStore) List(_ context.Context) ([]endpoint.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.items), nil
}

// Get returns a single endpoint if present.
func (m *MemoryStore) Get(_ context.Context, name string) (*endpoint.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := indexOf(m.items, name); i >= 0 {
		copy := m.items[i]
		return &copy, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Upsert stores or replaces an endpoint.
func (m *MemoryStore) Upsert(_ context.Context, e endpoint.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := indexOf(m.items, e.Name); i >= 0 {
		m.items[i] = e
		return nil
	}
	m.items = append(m.items, e)
	return nil
}

// Delete removes an endpoint by name.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := indexOf(m.items, name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	m.items = slices.Delete(m.items, i, i+1)
	return nil
}

var _ Store = (*MemoryStore)(nil)
