package store

import (
	"context"
	"sync"

	"github.com/albert-vybestein/neobank/ports"
)

// MemoryStore is an in-memory implementation of the RecordStore interface
type MemoryStore struct {
	collections map[string][]byte
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]byte),
	}
}

var _ ports.RecordStore = (*MemoryStore)(nil)

// Read returns a copy of the stored collection
func (s *MemoryStore) Read(ctx context.Context, collection string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// Write replaces the collection
func (s *MemoryStore) Write(ctx context.Context, collection string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[collection] = append([]byte(nil), data...)
	return nil
}

// Clear removes all collections. Tests use it to reset state between cases.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections = make(map[string][]byte)
}
