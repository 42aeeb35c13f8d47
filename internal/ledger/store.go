package ledger

import (
	"context"
	"sync"
)

// Store is the flat string-keyed blob store the ledger persists into.
// Load returns (nil, nil) for a key that has never been written.
// SaveAll must apply every entry in one atomic round: a reader never
// observes a balance from one write paired with a history from another.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	SaveAll(ctx context.Context, entries map[string][]byte) error
}

// MemoryStore is the in-process Store used by tests and by deployments
// that run without Redis.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *MemoryStore) SaveAll(ctx context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, val := range entries {
		cp := make([]byte, len(val))
		copy(cp, val)
		s.data[key] = cp
	}
	return nil
}
