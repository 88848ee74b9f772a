package correlation

import (
	"context"
	"sync"
)

// CounterStore persists integer counters by key.
type CounterStore interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (int64, bool, error)
	// Set stores value under key.
	Set(ctx context.Context, key string, value int64) error
}

// MemoryStore is a CounterStore that lives only as long as the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]int64)}
}

// Get implements CounterStore.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements CounterStore.
func (s *MemoryStore) Set(ctx context.Context, key string, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Close implements io.Closer.
func (s *MemoryStore) Close() error {
	return nil
}
