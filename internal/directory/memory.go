package directory

import (
	"context"
	"sync"
)

// Memory is a thread-safe in-process directory.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates a directory holding entries.
func NewMemory(entries ...Entry) *Memory {
	m := &Memory{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return m
}

// Put adds or replaces one entry.
func (m *Memory) Put(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
}

// Replace swaps the whole snapshot atomically.
func (m *Memory) Replace(entries map[string]Entry) {
	next := make(map[string]Entry, len(entries))
	for id, e := range entries {
		next[id] = e
	}
	m.mu.Lock()
	m.entries = next
	m.mu.Unlock()
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) lookup(ctx context.Context, id string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Resolve implements Resolver.
func (m *Memory) Resolve(ctx context.Context, id string) (Identity, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: e.ID, Name: e.Name}, nil
}

// Role implements RoleDirectory.
func (m *Memory) Role(ctx context.Context, id string) (string, bool, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return "", false, err
	}
	return e.Role, e.Role != "", nil
}
