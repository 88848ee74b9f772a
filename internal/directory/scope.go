package directory

import (
	"context"
	"sync"
)

type scopeKey struct{}

type lookupScope struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// WithLookupScope returns a context under which remote lookups remember
// the entries they fetch, so Resolve followed by Role for the same container
// costs one request and sees one answer.
func WithLookupScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &lookupScope{entries: make(map[string]Entry)})
}

func scopedEntry(ctx context.Context, id string) (Entry, bool) {
	s, ok := ctx.Value(scopeKey{}).(*lookupScope)
	if !ok {
		return Entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

func rememberEntry(ctx context.Context, id string, e Entry) {
	s, ok := ctx.Value(scopeKey{}).(*lookupScope)
	if !ok {
		return
	}
	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()
}
