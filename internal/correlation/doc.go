// Package correlation issues the monotonically increasing correlation ids
// that courier attaches to tagged requests.
//
// The Allocator owns the in-memory counter exclusively. At startup it loads
// the last persisted value asynchronously; until that finishes it refuses to
// mint (ErrNotReady) and callers wait on Ready. A failed load is retried with
// backoff rather than guessed at. Each minted id is handed to a
// single background writer that persists the highest value seen, so storage
// latency never delays a request and the stored value never goes backwards.
//
// A crash between minting and flushing can replay a few ids after restart.
// SkipAhead is the reconciliation hook for deployments that cannot accept
// that: it advances the loaded counter by a fixed gap.
package correlation
