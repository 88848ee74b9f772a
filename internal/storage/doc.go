// Package storage groups the durable CounterStore implementations used by
// the correlation allocator:
//
//   - badgerstore: embedded BadgerDB, the default
//   - sqlitestore: a single SQLite file, convenient to inspect by hand
//
// Both store the counter as a plain integer under the configured key and may
// be opened by exactly one process at a time.
package storage
