// Package cachestore implements the client-resident cache: a key→snapshot
// map with staleness timers, subscription notification and garbage
// collection.
//
// # Read path
//
// GetOrFetch is the only read most callers need:
//
//   - fresh hit: the snapshot is returned, nothing else happens
//   - stale hit: the snapshot is returned immediately and a background
//     refetch revalidates it (stale-while-revalidate); concurrent refetches
//     of one key collapse into a single flight
//   - miss: the fetch runs synchronously and populates the entry
//
// Staleness windows are short — seconds, not minutes — because the cached
// domains (proposals, products, customers) are mutated constantly and a
// dashboard that lags its own writes reads as broken.
//
// # Cancellation
//
// Background refetches are explicit RefetchTask values with an abandonment
// flag. A subscriber that detaches before the fetch completes abandons the
// task, and an abandoned task never writes to the store. There are no cache
// writes from cancelled operations.
//
// # Invalidation
//
// Three granularities, all taking effect immediately:
//
//	store.InvalidateKey(key)              // exact key
//	store.InvalidatePrefix(prefix)        // e.g. all product lists
//	store.Invalidate(func(k querykey.Key) bool { ... })
//
// The mutation coordinator relies on InvalidateKey running before any
// verification read; see the mutation package.
//
// # Garbage collection
//
// Entries with zero subscribers are evicted once GCRetention elapses past
// their last touch. The retention window is longer than the staleness window
// but bounded, capping memory growth. Sweeps run off the injected clock, so
// tests drive eviction timing directly.
//
// The store is process-local and per-session. It is never shared across
// tenants: keys are tenant-prefixed and a tenant switch drops everything.
package cachestore
