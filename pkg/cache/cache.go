// Package cache provides the key/value stores that back the incremental
// ledger.
//
// Three implementations are available:
//   - [FileCache] keeps one file per key under a directory and writes through
//     a temporary file plus rename, so concurrent runs sharing the directory
//     never observe a partial entry.
//   - [RedisCache] keeps entries in Redis for ledgers shared across machines.
//   - [NullCache] stores nothing, which forces every stage to reprocess.
//
// Use [Scoped] to give each pipeline stage its own key space.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the stored value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}
