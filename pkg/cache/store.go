// Package cache keeps resolved content keyed by content-hash. Content behind
// a CID is immutable, so entries never need invalidation; only successful
// resolutions are stored.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrStoreClosed = errors.New("cache store closed")

// Store is a byte-oriented key/value store. A ttl of 0 keeps the entry until
// it is evicted.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
