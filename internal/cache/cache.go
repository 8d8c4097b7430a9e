// Package cache provides the shared TTL cache backing availability queries
// and generation dedup markers. The scheduling core treats every backend
// failure as a miss or no-op, so implementations report errors but callers
// are expected to swallow them.
package cache

import (
	"context"
	"time"
)

// Store is a minimal TTL key-value cache with prefix invalidation.
type Store interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}
