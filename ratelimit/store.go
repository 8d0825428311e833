// Package ratelimit tracks the two independent call budgets of the service:
// the global daily quota for the external AI classifier and the per-user
// hourly submission throttle. Both keep their counters in an external
// key-value store with TTL-based expiry standing in for the reset clock.
package ratelimit

import (
	"context"
	"time"
)

// A Store is the narrow key-value surface the counters need. Entries expire
// after their TTL; no multi-key transactional guarantee is assumed, so
// counter updates are best-effort under concurrency.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put stores value under key for at most ttl.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Has reports whether key is present.
	Has(ctx context.Context, key string) (bool, error)
	// Forget removes key, if present.
	Forget(ctx context.Context, key string) error
}
