package cache

import (
	"context"
	"time"
)

// Store is a key-value cache with per-entry expiry. Implementations are
// fail-soft: a broken or unreachable backend surfaces as misses and
// no-ops, never as caller-visible failures.
type Store interface {
	// Get returns the stored value for key. Missing, expired and
	// unreadable entries all report false.
	Get(ctx context.Context, key string) ([]byte, bool)

	// SetWithTTL stores value under key for the given lifetime. The
	// error is informational; callers are free to ignore it.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeleteByPrefix removes every entry whose key starts with prefix
	// and returns how many were removed. No matches is not an error.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Available reports whether the backend is currently usable.
	Available(ctx context.Context) bool
}
