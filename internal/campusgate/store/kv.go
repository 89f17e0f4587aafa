package store

import (
	"context"
	"time"
)

// KV is the short-lived key/value store behind admin OTP challenges,
// sessions and attempt counters.  Get returns ErrNotFound for missing or
// expired keys.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Incr increments key and, when the key is new, sets its ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
