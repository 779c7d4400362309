// Package cache wraps the shared Redis instance used for request accounting.
package cache

import (
	"context"
	"time"
)

// CounterOps are the key operations fixed-window counters need.
type CounterOps interface {
	// SetNX sets the value only if the key does not exist.
	// Returns true if the key was set.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Incr increments the integer value of a key by 1.
	Incr(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining time to live of a key.
	// Returns -1 if the key has no expiry and -2 if it does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Expire sets a timeout on a key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Cache is a CounterOps backed by a connection that must be closed.
type Cache interface {
	CounterOps
	Ping(ctx context.Context) error
	Close() error
}
