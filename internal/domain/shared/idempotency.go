package shared

import (
	"context"
	"errors"
	"time"
)

// IdempotencyStore records processed keys (message correlation ids,
// idempotency tokens) with a TTL.
type IdempotencyStore interface {
	// MarkProcessed atomically marks key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Unmark removes a key so a failed attempt can be retried.
	Unmark(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for consumer-side deduplication
type IdempotencyConfig struct {
	// TTL is how long a processed correlation id is remembered.
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}

// ErrLockNotAcquired is returned when another holder owns the lock.
var ErrLockNotAcquired = errors.New("lock: not acquired")

// ErrLockNotHeld is returned by Release when the lock expired or was taken over.
var ErrLockNotHeld = errors.New("lock: not held")

// Locker issues short-lived mutual-exclusion locks shared by all instances.
// A lock is best-effort serialization; correctness still comes from the
// state check under optimistic versioning.
type Locker interface {
	// Acquire tries to take key for ttl, polling until wait elapses.
	// wait == 0 means a single attempt.
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lock, error)
}

// Lock is a held lock.
type Lock interface {
	Key() string
	// Release frees the lock only if it is still owned by this holder.
	Release(ctx context.Context) error
}

// CounterStore keeps expiring counters and flags shared by all instances.
// Risk control uses it for attempt windows, failure counts and user blocks.
type CounterStore interface {
	// Incr adds one to key and returns the new value. The TTL is set when
	// the key is created and not extended afterwards.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Count returns the value of key, or 0 when it is absent or expired
	Count(ctx context.Context, key string) (int64, error)

	// SetFlag stores value under key for ttl
	SetFlag(ctx context.Context, key, value string, ttl time.Duration) error

	// Flag returns the value stored under key and whether it is present
	Flag(ctx context.Context, key string) (string, bool, error)

	// Delete removes key
	Delete(ctx context.Context, key string) error
}
