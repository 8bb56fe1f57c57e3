package cache

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotHeld is returned when releasing or extending a lock owned by someone else.
var ErrLockNotHeld = errors.New("lock not held")

// Cache is the subset of Redis the judge host relies on.
type Cache interface {
	BasicOps
	LockOps
	PubSubOps

	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close releases the underlying connections
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get returns "" without error when the key does not exist
	Get(ctx context.Context, key string) (string, error)

	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error
}

// LockOps defines distributed lock operations.
// A lock is owned by the token passed to TryLock; only that token may release or extend it.
type LockOps interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Lock retries TryLock every retry interval until it succeeds or ctx is done
	Lock(ctx context.Context, key, token string, ttl, retry time.Duration) error

	Unlock(ctx context.Context, key, token string) error

	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) error
}

// PubSubOps defines fire-and-forget publishing
type PubSubOps interface {
	// Publish returns the number of subscribers that received the message
	Publish(ctx context.Context, channel string, message interface{}) (int64, error)
}
