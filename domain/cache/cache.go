// Package cache defines the byte cache used to share release listings
// between update strategies and across host runs.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrConnectionFailed is returned when a remote backend cannot be reached.
	ErrConnectionFailed = errors.New("cache connection failed")
)

// Cache stores opaque values under string keys.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero ttl keeps the entry until it is deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend.
	Close() error
}

// Stats counts lookups since the cache was opened.
type Stats struct {
	Hits   int64
	Misses int64
}

// StatsProvider is implemented by caches that count lookups.
type StatsProvider interface {
	Stats() Stats
}

// ValidateKey rejects keys no backend can store.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
