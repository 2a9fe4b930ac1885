package cache

import (
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// Cache is the interface shared by the simple, LRU, and TTL strategies.
// The pipeline keys caches by index name or pattern string; V is the
// cached value type.
type Cache[V any] interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (V, bool)

	// Set stores a value. It reports true when a new entry was created,
	// false when an existing one was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry, reporting whether the key existed.
	Delete(key string) (bool, error)

	// Clear removes every entry.
	Clear() error

	// Size returns the current entry count.
	Size() int

	// Keys returns every key currently cached.
	Keys() []string

	// Stats returns the running statistics.
	Stats() *Statistics

	// Close releases background resources such as the TTL cleanup
	// goroutine.
	Close() error
}

// EvictCallback observes entries as they leave the cache.
type EvictCallback[V any] func(key string, value V)

// Entry is a cached value with its bookkeeping.
type Entry[V any] struct {
	Key   string
	Value V

	CreatedAt  time.Time
	AccessedAt time.Time
	ExpiresAt  *time.Time // nil means no expiration
}

func (e *Entry[V]) IsExpired() bool {
	return e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt)
}

func (e *Entry[V]) Touch() { e.AccessedAt = time.Now() }

func validateKey(key string) error {
	if key != "" {
		return nil
	}
	return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
}
