package store

import (
	"context"
	"time"
)

// TTL sentinel values, matching the store's wire contract:
// -2 means the key does not exist, -1 means the key has no expiry.
const (
	TTLNoExpiry int64 = -1
	TTLMissing  int64 = -2
)

// Store is the TTL key-value contract consumed by the rate-limit ledger and
// the response cache. Implementations must make Incr atomic at the store
// level; the pipelined composites issue a single round trip but are not
// transactional.
type Store interface {
	// Incr atomically increments the integer value at key, creating it at 0
	Incr(ctx context.Context, key string) (int64, error)

	// Get returns the value at key; ok is false when the key is absent
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// SetEx sets the value at key with the given expiry
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// Expire sets the TTL on an existing key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTLSeconds returns the remaining TTL in whole seconds, or one of the
	// TTLNoExpiry/TTLMissing sentinels
	TTLSeconds(ctx context.Context, key string) (int64, error)

	// IncrWithTTL increments the counter and reads the TTL it had,
	// pipelined as one round trip. The returned ttlSeconds reflects the
	// key's expiry state so callers can apply the set-once TTL rule.
	IncrWithTTL(ctx context.Context, key string) (count int64, ttlSeconds int64, err error)

	// RPushWithExpiry appends value to the list at key and refreshes the
	// list's TTL, pipelined as one round trip
	RPushWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error

	// LRange returns list elements in [start, stop], oldest first; -1 means
	// the last element
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Del removes the given keys, returning how many existed
	Del(ctx context.Context, keys ...string) (int64, error)

	// Keys returns the keys matching a glob pattern
	Keys(ctx context.Context, pattern string) ([]string, error)
}
