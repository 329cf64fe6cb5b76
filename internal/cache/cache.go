package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/derekakrasi/callguard/internal/store"
)

// Cache is the response-payload cache contract: keyed JSON values with a TTL
// and prefix-based invalidation
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) (int64, error)
}

// ResponseCache implements Cache on the shared TTL store under a dedicated
// key namespace
type ResponseCache struct {
	store  store.Store
	prefix string
	logger *slog.Logger
}

func NewResponseCache(st store.Store, logger *slog.Logger) *ResponseCache {
	return &ResponseCache{
		store:  st,
		prefix: "cache:",
		logger: logger,
	}
}

// Get unmarshals the cached value into dest; returns false on a miss
func (c *ResponseCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	v, ok, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal([]byte(v), dest); err != nil {
		return false, fmt.Errorf("malformed cache entry %q: %w", key, err)
	}
	return true, nil
}

func (c *ResponseCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}
	return c.store.SetEx(ctx, c.prefix+key, string(data), ttl)
}

// InvalidatePrefix removes every cache entry whose key starts with prefix,
// returning how many were deleted
func (c *ResponseCache) InvalidatePrefix(ctx context.Context, prefix string) (int64, error) {
	keys, err := c.store.Keys(ctx, c.prefix+prefix+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := c.store.Del(ctx, keys...)
	if err != nil {
		return 0, err
	}

	c.logger.Info("cache entries invalidated",
		slog.String("prefix", prefix),
		slog.Int64("deleted", n))

	return n, nil
}
