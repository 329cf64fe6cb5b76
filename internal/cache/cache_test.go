package cache_test

import (
	"context"
	"log/slog"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekakrasi/callguard/internal/cache"
)

// memStore is a minimal in-memory store.Store for cache tests
type memStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (m *memStore) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) TTLSeconds(ctx context.Context, key string) (int64, error) { return 0, nil }

func (m *memStore) IncrWithTTL(ctx context.Context, key string) (int64, int64, error) {
	return 0, 0, nil
}

func (m *memStore) RPushWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}

func (m *memStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, nil
}

func (m *memStore) Del(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			n++
		}
		delete(m.values, key)
		delete(m.ttls, key)
	}
	return n, nil
}

func (m *memStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	for key := range m.values {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestResponseCache_RoundTrip(t *testing.T) {
	st := newMemStore()
	c := cache.NewResponseCache(st, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "admin:lockouts", payload{Name: "alice", Count: 3}, 10*time.Second))

	var got payload
	found, err := c.Get(ctx, "admin:lockouts", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, 3, got.Count)

	// Entries live in a dedicated namespace with the requested TTL
	assert.Equal(t, 10*time.Second, st.ttls["cache:admin:lockouts"])
}

func TestResponseCache_MissReturnsFalse(t *testing.T) {
	c := cache.NewResponseCache(newMemStore(), testLogger())

	var got payload
	found, err := c.Get(context.Background(), "absent", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResponseCache_MalformedEntryErrors(t *testing.T) {
	st := newMemStore()
	c := cache.NewResponseCache(st, testLogger())
	ctx := context.Background()

	st.values["cache:broken"] = "{not json"

	var got payload
	_, err := c.Get(ctx, "broken", &got)
	assert.Error(t, err)
}

func TestResponseCache_InvalidatePrefix(t *testing.T) {
	st := newMemStore()
	c := cache.NewResponseCache(st, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "admin:lockouts", payload{}, time.Minute))
	require.NoError(t, c.Set(ctx, "admin:lockouts:page2", payload{}, time.Minute))
	require.NoError(t, c.Set(ctx, "other:entry", payload{}, time.Minute))

	n, err := c.InvalidatePrefix(ctx, "admin:lockouts")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var got payload
	found, err := c.Get(ctx, "other:entry", &got)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestResponseCache_InvalidatePrefixNoMatches(t *testing.T) {
	c := cache.NewResponseCache(newMemStore(), testLogger())

	n, err := c.InvalidatePrefix(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
