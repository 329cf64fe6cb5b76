package ratelimit_test

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/store"
)

// fakeStore is an in-memory store.Store with a manually advanced clock, so
// tests can cross expiry boundaries without sleeping.
type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
	lists  map[string][]string
	ttls   map[string]int64 // seconds remaining; absent means no expiry

	failing     bool           // when set, every call errors
	expireCalls map[string]int // Expire invocations per key
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values:      make(map[string]string),
		lists:       make(map[string][]string),
		ttls:        make(map[string]int64),
		expireCalls: make(map[string]int),
	}
}

func (f *fakeStore) err() error {
	if f.failing {
		return models.ErrStoreUnavailable
	}
	return nil
}

// advance moves the fake clock forward, expiring keys whose TTL elapses
func (f *fakeStore) advance(seconds int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, ttl := range f.ttls {
		ttl -= seconds
		if ttl <= 0 {
			delete(f.ttls, key)
			delete(f.values, key)
			delete(f.lists, key)
			continue
		}
		f.ttls[key] = ttl
	}
}

func (f *fakeStore) exists(key string) bool {
	if _, ok := f.values[key]; ok {
		return true
	}
	_, ok := f.lists[key]
	return ok
}

func (f *fakeStore) ttlOf(key string) int64 {
	if !f.exists(key) {
		return store.TTLMissing
	}
	if ttl, ok := f.ttls[key]; ok {
		return ttl
	}
	return store.TTLNoExpiry
}

func (f *fakeStore) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return 0, err
	}
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return "", false, err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.values[key] = value
	f.ttls[key] = int64(ttl.Seconds())
	return nil
}

func (f *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.expireCalls[key]++
	if f.exists(key) {
		f.ttls[key] = int64(ttl.Seconds())
	}
	return nil
}

func (f *fakeStore) TTLSeconds(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return 0, err
	}
	return f.ttlOf(key), nil
}

func (f *fakeStore) IncrWithTTL(ctx context.Context, key string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return 0, 0, err
	}
	ttl := f.ttlOf(key)
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	return n, ttl, nil
}

func (f *fakeStore) RPushWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.lists[key] = append(f.lists[key], value)
	f.ttls[key] = int64(ttl.Seconds())
	return nil
}

func (f *fakeStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	list := f.lists[key]
	if stop == -1 {
		stop = int64(len(list)) - 1
	}
	if start < 0 || start > stop {
		return nil, nil
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	out := make([]string, 0, stop-start+1)
	out = append(out, list[start:stop+1]...)
	return out, nil
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return 0, err
	}
	var removed int64
	for _, key := range keys {
		if f.exists(key) {
			removed++
		}
		delete(f.values, key)
		delete(f.lists, key)
		delete(f.ttls, key)
	}
	return removed, nil
}

func (f *fakeStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	var keys []string
	for key := range f.values {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	for key := range f.lists {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
