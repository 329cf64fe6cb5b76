package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/store"
)

// Axis is one of the two independent rate-limiting dimensions
type Axis int

const (
	ByIdentifier Axis = iota // username or email
	ByIP
)

// IdentifierType returns the axis label used in decision payloads
func (a Axis) IdentifierType() string {
	if a == ByIP {
		return "ip"
	}
	return "username"
}

const (
	kindAttempts = "attempts"
	kindLog      = "log"
)

// Key derives the store key for a (identifier, kind, axis) triple. The axis
// changes the prefix so the two axes can never collide on the same raw
// identifier string.
func Key(identifier, kind string, axis Axis) string {
	prefix := "ratelimit"
	if axis == ByIP {
		prefix = "ipratelimit"
	}
	return prefix + ":" + kind + ":" + identifier
}

// Ledger is the durable, TTL-scoped storage for attempt counters and logs.
// The counter's expiry window is anchored to the first increment and never
// refreshed; the log's expiry is rolling and refreshed on every append.
type Ledger struct {
	store  store.Store
	expiry time.Duration
	logger *slog.Logger
}

func NewLedger(st store.Store, attemptExpiry time.Duration, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  st,
		expiry: attemptExpiry,
		logger: logger,
	}
}

// Count returns the current attempt counter; a missing key counts as 0
func (l *Ledger) Count(ctx context.Context, identifier string, axis Axis) (int64, error) {
	v, ok, err := l.store.Get(ctx, Key(identifier, kindAttempts, axis))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed attempt counter for %q: %w", identifier, err)
	}
	return n, nil
}

// SecondsToReset returns the time until the counter expires. The store's
// negative sentinels (missing key, no expiry) normalize to 0.
func (l *Ledger) SecondsToReset(ctx context.Context, identifier string, axis Axis) (int64, error) {
	ttl, err := l.store.TTLSeconds(ctx, Key(identifier, kindAttempts, axis))
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Increment atomically bumps the attempt counter and returns the new value.
// The expiry is set only when the key had none, so the window stays anchored
// to the first attempt. The TTL read is pipelined with the increment; the
// conditional expire that follows is a separate write, which can only make a
// window longer than intended, never shorter.
func (l *Ledger) Increment(ctx context.Context, identifier string, axis Axis) (int64, error) {
	key := Key(identifier, kindAttempts, axis)

	count, ttl, err := l.store.IncrWithTTL(ctx, key)
	if err != nil {
		return 0, err
	}

	if ttl < 0 {
		if err := l.store.Expire(ctx, key, l.expiry); err != nil {
			return 0, err
		}
		l.logger.Info("attempt window started",
			slog.String("key", key),
			slog.Duration("expiry", l.expiry))
	}

	return count, nil
}

// AppendLog appends a serialized record to the attempt log and refreshes the
// log's rolling expiry, as a single pipelined round trip
func (l *Ledger) AppendLog(ctx context.Context, identifier string, axis Axis, rec models.AttemptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode attempt record: %w", err)
	}

	return l.store.RPushWithExpiry(ctx, Key(identifier, kindLog, axis), string(data), l.expiry)
}

// ReadLog returns the full attempt history, oldest first
func (l *Ledger) ReadLog(ctx context.Context, identifier string, axis Axis) ([]models.AttemptRecord, error) {
	entries, err := l.store.LRange(ctx, Key(identifier, kindLog, axis), 0, -1)
	if err != nil {
		return nil, err
	}

	records := make([]models.AttemptRecord, 0, len(entries))
	for _, entry := range entries {
		var rec models.AttemptRecord
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("malformed attempt record for %q: %w", identifier, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// ScanIdentifiers lists every identifier with an open attempt window on the
// given axis. Pattern scans are for the admin surface only, never the login
// path.
func (l *Ledger) ScanIdentifiers(ctx context.Context, axis Axis) ([]string, error) {
	prefix := Key("", kindAttempts, axis)
	keys, err := l.store.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}

	identifiers := make([]string, 0, len(keys))
	for _, key := range keys {
		identifiers = append(identifiers, key[len(prefix):])
	}
	return identifiers, nil
}

// DeleteCounter removes the attempt counter, ending the current window
func (l *Ledger) DeleteCounter(ctx context.Context, identifier string, axis Axis) error {
	_, err := l.store.Del(ctx, Key(identifier, kindAttempts, axis))
	return err
}

// DeleteLog removes the attempt history
func (l *Ledger) DeleteLog(ctx context.Context, identifier string, axis Axis) error {
	_, err := l.store.Del(ctx, Key(identifier, kindLog, axis))
	return err
}
