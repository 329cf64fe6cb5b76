package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/store"
)

// Config holds the brute-force protection policy
type Config struct {
	MaxAttempts   int           // attempts before lockout
	LockoutTime   time.Duration // informational; the real lock duration is the counter TTL
	AttemptExpiry time.Duration // counter window and log retention
	// ProgressiveDelays maps attempt ordinal to the delay (in seconds) the
	// client is asked to wait; ordinals beyond the map use the MaxAttempts
	// entry
	ProgressiveDelays map[int]int
}

// DefaultConfig returns the default brute-force protection policy
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		LockoutTime:   5 * time.Minute,
		AttemptExpiry: 1 * time.Hour,
		ProgressiveDelays: map[int]int{
			1: 0,
			2: 2,
			3: 5,
			4: 10,
			5: 30,
		},
	}
}

// Meta carries per-request context recorded alongside attempts. Empty IP or
// UserAgent fields are recorded as "unknown". Username is the
// cross-identifier carried on IP-axis records.
type Meta struct {
	IP        string
	UserAgent string
	Username  string
}

// Limiter applies the rate-limit policy on top of the attempt ledger. It is
// the only component route handlers call; one Limiter serves both axes, with
// fully independent state per (identifier, axis) pair.
type Limiter struct {
	ledger *Ledger
	cfg    Config
	logger *slog.Logger
}

func NewLimiter(st store.Store, cfg Config, logger *slog.Logger) *Limiter {
	return &Limiter{
		ledger: NewLedger(st, cfg.AttemptExpiry, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// delayFor returns the policy delay for an attempt ordinal
func (l *Limiter) delayFor(ordinal int) int {
	if d, ok := l.cfg.ProgressiveDelays[ordinal]; ok {
		return d
	}
	return l.cfg.ProgressiveDelays[l.cfg.MaxAttempts]
}

// Check decides whether an attempt for (identifier, axis) may proceed.
//
// Any check after the first attempt in a window advances the counter and
// appends a synthetic log record before the policy is evaluated, so repeated
// checks cannot probe the limiter for free. Callers must therefore call
// Check at most once per axis per logical attempt, before credential
// verification.
//
// Returns a RateLimitInfo snapshot when allowed, or a *models.RateLimitError
// carrying the locked/delayed decision. Store failures propagate unchanged:
// an unreachable store is a hard dependency failure, not a bypass.
func (l *Limiter) Check(ctx context.Context, identifier string, axis Axis, meta Meta) (*models.RateLimitInfo, error) {
	count, err := l.ledger.Count(ctx, identifier, axis)
	if err != nil {
		return nil, err
	}

	if count > 0 {
		count, err = l.ledger.Increment(ctx, identifier, axis)
		if err != nil {
			return nil, err
		}

		rec := l.newRecord(identifier, axis, meta, false, count, true)
		if err := l.ledger.AppendLog(ctx, identifier, axis, rec); err != nil {
			return nil, err
		}
	}

	secondsToReset, err := l.ledger.SecondsToReset(ctx, identifier, axis)
	if err != nil {
		return nil, err
	}

	remaining := int64(l.cfg.MaxAttempts) - count
	if remaining < 0 {
		remaining = 0
	}

	info := models.RateLimitInfo{
		Identifier:        identifier,
		IdentifierType:    axis.IdentifierType(),
		CurrentAttempts:   count,
		MaxAttempts:       l.cfg.MaxAttempts,
		AttemptsRemaining: remaining,
		ExpirySeconds:     secondsToReset,
	}

	if count >= int64(l.cfg.MaxAttempts) {
		l.logger.Warn("identifier locked out",
			slog.String("identifier_type", axis.IdentifierType()),
			slog.String("identifier", identifier),
			slog.String("ip_address", meta.IP),
			slog.Int64("attempts", count),
			slog.Int64("unlock_in_seconds", secondsToReset))

		return nil, &models.RateLimitError{
			Status:        models.RateLimitStatusLocked,
			Seconds:       secondsToReset,
			Message:       fmt.Sprintf("Account temporarily locked. Please try again in %s.", formatSeconds(secondsToReset)),
			SecurityEvent: models.SecurityEventLockout,
			Username:      crossUsername(axis, meta),
			Info:          info,
		}
	}

	if count > 1 {
		if delay := l.delayFor(int(count)); delay > 0 {
			l.logger.Info("progressive delay applied",
				slog.String("identifier_type", axis.IdentifierType()),
				slog.String("identifier", identifier),
				slog.String("ip_address", meta.IP),
				slog.Int64("attempts", count),
				slog.Int("delay_seconds", delay),
				slog.Int64("attempts_remaining", remaining))

			return nil, &models.RateLimitError{
				Status:            models.RateLimitStatusDelayed,
				Seconds:           int64(delay),
				AttemptsRemaining: remaining,
				Message:           fmt.Sprintf("Please wait %d seconds before trying again. %d attempts remaining before lockout.", delay, remaining),
				SecurityEvent:     models.SecurityEventProgressiveDelay,
				Username:          crossUsername(axis, meta),
				Info:              info,
			}
		}
	}

	return &info, nil
}

// Record files the authoritative record of a finished attempt. The counter
// always advances, success or not; successful logins are expected to be
// followed by Reset.
func (l *Limiter) Record(ctx context.Context, identifier string, axis Axis, success bool, meta Meta) (*models.AttemptRecord, error) {
	count, err := l.ledger.Increment(ctx, identifier, axis)
	if err != nil {
		return nil, err
	}

	rec := l.newRecord(identifier, axis, meta, success, count, false)
	if err := l.ledger.AppendLog(ctx, identifier, axis, rec); err != nil {
		return nil, err
	}

	if success {
		l.logger.Info("login attempt recorded",
			slog.String("identifier_type", axis.IdentifierType()),
			slog.String("identifier", identifier),
			slog.Bool("success", true),
			slog.Int64("attempt_number", count))
	} else {
		l.logger.Warn("failed login attempt recorded",
			slog.String("identifier_type", axis.IdentifierType()),
			slog.String("identifier", identifier),
			slog.String("ip_address", rec.IP),
			slog.Int64("attempt_number", count),
			slog.Int("max_attempts", l.cfg.MaxAttempts))
	}

	return &rec, nil
}

// Reset clears the attempt counter after a successful login and optionally
// the history log. Returns how many log entries existed, for audit logging.
func (l *Limiter) Reset(ctx context.Context, identifier string, axis Axis, clearLog bool) (int, error) {
	records, err := l.ledger.ReadLog(ctx, identifier, axis)
	if err != nil {
		return 0, err
	}

	if err := l.ledger.DeleteCounter(ctx, identifier, axis); err != nil {
		return 0, err
	}

	if clearLog {
		if err := l.ledger.DeleteLog(ctx, identifier, axis); err != nil {
			return 0, err
		}
	}

	l.logger.Info("rate limit reset",
		slog.String("identifier_type", axis.IdentifierType()),
		slog.String("identifier", identifier),
		slog.Int("previous_attempts", len(records)))

	return len(records), nil
}

// History returns the attempt log with a summary for the history endpoint
func (l *Limiter) History(ctx context.Context, identifier string, axis Axis) (*models.AttemptHistory, error) {
	records, err := l.ledger.ReadLog(ctx, identifier, axis)
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, rec := range records {
		if !rec.Success {
			failed++
		}
	}

	secondsToReset, err := l.ledger.SecondsToReset(ctx, identifier, axis)
	if err != nil {
		return nil, err
	}

	return &models.AttemptHistory{
		Attempts:    records,
		Total:       len(records),
		Successful:  len(records) - failed,
		Failed:      failed,
		TimeToReset: secondsToReset,
	}, nil
}

// Lockouts returns a snapshot of every identifier on the axis whose counter
// has reached the lockout threshold
func (l *Limiter) Lockouts(ctx context.Context, axis Axis) ([]models.RateLimitInfo, error) {
	identifiers, err := l.ledger.ScanIdentifiers(ctx, axis)
	if err != nil {
		return nil, err
	}

	locked := make([]models.RateLimitInfo, 0)
	for _, identifier := range identifiers {
		count, err := l.ledger.Count(ctx, identifier, axis)
		if err != nil {
			return nil, err
		}
		if count < int64(l.cfg.MaxAttempts) {
			continue
		}

		secondsToReset, err := l.ledger.SecondsToReset(ctx, identifier, axis)
		if err != nil {
			return nil, err
		}

		locked = append(locked, models.RateLimitInfo{
			Identifier:        identifier,
			IdentifierType:    axis.IdentifierType(),
			CurrentAttempts:   count,
			MaxAttempts:       l.cfg.MaxAttempts,
			AttemptsRemaining: 0,
			ExpirySeconds:     secondsToReset,
		})
	}

	return locked, nil
}

// Count exposes the current counter value for status reporting
func (l *Limiter) Count(ctx context.Context, identifier string, axis Axis) (int64, error) {
	return l.ledger.Count(ctx, identifier, axis)
}

// SecondsToReset exposes the remaining window for status reporting
func (l *Limiter) SecondsToReset(ctx context.Context, identifier string, axis Axis) (int64, error) {
	return l.ledger.SecondsToReset(ctx, identifier, axis)
}

// MaxAttempts exposes the configured lockout threshold
func (l *Limiter) MaxAttempts() int {
	return l.cfg.MaxAttempts
}

// NextDelay returns the delay the policy would ask for at the given ordinal
func (l *Limiter) NextDelay(ordinal int) int {
	return l.delayFor(ordinal)
}

func (l *Limiter) newRecord(identifier string, axis Axis, meta Meta, success bool, attemptNumber int64, rateLimited bool) models.AttemptRecord {
	now := time.Now().UTC()
	rec := models.AttemptRecord{
		Timestamp:     now,
		FormattedTime: now.Format("2006-01-02 15:04:05"),
		IP:            orUnknown(meta.IP),
		UserAgent:     orUnknown(meta.UserAgent),
		Success:       success,
		AttemptNumber: attemptNumber,
		RateLimited:   rateLimited,
	}

	// Cross-reference the other axis's value
	if axis == ByIP {
		rec.Username = meta.Username
	} else {
		rec.Identifier = identifier
	}

	return rec
}

func crossUsername(axis Axis, meta Meta) string {
	if axis == ByIP {
		return meta.Username
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func formatSeconds(total int64) string {
	minutes := total / 60
	seconds := total % 60
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
