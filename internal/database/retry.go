package database

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// WithRetry runs op, retrying on failure with the manager's operation retry
// schedule. The terminal error is returned unchanged so callers can match on
// it. Failures that look connection-related additionally invalidate the
// cached handle, forcing the next Acquire to reconnect rather than reuse a
// known-bad connection.
func (m *Manager) WithRetry(ctx context.Context, op func(ctx context.Context) error) error {
	delay := m.opRetry.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= m.opRetry.MaxRetries; attempt++ {
		if attempt > 0 {
			m.logger.Info("retrying database operation",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", m.opRetry.MaxRetries),
				slog.Duration("delay", delay))

			if err := m.sleep(ctx, delay); err != nil {
				return err
			}
			delay = time.Duration(float64(delay) * m.opRetry.BackoffFactor)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		m.logger.Warn("database operation failed",
			slog.Int("attempt", attempt+1),
			slog.Any("error", lastErr))

		if IsConnectionError(lastErr) {
			m.logger.Warn("failure looks connection-related, invalidating cached handle")
			m.Invalidate()
		}
	}

	m.logger.Error("database operation retries exhausted",
		slog.Int("attempts", m.opRetry.MaxRetries+1),
		slog.Any("error", lastErr))

	return lastErr
}

// IsConnectionError reports whether an error looks connection-related.
// Substring matching on the message is fragile (a typed driver error kind
// would be better) but it is the signal the driver exposes; it lives here,
// isolated, so it can be replaced in one place.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not connected") || strings.Contains(msg, "connection")
}
