package models

import (
	"fmt"
	"time"
)

// Rate limit decision states carried in 429 responses
const (
	RateLimitStatusLocked  = "locked"
	RateLimitStatusDelayed = "delayed"
)

// Security event names for audit logging
const (
	SecurityEventLockout          = "account_lockout"
	SecurityEventProgressiveDelay = "progressive_delay"
)

// AttemptRecord represents one observed authentication attempt, filed under a
// single (identifier, axis) ledger entry
type AttemptRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	FormattedTime string    `json:"formatted_time"`
	Identifier    string    `json:"identifier,omitempty"` // identifier-axis records carry the username/email
	Username      string    `json:"username,omitempty"`   // IP-axis records carry the attempted username
	IP            string    `json:"ip"`
	UserAgent     string    `json:"user_agent"`
	Success       bool      `json:"success"`
	AttemptNumber int64     `json:"attempt_number"` // counter value after this attempt, 1-based
	RateLimited   bool      `json:"rate_limited,omitempty"`
}

// RateLimitInfo is a point-in-time snapshot of the counter state for one
// (identifier, axis) pair. It is returned on allowed checks and embedded in
// rejection payloads; it is never persisted.
type RateLimitInfo struct {
	Identifier        string `json:"identifier"`
	IdentifierType    string `json:"identifier_type"` // "username" or "ip"
	CurrentAttempts   int64  `json:"current_attempts"`
	MaxAttempts       int    `json:"max_attempts"`
	AttemptsRemaining int64  `json:"attempts_remaining"`
	ExpirySeconds     int64  `json:"expiry_seconds"`
}

// RateLimitError is returned by the limiter when a check is rejected.
// Status is either "locked" (counter reached the maximum) or "delayed"
// (progressive delay applies). Seconds carries the lockout time remaining or
// the delay to wait, respectively.
type RateLimitError struct {
	Status            string
	Seconds           int64
	AttemptsRemaining int64
	Message           string
	SecurityEvent     string
	Username          string // cross-identifier, set on IP-axis rejections when known
	Info              RateLimitInfo
}

func (e *RateLimitError) Error() string {
	if e.Status == RateLimitStatusLocked {
		return fmt.Sprintf("rate limit exceeded: locked for %ds", e.Seconds)
	}
	return fmt.Sprintf("rate limit exceeded: delayed %ds", e.Seconds)
}

// AttemptHistory aggregates the attempt log for one (identifier, axis) pair
type AttemptHistory struct {
	Attempts    []AttemptRecord `json:"attempts"`
	Total       int             `json:"total"`
	Successful  int             `json:"successful"`
	Failed      int             `json:"failed"`
	TimeToReset int64           `json:"time_to_reset"`
}
