package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/derekakrasi/callguard/internal/auth"
	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/ratelimit"
	"github.com/derekakrasi/callguard/internal/services"
	pkghttp "github.com/derekakrasi/callguard/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error)
	GetProfile(ctx context.Context, userID string) (*services.UserResponse, error)
}

// LimiterInterface is the slice of the limiter the read-only endpoints need
type LimiterInterface interface {
	History(ctx context.Context, identifier string, axis ratelimit.Axis) (*models.AttemptHistory, error)
	Count(ctx context.Context, identifier string, axis ratelimit.Axis) (int64, error)
	SecondsToReset(ctx context.Context, identifier string, axis ratelimit.Axis) (int64, error)
	MaxAttempts() int
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthServiceInterface
	limiter LimiterInterface
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, limiter LimiterInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
		limiter: limiter,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RateLimitResponse is the 429 rejection payload
type RateLimitResponse struct {
	Error             string               `json:"error"`
	Status            string               `json:"status"`
	LockoutTime       int64                `json:"lockout_time,omitempty"`
	Delay             int64                `json:"delay,omitempty"`
	AttemptsRemaining *int64               `json:"attempts_remaining,omitempty"`
	Message           string               `json:"message"`
	SecurityEvent     string               `json:"security_event"`
	RateLimitInfo     models.RateLimitInfo `json:"rate_limit_info"`
}

// LoginStatus is the derived protection state reported alongside history
type LoginStatus struct {
	State             string `json:"state"` // "normal", "warned" or "locked"
	CurrentAttempts   int64  `json:"current_attempts"`
	MaxAttempts       int    `json:"max_attempts"`
	AttemptsRemaining int64  `json:"attempts_remaining"`
	SecondsToReset    int64  `json:"seconds_to_reset"`
}

// LoginHistoryResponse represents the response for the login-history endpoint
type LoginHistoryResponse struct {
	Username string                 `json:"username"`
	History  *models.AttemptHistory `json:"history"`
	Status   LoginStatus            `json:"status"`
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ipAddress := pkghttp.ClientIP(r)
	userAgent := r.Header.Get("User-Agent")

	authResp, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		var rle *models.RateLimitError
		switch {
		case errors.As(err, &rle):
			writeRateLimited(w, rle)
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrDatabaseUnavailable):
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable. Please try again later.")
		default:
			// An unreachable attempt store lands here and blocks the login
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(authResp)
}

// LoginHistory returns the caller's own attempt history with derived status
func (h *AuthHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	username := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "username")))
	if username == "" {
		pkghttp.WriteBadRequest(w, "username is required")
		return
	}

	// Users may only read their own history
	if !strings.EqualFold(claims.Email, username) {
		pkghttp.WriteForbidden(w, "forbidden: insufficient permissions")
		return
	}

	history, err := h.limiter.History(r.Context(), username, ratelimit.ByIdentifier)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	count, err := h.limiter.Count(r.Context(), username, ratelimit.ByIdentifier)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	secondsToReset, err := h.limiter.SecondsToReset(r.Context(), username, ratelimit.ByIdentifier)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	max := h.limiter.MaxAttempts()
	remaining := int64(max) - count
	if remaining < 0 {
		remaining = 0
	}

	resp := LoginHistoryResponse{
		Username: username,
		History:  history,
		Status: LoginStatus{
			State:             stateFor(count, max),
			CurrentAttempts:   count,
			MaxAttempts:       max,
			AttemptsRemaining: remaining,
			SecondsToReset:    secondsToReset,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// Me returns the authenticated user's profile
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.service.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "user not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(user)
}

func writeRateLimited(w http.ResponseWriter, rle *models.RateLimitError) {
	resp := RateLimitResponse{
		Error:         "rate_limit_exceeded",
		Status:        rle.Status,
		Message:       rle.Message,
		SecurityEvent: rle.SecurityEvent,
		RateLimitInfo: rle.Info,
	}

	if rle.Status == models.RateLimitStatusLocked {
		resp.LockoutTime = rle.Seconds
	} else {
		resp.Delay = rle.Seconds
		remaining := rle.AttemptsRemaining
		resp.AttemptsRemaining = &remaining
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(rle.Seconds, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(resp)
}

func stateFor(count int64, max int) string {
	switch {
	case count >= int64(max):
		return "locked"
	case count > 1:
		return "warned"
	default:
		return "normal"
	}
}
