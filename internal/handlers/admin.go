package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/derekakrasi/callguard/internal/cache"
	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/ratelimit"
	pkghttp "github.com/derekakrasi/callguard/pkg/http"
	pkglogger "github.com/derekakrasi/callguard/pkg/logger"
)

const (
	lockoutsCacheKey = "admin:lockouts"
	lockoutsCacheTTL = 10 * time.Second
)

// AdminLimiter is the slice of the limiter the admin surface needs
type AdminLimiter interface {
	Lockouts(ctx context.Context, axis ratelimit.Axis) ([]models.RateLimitInfo, error)
	Reset(ctx context.Context, identifier string, axis ratelimit.Axis, clearLog bool) (int, error)
}

// LockoutsResponse lists active lockouts on both axes
type LockoutsResponse struct {
	Usernames []models.RateLimitInfo `json:"usernames"`
	IPs       []models.RateLimitInfo `json:"ips"`
	Total     int                    `json:"total"`
}

// UnlockResponse reports the result of clearing a lockout
type UnlockResponse struct {
	Identifier      string `json:"identifier"`
	IdentifierType  string `json:"identifier_type"`
	ClearedAttempts int    `json:"cleared_attempts"`
}

// AdminHandler exposes the lockout management surface
type AdminHandler struct {
	limiter     AdminLimiter
	cache       cache.Cache
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(limiter AdminLimiter, c cache.Cache, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AdminHandler {
	return &AdminHandler{
		limiter:     limiter,
		cache:       c,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// ListLockouts returns every identifier currently locked out, on both axes.
// The listing is cached briefly because it scans the store.
func (h *AdminHandler) ListLockouts(w http.ResponseWriter, r *http.Request) {
	var resp LockoutsResponse
	found, err := h.cache.Get(r.Context(), lockoutsCacheKey, &resp)
	if err != nil {
		h.logger.Warn("lockout cache read failed", slog.Any("error", err))
	}

	if !found {
		usernames, err := h.limiter.Lockouts(r.Context(), ratelimit.ByIdentifier)
		if err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}

		ips, err := h.limiter.Lockouts(r.Context(), ratelimit.ByIP)
		if err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}

		resp = LockoutsResponse{
			Usernames: usernames,
			IPs:       ips,
			Total:     len(usernames) + len(ips),
		}

		if err := h.cache.Set(r.Context(), lockoutsCacheKey, resp, lockoutsCacheTTL); err != nil {
			h.logger.Warn("lockout cache write failed", slog.Any("error", err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// Unlock clears the attempt counter and history for one identifier. The
// type query parameter selects the axis, defaulting to the username axis.
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(chi.URLParam(r, "identifier"))
	if identifier == "" {
		pkghttp.WriteBadRequest(w, "identifier is required")
		return
	}

	axis := ratelimit.ByIdentifier
	switch r.URL.Query().Get("type") {
	case "", "username":
	case "ip":
		axis = ratelimit.ByIP
	default:
		pkghttp.WriteBadRequest(w, "type must be one of: username, ip")
		return
	}

	cleared, err := h.limiter.Reset(r.Context(), identifier, axis, true)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if _, err := h.cache.InvalidatePrefix(r.Context(), lockoutsCacheKey); err != nil {
		h.logger.Warn("lockout cache invalidation failed", slog.Any("error", err))
	}

	h.auditLogger.LogAccountAction("lockout_cleared", identifier, pkghttp.ClientIP(r), map[string]string{
		"identifier_type": axis.IdentifierType(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(UnlockResponse{
		Identifier:      identifier,
		IdentifierType:  axis.IdentifierType(),
		ClearedAttempts: cleared,
	})
}
