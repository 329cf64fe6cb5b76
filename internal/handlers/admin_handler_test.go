package handlers_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/derekakrasi/callguard/internal/handlers"
	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/ratelimit"
	pkglogger "github.com/derekakrasi/callguard/pkg/logger"
)

func newAdminHandler(limiter *handlers.MockLimiter, c *handlers.MockCache) *handlers.AdminHandler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return handlers.NewAdminHandler(limiter, c, logger, pkglogger.NewAuditLogger(logger))
}

func TestListLockouts_ReturnsBothAxes(t *testing.T) {
	limiter := &handlers.MockLimiter{
		LockoutsFunc: func(ctx context.Context, axis ratelimit.Axis) ([]models.RateLimitInfo, error) {
			if axis == ratelimit.ByIdentifier {
				return []models.RateLimitInfo{{Identifier: "alice@example.com", IdentifierType: "username", CurrentAttempts: 5}}, nil
			}
			return []models.RateLimitInfo{{Identifier: "10.0.0.9", IdentifierType: "ip", CurrentAttempts: 7}}, nil
		},
	}

	handler := newAdminHandler(limiter, handlers.NewMockCache())
	req := handlers.NewTestRequest(t, "GET", "/admin/lockouts", nil)
	w := httptest.NewRecorder()
	handler.ListLockouts(w, req)

	var resp handlers.LockoutsResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "alice@example.com", resp.Usernames[0].Identifier)
	assert.Equal(t, "10.0.0.9", resp.IPs[0].Identifier)
}

func TestListLockouts_ServesFromCache(t *testing.T) {
	scans := 0
	limiter := &handlers.MockLimiter{
		LockoutsFunc: func(ctx context.Context, axis ratelimit.Axis) ([]models.RateLimitInfo, error) {
			scans++
			return nil, nil
		},
	}

	handler := newAdminHandler(limiter, handlers.NewMockCache())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ListLockouts(w, handlers.NewTestRequest(t, "GET", "/admin/lockouts", nil))
		assert.Equal(t, 200, w.Code)
	}

	// Two axes scanned once; later requests hit the cache
	assert.Equal(t, 2, scans)
}

func TestUnlock_ClearsIdentifierAndCache(t *testing.T) {
	var gotIdentifier string
	var gotAxis ratelimit.Axis
	var gotClearLog bool
	limiter := &handlers.MockLimiter{
		ResetFunc: func(ctx context.Context, identifier string, axis ratelimit.Axis, clearLog bool) (int, error) {
			gotIdentifier, gotAxis, gotClearLog = identifier, axis, clearLog
			return 5, nil
		},
	}

	mockCache := handlers.NewMockCache()
	mockCache.Set(context.Background(), "admin:lockouts", handlers.LockoutsResponse{}, 0)

	handler := newAdminHandler(limiter, mockCache)
	req := handlers.NewTestRequest(t, "DELETE", "/admin/lockouts/alice@example.com", nil)
	req = handlers.WithURLParam(req, "identifier", "alice@example.com")

	w := httptest.NewRecorder()
	handler.Unlock(w, req)

	var resp handlers.UnlockResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "alice@example.com", resp.Identifier)
	assert.Equal(t, "username", resp.IdentifierType)
	assert.Equal(t, 5, resp.ClearedAttempts)

	assert.Equal(t, "alice@example.com", gotIdentifier)
	assert.Equal(t, ratelimit.ByIdentifier, gotAxis)
	assert.True(t, gotClearLog)

	// The cached listing is invalidated so the unlock is visible immediately
	var cached handlers.LockoutsResponse
	found, _ := mockCache.Get(context.Background(), "admin:lockouts", &cached)
	assert.False(t, found)
}

func TestUnlock_IPAxisViaQueryParam(t *testing.T) {
	var gotAxis ratelimit.Axis
	limiter := &handlers.MockLimiter{
		ResetFunc: func(ctx context.Context, identifier string, axis ratelimit.Axis, clearLog bool) (int, error) {
			gotAxis = axis
			return 3, nil
		},
	}

	handler := newAdminHandler(limiter, handlers.NewMockCache())
	req := handlers.NewTestRequest(t, "DELETE", "/admin/lockouts/10.0.0.9?type=ip", nil)
	req = handlers.WithURLParam(req, "identifier", "10.0.0.9")

	w := httptest.NewRecorder()
	handler.Unlock(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, ratelimit.ByIP, gotAxis)
}

func TestUnlock_RejectsUnknownAxis(t *testing.T) {
	handler := newAdminHandler(&handlers.MockLimiter{}, handlers.NewMockCache())
	req := handlers.NewTestRequest(t, "DELETE", "/admin/lockouts/x?type=device", nil)
	req = handlers.WithURLParam(req, "identifier", "x")

	w := httptest.NewRecorder()
	handler.Unlock(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}
