package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/derekakrasi/callguard/internal/auth"
	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/ratelimit"
	"github.com/derekakrasi/callguard/internal/services"
	pkghttp "github.com/derekakrasi/callguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithURLParam injects a chi route parameter into the request context
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc      func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error)
	GetProfileFunc func(ctx context.Context, userID string) (*services.UserResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, ipAddress, userAgent)
}

func (m *MockAuthService) GetProfile(ctx context.Context, userID string) (*services.UserResponse, error) {
	if m.GetProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetProfileFunc(ctx, userID)
}

// MockLimiter implements LimiterInterface and AdminLimiter for testing
type MockLimiter struct {
	HistoryFunc        func(ctx context.Context, identifier string, axis ratelimit.Axis) (*models.AttemptHistory, error)
	CountFunc          func(ctx context.Context, identifier string, axis ratelimit.Axis) (int64, error)
	SecondsToResetFunc func(ctx context.Context, identifier string, axis ratelimit.Axis) (int64, error)
	LockoutsFunc       func(ctx context.Context, axis ratelimit.Axis) ([]models.RateLimitInfo, error)
	ResetFunc          func(ctx context.Context, identifier string, axis ratelimit.Axis, clearLog bool) (int, error)
	Max                int
}

func (m *MockLimiter) History(ctx context.Context, identifier string, axis ratelimit.Axis) (*models.AttemptHistory, error) {
	if m.HistoryFunc == nil {
		return &models.AttemptHistory{}, nil
	}
	return m.HistoryFunc(ctx, identifier, axis)
}

func (m *MockLimiter) Count(ctx context.Context, identifier string, axis ratelimit.Axis) (int64, error) {
	if m.CountFunc == nil {
		return 0, nil
	}
	return m.CountFunc(ctx, identifier, axis)
}

func (m *MockLimiter) SecondsToReset(ctx context.Context, identifier string, axis ratelimit.Axis) (int64, error) {
	if m.SecondsToResetFunc == nil {
		return 0, nil
	}
	return m.SecondsToResetFunc(ctx, identifier, axis)
}

func (m *MockLimiter) MaxAttempts() int {
	if m.Max == 0 {
		return 5
	}
	return m.Max
}

func (m *MockLimiter) Lockouts(ctx context.Context, axis ratelimit.Axis) ([]models.RateLimitInfo, error) {
	if m.LockoutsFunc == nil {
		return nil, nil
	}
	return m.LockoutsFunc(ctx, axis)
}

func (m *MockLimiter) Reset(ctx context.Context, identifier string, axis ratelimit.Axis, clearLog bool) (int, error) {
	if m.ResetFunc == nil {
		return 0, nil
	}
	return m.ResetFunc(ctx, identifier, axis, clearLog)
}

// MockCache implements cache.Cache for testing
type MockCache struct {
	entries map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string][]byte)}
}

func (m *MockCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (m *MockCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = data
	return nil
}

func (m *MockCache) InvalidatePrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	for key := range m.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}
