package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/derekakrasi/callguard/internal/auth"
	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/ratelimit"
	pkgauth "github.com/derekakrasi/callguard/pkg/auth"
	pkglogger "github.com/derekakrasi/callguard/pkg/logger"
)

// UserRepository defines the interface for user database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// RateLimiter defines the slice of the attempt limiter the login flow uses
type RateLimiter interface {
	Check(ctx context.Context, identifier string, axis ratelimit.Axis, meta ratelimit.Meta) (*models.RateLimitInfo, error)
	Record(ctx context.Context, identifier string, axis ratelimit.Axis, success bool, meta ratelimit.Meta) (*models.AttemptRecord, error)
	Reset(ctx context.Context, identifier string, axis ratelimit.Axis, clearLog bool) (int, error)
}

// dummyHash is compared against when the user does not exist, so the
// password check costs the same on both lookup outcomes.
var dummyHash, _ = pkgauth.HashPassword("callguard-timing-equalizer-0")

// AuthService handles authentication business logic. Every login passes
// through both limiter axes before credentials are checked, and the outcome
// is recorded on both axes afterwards.
type AuthService struct {
	users       UserRepository
	limiter     RateLimiter
	tm          *auth.TokenManager
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(users UserRepository, limiter RateLimiter, tm *auth.TokenManager, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		users:       users,
		limiter:     limiter,
		tm:          tm,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// AuthResponse represents the response from a successful login
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// Login authenticates a user and returns a token pair.
//
// Failures return models.ErrUnauthorized, a *models.RateLimitError when
// either axis rejects the attempt, or the underlying dependency error when
// the attempt store or database is unreachable. An unreachable store blocks
// the login rather than bypassing protection.
func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrUnauthorized
	}

	meta := ratelimit.Meta{IP: ip, UserAgent: userAgent, Username: email}

	// IP axis first, then identifier axis. Both checks advance their own
	// counters when a window is already open.
	if _, err := s.limiter.Check(ctx, ip, ratelimit.ByIP, meta); err != nil {
		return nil, s.noteRateLimit(err, ip)
	}
	if _, err := s.limiter.Check(ctx, email, ratelimit.ByIdentifier, meta); err != nil {
		return nil, s.noteRateLimit(err, ip)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, err
	}

	// Compare against a dummy hash on unknown users so the failure path
	// costs the same either way
	hash := dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	success := pkgauth.ComparePassword(hash, password) == nil && user != nil

	if _, err := s.limiter.Record(ctx, email, ratelimit.ByIdentifier, success, meta); err != nil {
		return nil, err
	}
	if _, err := s.limiter.Record(ctx, ip, ratelimit.ByIP, success, meta); err != nil {
		return nil, err
	}

	if !success {
		s.logger.Info("login failed: invalid credentials")
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Identifier:    email,
			IPAddress:     ip,
			UserAgent:     userAgent,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return nil, models.ErrUnauthorized
	}

	if _, err := s.limiter.Reset(ctx, email, ratelimit.ByIdentifier, false); err != nil {
		return nil, err
	}
	if _, err := s.limiter.Reset(ctx, ip, ratelimit.ByIP, false); err != nil {
		return nil, err
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         toUserResponse(user),
	}, nil
}

// GetProfile returns the profile of the authenticated user
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

// noteRateLimit turns limiter rejections into audit events before they
// propagate. Dependency failures pass through untouched.
func (s *AuthService) noteRateLimit(err error, ip string) error {
	var rle *models.RateLimitError
	if errors.As(err, &rle) {
		s.auditLogger.LogRateLimitEvent(
			rle.SecurityEvent,
			rle.Info.Identifier,
			rle.Info.IdentifierType,
			ip,
			rle.Info.CurrentAttempts,
		)
	}
	return err
}

func toUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
