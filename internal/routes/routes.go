package routes

import (
	"github.com/derekakrasi/callguard/internal/auth"
	"github.com/derekakrasi/callguard/internal/handlers"
	"github.com/derekakrasi/callguard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	userRepo auth.UserRepository,
) {
	// Transport-level ceiling on the login endpoint. The attempt-counting
	// protection lives in the handler path; this only sheds floods.
	rateLimitConfig := middleware.DefaultAuthRateLimit()
	authenticatedConfig := middleware.DefaultAuthenticatedRateLimit()

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(middleware.RateLimitByUserID(authenticatedConfig, "read"))

		// Any authenticated user
		r.Get("/auth/me", authHandler.Me)
		r.Get("/auth/login-history/{username}", authHandler.LoginHistory)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, "admin"))
			r.Use(middleware.RateLimitByUserID(authenticatedConfig, "admin"))
			r.Get("/admin/lockouts", adminHandler.ListLockouts)
			r.Delete("/admin/lockouts/{identifier}", adminHandler.Unlock)
		})
	})
}
