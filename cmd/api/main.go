package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/derekakrasi/callguard/internal/auth"
	"github.com/derekakrasi/callguard/internal/cache"
	"github.com/derekakrasi/callguard/internal/config"
	"github.com/derekakrasi/callguard/internal/database"
	"github.com/derekakrasi/callguard/internal/handlers"
	middlewareCustom "github.com/derekakrasi/callguard/internal/middleware"
	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/ratelimit"
	"github.com/derekakrasi/callguard/internal/repositories"
	"github.com/derekakrasi/callguard/internal/routes"
	"github.com/derekakrasi/callguard/internal/services"
	"github.com/derekakrasi/callguard/internal/store"
	pkgauth "github.com/derekakrasi/callguard/pkg/auth"
	pkglogger "github.com/derekakrasi/callguard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Attempt store (Redis)
	attemptStore, err := store.NewRedisStore(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to attempt store", slog.Any("error", err))
		os.Exit(1)
	}
	defer attemptStore.Close()

	// Database connection manager with retry
	connectRetry := database.RetryConfig{
		MaxRetries:    cfg.Retry.ConnectMaxRetries,
		BaseDelay:     cfg.Retry.ConnectBaseDelay,
		BackoffFactor: cfg.Retry.ConnectBackoffFactor,
	}
	opRetry := database.RetryConfig{
		MaxRetries:    cfg.Retry.OpMaxRetries,
		BaseDelay:     cfg.Retry.OpBaseDelay,
		BackoffFactor: cfg.Retry.OpBackoffFactor,
	}
	db := database.NewManager(&cfg.Database, connectRetry, opRetry, logger)
	defer db.Close()

	// Startup connect is best-effort: the manager reconnects on demand
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := db.Acquire(startupCtx); err != nil {
		logger.Warn("database not reachable at startup, will retry on demand", slog.Any("error", err))
	}
	startupCancel()

	// Brute-force protection limiter
	limiterConfig := ratelimit.DefaultConfig()
	limiterConfig.MaxAttempts = cfg.RateLimit.MaxAttempts
	limiterConfig.LockoutTime = cfg.RateLimit.LockoutTime
	limiterConfig.AttemptExpiry = cfg.RateLimit.AttemptExpiry
	limiter := ratelimit.NewLimiter(attemptStore, limiterConfig, logger)

	// Token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Repositories, services, handlers
	userRepo := repositories.NewUserRepository(db)
	authService := services.NewAuthService(userRepo, limiter, tokenManager, logger, auditLogger)
	responseCache := cache.NewResponseCache(attemptStore, logger)

	authHandler := handlers.NewAuthHandler(authService, limiter)
	adminHandler := handlers.NewAdminHandler(limiter, responseCache, logger, auditLogger)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(cfg.Server.AllowedOrigins))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, adminHandler, tokenManager, userRepo)

	// Health check covers both backing stores
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		dbState := "up"
		if err := db.HealthCheck(ctx); err != nil {
			dbState = "down"
		}
		storeState := "up"
		if err := attemptStore.HealthCheck(ctx); err != nil {
			storeState = "down"
		}

		w.Header().Set("Content-Type", "application/json")
		if dbState == "down" || storeState == "down" {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unhealthy","database":"%s","store":"%s"}`, dbState, storeState)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","database":"%s","store":"%s"}`, dbState, storeState)
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	// Hash password
	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	// Create admin user
	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         "admin",
	}

	_, err = userRepo.Create(ctx, admin)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
