package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/derekakrasi/callguard/internal/config"
	"github.com/derekakrasi/callguard/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is the minimal surface of a live database handle. *pgxpool.Pool
// satisfies it directly.
type Conn interface {
	Ping(ctx context.Context) error
	Close()
}

// RetryConfig bounds a retry loop: the initial attempt plus MaxRetries
// retries, sleeping BaseDelay before the first retry and multiplying by
// BackoffFactor after each failure.
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	BackoffFactor float64
}

// Manager owns the process-wide cached database handle. Acquire verifies the
// cached handle with a liveness probe and reconnects with bounded backoff
// when it is stale or absent; Invalidate drops it so the next caller is
// forced to reconnect. The mutex guards only the handle field and is never
// held across a probe, dial, or sleep.
type Manager struct {
	mu   sync.Mutex
	conn Conn

	dial         func(ctx context.Context) (Conn, error)
	connectRetry RetryConfig
	opRetry      RetryConfig
	logger       *slog.Logger

	// sleep is context-aware so an in-flight backoff is abandoned when the
	// surrounding request is cancelled
	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(cfg *config.DatabaseConfig, connectRetry, opRetry RetryConfig, logger *slog.Logger) *Manager {
	return &Manager{
		dial:         pgxDialer(cfg, logger),
		connectRetry: connectRetry,
		opRetry:      opRetry,
		logger:       logger,
		sleep:        sleepContext,
	}
}

// pgxDialer opens a pgx pool with fixed network timeouts and bounded pool
// sizing, verifying it with a ping before handing it out
func pgxDialer(cfg *config.DatabaseConfig, logger *slog.Logger) func(ctx context.Context) (Conn, error) {
	return func(ctx context.Context) (Conn, error) {
		poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("unable to parse database config: %w", err)
		}

		poolConfig.MaxConns = cfg.MaxConns
		poolConfig.MinConns = cfg.MinConns
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

		dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()

		pool, err := pgxpool.NewWithConfig(dialCtx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("unable to create connection pool: %w", err)
		}

		if err := pool.Ping(dialCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("unable to ping database: %w", err)
		}

		logger.Info("database connection established",
			slog.Int("max_conns", int(cfg.MaxConns)),
			slog.Int("min_conns", int(cfg.MinConns)),
		)

		return pool, nil
	}
}

// Acquire returns a live database handle, reconnecting with bounded
// exponential backoff when the cached one is absent or fails its probe.
// After retries are exhausted it fails with models.ErrDatabaseUnavailable
// and leaves the handle absent for the next caller to retry.
func (m *Manager) Acquire(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Ping(ctx); err == nil {
			return conn, nil
		}
		m.logger.Warn("cached database handle failed liveness probe, reconnecting")
		m.dropIfCurrent(conn)
	}

	delay := m.connectRetry.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= m.connectRetry.MaxRetries; attempt++ {
		if attempt > 0 {
			m.logger.Info("retrying database connection",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", m.connectRetry.MaxRetries),
				slog.Duration("delay", delay))

			if err := m.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = time.Duration(float64(delay) * m.connectRetry.BackoffFactor)
		}

		conn, err := m.dial(ctx)
		if err == nil {
			m.mu.Lock()
			m.conn = conn
			m.mu.Unlock()
			return conn, nil
		}
		lastErr = err

		m.logger.Warn("database connection attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}

	m.logger.Error("database connection retries exhausted",
		slog.Int("attempts", m.connectRetry.MaxRetries+1),
		slog.Any("error", lastErr))

	return nil, fmt.Errorf("%w: %v", models.ErrDatabaseUnavailable, lastErr)
}

// Pool returns the live pgx pool, reconnecting as needed
func (m *Manager) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	conn, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	pool, ok := conn.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("unexpected connection handle type %T", conn)
	}
	return pool, nil
}

// Invalidate drops the cached handle so the next Acquire reconnects instead
// of reusing a known-bad connection. The stale handle is closed off the
// caller's path because pool close waits for in-flight work.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		m.logger.Info("cached database handle invalidated")
		go conn.Close()
	}
}

// dropIfCurrent clears the cached handle only if it is still the one that
// failed the probe; a concurrent Acquire may already have replaced it
func (m *Manager) dropIfCurrent(conn Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	go conn.Close()
}

// HealthCheck probes the cached handle without triggering a reconnect
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return models.ErrDatabaseUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close releases the cached handle on shutdown
func (m *Manager) Close() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		m.logger.Info("closing database connection pool")
		conn.Close()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
