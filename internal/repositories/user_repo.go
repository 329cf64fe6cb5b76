package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/derekakrasi/callguard/internal/database"
	"github.com/derekakrasi/callguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository handles database operations for users. Every operation goes
// through the connection manager's retry decorator, so transient failures
// are retried and connection-flavored ones invalidate the cached handle.
type UserRepository struct {
	db *database.Manager
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.Manager) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING created_at, updated_at
	`

	user.ID = uuid.New().String()
	if user.Role == "" {
		user.Role = "user"
	}
	now := time.Now().UTC()

	err := r.db.WithRetry(ctx, func(ctx context.Context) error {
		pool, err := r.db.Pool(ctx)
		if err != nil {
			return err
		}
		return pool.QueryRow(ctx, query,
			user.ID,
			user.Email,
			user.PasswordHash,
			user.Name,
			user.Role,
			now,
		).Scan(&user.CreatedAt, &user.UpdatedAt)
	})
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return user, nil
}

// GetByEmail returns the user with the given email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, name, role, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	var user models.User
	found := false

	err := r.db.WithRetry(ctx, func(ctx context.Context) error {
		pool, err := r.db.Pool(ctx)
		if err != nil {
			return err
		}

		err = pool.QueryRow(ctx, query, email).Scan(
			&user.ID,
			&user.Email,
			&user.PasswordHash,
			&user.Name,
			&user.Role,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		// A missing row is a terminal outcome, not a transient failure to retry
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if !found {
		return nil, models.ErrNotFound
	}

	return &user, nil
}

// GetByID returns the user with the given ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, name, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	found := false

	err := r.db.WithRetry(ctx, func(ctx context.Context) error {
		pool, err := r.db.Pool(ctx)
		if err != nil {
			return err
		}

		err = pool.QueryRow(ctx, query, id).Scan(
			&user.ID,
			&user.Email,
			&user.PasswordHash,
			&user.Name,
			&user.Role,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if !found {
		return nil, models.ErrNotFound
	}

	return &user, nil
}
