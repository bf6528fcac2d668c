package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	// Create inserts a new user account.
	// Returns ErrLoginExists if the login is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByLogin retrieves a user by their login.
	// Returns ErrUserNotFound if the user does not exist.
	GetByLogin(ctx context.Context, login string) (*User, error)

	// SetFavoriteGreenhouse points the user's dashboard at a greenhouse.
	// A nil greenhouseID clears the pointer.
	SetFavoriteGreenhouse(ctx context.Context, userID string, greenhouseID *string) error
}

const userColumns = "id, login, password_hash, favorite_greenhouse_id, created_at, updated_at"

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts a new user account. The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if !IsValidLogin(user.Login) {
		return ErrInvalidLogin
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	now := time.Now().UTC().Truncate(time.Second)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, login, password_hash, favorite_greenhouse_id, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?)`,
		user.ID, user.Login, user.PasswordHash,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLoginExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByLogin retrieves a user by their login.
func (r *SQLiteUserRepository) GetByLogin(ctx context.Context, login string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE login = ?", login)
}

// SetFavoriteGreenhouse points the user's dashboard at a greenhouse.
func (r *SQLiteUserRepository) SetFavoriteGreenhouse(ctx context.Context, userID string, greenhouseID *string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var fav sql.NullString
	if greenhouseID != nil {
		fav = sql.NullString{String: *greenhouseID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET favorite_greenhouse_id = ?, updated_at = ? WHERE id = ?",
		fav, now, userID,
	)
	if err != nil {
		return fmt.Errorf("updating favourite greenhouse: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// getUser executes a query and scans a single user result.
func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	return scanUserFrom(row)
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var favorite sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Login, &u.PasswordHash, &favorite, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if favorite.Valid {
		v := favorite.String
		u.FavoriteGreenhouseID = &v
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
