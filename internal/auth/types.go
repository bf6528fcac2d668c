package auth

import (
	"errors"
	"regexp"
	"time"
)

// loginPattern defines the valid format for logins:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var loginPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

const maxLoginLength = 64

// IsValidLogin checks if a login meets format requirements.
func IsValidLogin(login string) bool {
	return len(login) <= maxLoginLength && loginPattern.MatchString(login)
}

// User represents an authenticated account that can claim modules and
// build greenhouses.
type User struct {
	ID           string `json:"id"`
	Login        string `json:"login"`
	PasswordHash string `json:"-"` // never serialised

	// FavoriteGreenhouseID points at the greenhouse the user's dashboard
	// opens on. Cleared automatically when that greenhouse dissolves.
	FavoriteGreenhouseID *string `json:"favorite_greenhouse_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrLoginExists        = errors.New("auth: login already exists")
	ErrInvalidLogin       = errors.New("auth: invalid login format")
	ErrTokenInvalid       = errors.New("auth: invalid token")
)
