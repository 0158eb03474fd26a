package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// User is a board member who can act on and be assigned tasks.
// Credentials live with the external auth provider.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary is the public projection used when a task embeds its assignee.
type Summary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Summary returns u's public projection.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username}
}

// Store is the contract for user persistence.
type Store interface {
	// Register creates or returns an existing user. Idempotent on username.
	Register(ctx context.Context, username string) (*User, error)

	// Get returns a user by ID.
	Get(ctx context.Context, id string) (*User, error)

	// ByUsername returns a user by username.
	ByUsername(ctx context.Context, username string) (*User, error)

	// List returns all users ordered by ID.
	List(ctx context.Context) ([]User, error)

	Count(ctx context.Context) (int, error)

	// EnsureTable creates the users table if it doesn't exist.
	EnsureTable(ctx context.Context) error
}

// NormalizeUsername trims and validates a username.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("username is required")
	}
	return username, nil
}
