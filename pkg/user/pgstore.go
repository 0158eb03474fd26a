package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is a PostgreSQL-backed user store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the users table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// Register creates or returns an existing user. Idempotent.
func (s *PgStore) Register(ctx context.Context, username string) (*User, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if u, err := s.scanOne(ctx, `SELECT id, username, created_at FROM users WHERE username = $1`, username); err == nil {
		return u, nil
	}

	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now().Truncate(time.Microsecond)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, username, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		id, username, now)
	if err != nil {
		return nil, fmt.Errorf("register user %s: %w", username, err)
	}

	// Re-fetch so a concurrent registration of the same name wins cleanly.
	u, err := s.scanOne(ctx, `SELECT id, username, created_at FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("register user %s: re-fetch failed: %w", username, err)
	}
	return u, nil
}

// Get returns a user by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.scanOne(ctx, `SELECT id, username, created_at FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// ByUsername returns a user by username.
func (s *PgStore) ByUsername(ctx context.Context, username string) (*User, error) {
	u, err := s.scanOne(ctx, `SELECT id, username, created_at FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("user by username %s: %w", username, err)
	}
	return u, nil
}

// List returns all users ordered by ID.
func (s *PgStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username, created_at FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count returns the number of users.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *PgStore) scanOne(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, args...).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
