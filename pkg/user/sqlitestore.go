package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore is a SQLite-backed user store.
type SqliteStore struct {
	db *sql.DB
}

// NewSqliteStore creates a SqliteStore.
func NewSqliteStore(db *sql.DB) *SqliteStore {
	return &SqliteStore{db: db}
}

// EnsureTable creates the users table if it doesn't exist.
func (s *SqliteStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			username       TEXT NOT NULL UNIQUE,
			created_micros INTEGER NOT NULL
		)`)
	return err
}

// Register creates or returns an existing user. Idempotent.
func (s *SqliteStore) Register(ctx context.Context, username string) (*User, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, created_micros) VALUES (?, ?, ?)
		ON CONFLICT(username) DO NOTHING`,
		uuid.Must(uuid.NewV7()).String(), username, now.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("register user %s: %w", username, err)
	}
	return s.ByUsername(ctx, username)
}

// Get returns a user by ID.
func (s *SqliteStore) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.scanOne(ctx, `SELECT id, username, created_micros FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// ByUsername returns a user by username.
func (s *SqliteStore) ByUsername(ctx context.Context, username string) (*User, error) {
	u, err := s.scanOne(ctx, `SELECT id, username, created_micros FROM users WHERE username = ?`, username)
	if err != nil {
		return nil, fmt.Errorf("user by username %s: %w", username, err)
	}
	return u, nil
}

// List returns all users ordered by ID.
func (s *SqliteStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, created_micros FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var micros int64
		if err := rows.Scan(&u.ID, &u.Username, &micros); err != nil {
			return nil, err
		}
		u.CreatedAt = time.UnixMicro(micros).UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count returns the number of users.
func (s *SqliteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *SqliteStore) scanOne(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	var micros int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Username, &micros)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = time.UnixMicro(micros).UTC()
	return &u, nil
}
