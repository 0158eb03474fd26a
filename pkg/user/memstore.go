package user

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store.
type MemStore struct {
	mu    sync.RWMutex
	users map[string]*User // by ID
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{users: make(map[string]*User)}
}

// EnsureTable is a no-op.
func (s *MemStore) EnsureTable(context.Context) error { return nil }

// Register creates or returns an existing user.
func (s *MemStore) Register(_ context.Context, username string) (*User, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	u := &User{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Username:  username,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

// Get returns a user by ID.
func (s *MemStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("get user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// ByUsername returns a user by username.
func (s *MemStore) ByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user by username %s: %w", username, ErrNotFound)
}

// List returns all users ordered by ID.
func (s *MemStore) List(context.Context) ([]User, error) {
	s.mu.RLock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Count returns the number of users.
func (s *MemStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}
