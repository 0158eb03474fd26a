package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskboard/pkg/audit"
)

// MemStore is an in-memory Store. Writes are serialized by a single mutex,
// which makes the version compare and the swap one critical section.
type MemStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	log   *audit.MemLog
	now   func() time.Time
}

// NewMemStore creates a MemStore that records into log.
func NewMemStore(log *audit.MemLog) *MemStore {
	return &MemStore{
		tasks: make(map[string]*Task),
		log:   log,
		now:   time.Now,
	}
}

// EnsureTable is a no-op.
func (s *MemStore) EnsureTable(context.Context) error { return nil }

// FindByID returns a copy of the stored task.
func (s *MemStore) FindByID(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("find task %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

// FindMany returns matching tasks ordered by creation time.
func (s *MemStore) FindMany(_ context.Context, f Filter) ([]Task, error) {
	s.mu.RLock()
	var out []Task
	for _, t := range s.tasks {
		if f.matches(t) {
			out = append(out, *t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CountWhere counts matching tasks.
func (s *MemStore) CountWhere(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tasks {
		if f.matches(t) {
			n++
		}
	}
	return n, nil
}

// Insert stores a new task at version 0.
func (s *MemStore) Insert(ctx context.Context, t *Task, entry *audit.Entry) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.titleTakenLocked(t.Title, "") {
		return nil, fmt.Errorf("insert task %q: %w", t.Title, ErrDuplicateTitle)
	}
	cp := *t
	cp.ID = uuid.Must(uuid.NewV7()).String()
	cp.Version = 0
	cp.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
	cp.UpdatedAt = cp.CreatedAt

	if err := s.recordLocked(ctx, &cp, entry); err != nil {
		return nil, err
	}
	s.tasks[cp.ID] = &cp
	out := cp
	return &out, nil
}

// ConditionalSave writes t only if the stored version equals expectedVersion.
func (s *MemStore) ConditionalSave(ctx context.Context, t *Task, expectedVersion int64, entry *audit.Entry) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[t.ID]
	if !ok {
		return nil, fmt.Errorf("save task %s: %w", t.ID, ErrNotFound)
	}
	if stored.Version != expectedVersion {
		cur := *stored
		return nil, &StaleWriteError{Expected: expectedVersion, Current: &cur}
	}
	if s.titleTakenLocked(t.Title, t.ID) {
		return nil, fmt.Errorf("save task %s: %w", t.ID, ErrDuplicateTitle)
	}

	next := *stored
	next.Title = t.Title
	next.Description = t.Description
	next.Status = t.Status
	next.Priority = t.Priority
	next.AssignedUser = t.AssignedUser
	next.Version = expectedVersion + 1
	next.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	if err := s.recordLocked(ctx, &next, entry); err != nil {
		return nil, err
	}
	s.tasks[next.ID] = &next
	out := next
	return &out, nil
}

// DeleteByID removes a task.
func (s *MemStore) DeleteByID(ctx context.Context, id string, entry *audit.Entry) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}
	removed := *stored
	if err := s.recordLocked(ctx, &removed, entry); err != nil {
		return nil, err
	}
	delete(s.tasks, id)
	return &removed, nil
}

// recordLocked appends entry for t before the map is touched, so a
// failed append leaves the store unchanged.
func (s *MemStore) recordLocked(ctx context.Context, t *Task, entry *audit.Entry) error {
	if entry == nil {
		return nil
	}
	entry.TaskID = t.ID
	entry.TaskTitle = t.Title
	if _, err := s.log.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry for task %s: %w", t.ID, err)
	}
	return nil
}

func (s *MemStore) titleTakenLocked(title, exceptID string) bool {
	for id, t := range s.tasks {
		if id != exceptID && t.Title == title {
			return true
		}
	}
	return false
}
