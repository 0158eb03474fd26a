package task

import (
	"context"
	"time"

	"taskboard/pkg/audit"
)

// Status is a task's board column.
type Status string

const (
	StatusTodo       Status = "Todo"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

// Statuses lists every status in board order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// ActiveStatuses are the statuses that count toward a user's load.
var ActiveStatuses = []Status{StatusTodo, StatusInProgress}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority is a task's urgency.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work on the shared board.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	Priority     Priority  `json:"priority"`
	AssignedUser string    `json:"assignedUser,omitempty"` // user ID, empty when unassigned
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Filter selects tasks. Zero-valued fields match everything.
type Filter struct {
	AssignedUser string
	Statuses     []Status
	Title        string
	Limit        int
}

func (f Filter) matches(t *Task) bool {
	if f.AssignedUser != "" && t.AssignedUser != f.AssignedUser {
		return false
	}
	if f.Title != "" && t.Title != f.Title {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if t.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// Store is the contract for task persistence.
//
// Every write takes the audit entry describing it; implementations append
// that entry in the same transaction as the write, filling in TaskID and
// TaskTitle. A write that fails leaves no entry behind.
type Store interface {
	FindByID(ctx context.Context, id string) (*Task, error)
	FindMany(ctx context.Context, f Filter) ([]Task, error)
	CountWhere(ctx context.Context, f Filter) (int, error)

	// Insert stores a new task at version 0 and assigns its ID.
	Insert(ctx context.Context, t *Task, entry *audit.Entry) (*Task, error)

	// ConditionalSave replaces the mutable fields of t.ID and bumps its
	// version to expectedVersion+1, but only if the stored version is still
	// expectedVersion. Otherwise it returns a *StaleWriteError carrying the
	// stored task.
	ConditionalSave(ctx context.Context, t *Task, expectedVersion int64, entry *audit.Entry) (*Task, error)

	// DeleteByID removes a task unconditionally and returns what was removed.
	DeleteByID(ctx context.Context, id string, entry *audit.Entry) (*Task, error)

	EnsureTable(ctx context.Context) error
}
