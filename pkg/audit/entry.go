// Package audit is the append-only action log. Every accepted task
// mutation writes exactly one Entry, in the same store transaction as the
// mutation itself. Entries are hash-chained so tampering or gaps are
// detectable with VerifyChain.
package audit

import (
	"context"
	"time"
)

// Action is the kind of mutation an entry records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAssign Action = "assign"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionAssign:
		return true
	}
	return false
}

// Entry is a single immutable record in the action log.
type Entry struct {
	ID        string    `json:"id"`        // UUID v7
	Seq       int64     `json:"seq"`       // insertion order, assigned by the log
	TaskID    string    `json:"taskId"`    // task the action applied to
	TaskTitle string    `json:"taskTitle"` // title at the time of the action
	UserID    string    `json:"userId"`    // actor
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prevHash"`
}

// Log is the contract for action log persistence.
type Log interface {
	// Append seals e (id, timestamp, seq, hash chain) and stores it.
	Append(ctx context.Context, e *Entry) (*Entry, error)

	// Recent returns up to limit entries, newest first. Entries with equal
	// timestamps are ordered by descending insertion order.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// ByTask returns up to limit entries for one task, newest first.
	ByTask(ctx context.Context, taskID string, limit int) ([]Entry, error)

	Count(ctx context.Context) (int, error)
	VerifyChain(ctx context.Context) error
	EnsureTable(ctx context.Context) error
}
