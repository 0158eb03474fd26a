package board

import (
	"context"
	"errors"
	"fmt"

	"taskboard/pkg/audit"
	"taskboard/pkg/broadcast"
	"taskboard/pkg/task"
)

// AttemptUpdate applies m to a task if its stored version still equals
// expectedVersion. A stale version yields a *ConflictError carrying the
// stored task; nothing is audited or broadcast in that case.
func (s *Service) AttemptUpdate(ctx context.Context, actorID, taskID string, expectedVersion int64, m task.Mutation) (*task.Task, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, m.AssignedUser); err != nil {
		return nil, err
	}
	stored, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if stored.Version != expectedVersion {
		return nil, &ConflictError{Current: stored, Submitted: m}
	}

	next := m.Apply(*stored)
	action, details, err := s.describe(ctx, stored, &next)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, &next, expectedVersion, m, &audit.Entry{
		UserID:  actorID,
		Action:  action,
		Details: details,
	})
}

// commit performs the conditional write and, once it has committed,
// publishes the new state. The store appends entry in the same
// transaction as the write.
func (s *Service) commit(ctx context.Context, next *task.Task, expectedVersion int64, submitted task.Mutation, entry *audit.Entry) (*task.Task, error) {
	saved, err := s.tasks.ConditionalSave(ctx, next, expectedVersion, entry)
	if err != nil {
		err = conflictFrom(err, submitted)
		var ce *ConflictError
		if errors.As(err, &ce) {
			s.log.WithTask(next.ID).Debug("stale write rejected",
				"actor", entry.UserID, "expected", expectedVersion, "stored", ce.Current.Version)
		}
		return nil, err
	}
	s.publish(broadcast.ActionUpdate, saved)
	s.log.WithTask(saved.ID).Info("task updated",
		"actor", entry.UserID, "action", string(entry.Action), "version", saved.Version)
	return saved, nil
}

// describe classifies the change from before to after for the action log.
// A change to the assignee alone is an assign. A change to status alone is
// an update whose details name the new column.
func (s *Service) describe(ctx context.Context, before, after *task.Task) (audit.Action, string, error) {
	statusChanged := before.Status != after.Status
	assigneeChanged := before.AssignedUser != after.AssignedUser
	otherChanged := before.Title != after.Title ||
		before.Description != after.Description ||
		before.Priority != after.Priority

	switch {
	case statusChanged && !assigneeChanged && !otherChanged:
		return audit.ActionUpdate, fmt.Sprintf("Task %q moved to %s", after.Title, after.Status), nil
	case assigneeChanged && !statusChanged && !otherChanged:
		if after.AssignedUser == "" {
			return audit.ActionAssign, fmt.Sprintf("Task %q unassigned", after.Title), nil
		}
		u, err := s.users.Get(ctx, after.AssignedUser)
		if err != nil {
			return "", "", err
		}
		return audit.ActionAssign, fmt.Sprintf("Task %q assigned to %s", after.Title, u.Username), nil
	}
	return audit.ActionUpdate, fmt.Sprintf("Task %q updated", after.Title), nil
}
