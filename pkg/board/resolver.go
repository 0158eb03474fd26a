package board

import (
	"context"
	"fmt"
	"strings"

	"taskboard/pkg/audit"
	"taskboard/pkg/task"
)

// Policy is how a conflict is resolved.
type Policy string

const (
	// PolicyMerge keeps stored values for every field the payload leaves
	// empty.
	PolicyMerge Policy = "merge"
	// PolicyOverwrite replaces every mutable field with the payload.
	PolicyOverwrite Policy = "overwrite"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyMerge || p == PolicyOverwrite
}

// Resolve produces the next accepted state of a conflicted task from the
// state stored right now and the caller's payload. The write is checked
// against the version read here; if another writer gets in between,
// Resolve returns a fresh *ConflictError rather than clobbering it.
func (s *Service) Resolve(ctx context.Context, actorID, taskID string, policy Policy, payload task.Mutation) (*task.Task, error) {
	if !policy.Valid() {
		return nil, &task.ValidationError{Field: "action", Message: "must be merge or overwrite"}
	}
	if policy == PolicyMerge {
		payload = withoutEmpty(payload)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, payload.AssignedUser); err != nil {
		return nil, err
	}

	stored, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var next task.Task
	switch policy {
	case PolicyMerge:
		next = payload.Apply(*stored)
	case PolicyOverwrite:
		if next, err = overwrite(*stored, payload); err != nil {
			return nil, err
		}
	}

	return s.commit(ctx, &next, stored.Version, payload, &audit.Entry{
		UserID:  actorID,
		Action:  audit.ActionUpdate,
		Details: fmt.Sprintf("Conflict resolved for task %q (%s)", next.Title, policy),
	})
}

// withoutEmpty drops fields that are set to an empty string, so a merge
// treats them as absent.
func withoutEmpty(m task.Mutation) task.Mutation {
	if m.Title != nil && strings.TrimSpace(*m.Title) == "" {
		m.Title = nil
	}
	if m.Description != nil && *m.Description == "" {
		m.Description = nil
	}
	if m.Status != nil && *m.Status == "" {
		m.Status = nil
	}
	if m.Priority != nil && *m.Priority == "" {
		m.Priority = nil
	}
	if m.AssignedUser != nil && *m.AssignedUser == "" {
		m.AssignedUser = nil
	}
	return m
}

// overwrite takes every mutable field from m. Status and priority fall
// back to their defaults and the assignee to none; title is required.
func overwrite(stored task.Task, m task.Mutation) (task.Task, error) {
	if m.Title == nil {
		return task.Task{}, &task.ValidationError{Field: "title", Message: "is required"}
	}
	next := stored
	next.Title = *m.Title
	next.Description = ""
	next.Status = ""
	next.Priority = ""
	next.AssignedUser = ""
	next = m.Apply(next)
	if err := task.Normalize(&next); err != nil {
		return task.Task{}, err
	}
	return next, nil
}
