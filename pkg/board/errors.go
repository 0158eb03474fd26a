package board

import (
	"errors"
	"fmt"

	"taskboard/pkg/task"
)

// ErrNoAssignee is returned by smart assignment when there are no users.
var ErrNoAssignee = errors.New("no assignee available")

// ConflictError is the conflict descriptor returned to a writer whose
// expected version is stale. Only the submitter ever sees it.
type ConflictError struct {
	Current   *task.Task    // stored task when the write was rejected
	Submitted task.Mutation // what the caller tried to write
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s was modified by another user (now at version %d)", e.Current.ID, e.Current.Version)
}

// Is lets errors.Is(err, task.ErrVersionConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == task.ErrVersionConflict
}

func conflictFrom(err error, submitted task.Mutation) error {
	var stale *task.StaleWriteError
	if errors.As(err, &stale) {
		return &ConflictError{Current: stale.Current, Submitted: submitted}
	}
	return err
}
