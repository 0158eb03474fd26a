package task

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrVersionConflict matches any *StaleWriteError.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateTitle is returned when another task already has the title.
	ErrDuplicateTitle = errors.New("duplicate task title")
)

// StaleWriteError reports a conditional write that lost to another writer.
type StaleWriteError struct {
	Expected int64
	Current  *Task // stored task at the time the write was rejected
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("version conflict on task %s: expected %d, stored %d", e.Current.ID, e.Expected, e.Current.Version)
}

// Is lets errors.Is(err, ErrVersionConflict) match.
func (e *StaleWriteError) Is(target error) bool {
	return target == ErrVersionConflict
}

// ValidationError reports an invalid field value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
