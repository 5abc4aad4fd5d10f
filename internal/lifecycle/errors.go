package lifecycle

import (
	"fmt"

	"tasktrail/internal/domain"
)

// InvalidTransitionError reports a status change the transition policy denies.
type InvalidTransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// ValidationError reports structurally invalid input, caught before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ConflictError reports that a task's version moved between read and write of
// a mutating operation. Retrying is the caller's decision.
type ConflictError struct {
	TaskID  string
	Version int
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("task %s modified concurrently at version %d", e.TaskID, e.Version)
}
