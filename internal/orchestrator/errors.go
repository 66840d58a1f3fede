package orchestrator

import (
	"errors"
	"fmt"

	"github.com/marcus/stagehand/internal/tasks"
	"github.com/marcus/stagehand/internal/templates"
)

// Errors surfaced by Execute. Lookup and cycle errors come from the
// registry and catalog and are re-exported so callers need one import.
var (
	ErrUnknownTask      = tasks.ErrUnknownTask
	ErrUnknownTemplate  = templates.ErrUnknownTemplate
	ErrCyclicDependency = tasks.ErrCyclicDependency

	// ErrUnexpectedlyReady means the caller required a task not to have run yet.
	ErrUnexpectedlyReady = errors.New("task has already run, this is unexpected")

	// ErrNotReady means the caller required a task to have run already.
	ErrNotReady = errors.New("task has not run yet")

	// ErrConflictingFlags means both MustBeReady and MustNotBeReady were set.
	ErrConflictingFlags = errors.New("must-be-ready and must-not-be-ready are mutually exclusive")
)

// StateError reports a readiness expectation that did not hold for a task.
type StateError struct {
	Task     string
	Template string
	Err      error // ErrUnexpectedlyReady or ErrNotReady
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Task, e.Template, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// RunError wraps a failure returned by a task's Run.
type RunError struct {
	Task     string
	Template string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s (%s) failed: %v", e.Task, e.Template, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
