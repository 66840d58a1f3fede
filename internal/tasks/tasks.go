// Package tasks defines the task contract and the process-wide registry.
// Tasks are registered once at startup and never change afterwards.
package tasks

import (
	"context"

	"github.com/marcus/stagehand/internal/templates"
)

// Details binds a task call to a template and its working directory.
type Details struct {
	TemplateID string
	Template   templates.Template
	WorkingDir string
}

// Task is a named unit of work with a readiness probe and prerequisites.
type Task interface {
	// Name returns the task identifier.
	Name() string
	// Before returns prerequisite task identifiers in execution order.
	Before() []string
	// Ready reports whether the task's effects are already present for the template.
	Ready(ctx context.Context, d Details) (bool, error)
	// Run performs the task.
	Run(ctx context.Context, d Details) error
}

// Definition implements Task from plain functions.
type Definition struct {
	ID            string
	Prerequisites []string
	ReadyFunc     func(ctx context.Context, d Details) (bool, error)
	RunFunc       func(ctx context.Context, d Details) error
}

// Name returns the task identifier.
func (d *Definition) Name() string {
	return d.ID
}

// Before returns the prerequisites.
func (d *Definition) Before() []string {
	return d.Prerequisites
}

// Ready calls ReadyFunc. A nil ReadyFunc is never ready.
func (d *Definition) Ready(ctx context.Context, det Details) (bool, error) {
	if d.ReadyFunc == nil {
		return false, nil
	}
	return d.ReadyFunc(ctx, det)
}

// Run calls RunFunc. A nil RunFunc does nothing.
func (d *Definition) Run(ctx context.Context, det Details) error {
	if d.RunFunc == nil {
		return nil
	}
	return d.RunFunc(ctx, det)
}
