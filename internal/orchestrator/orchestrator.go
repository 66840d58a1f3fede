// Package orchestrator resolves task prerequisites and executes tasks against templates.
// Execution is sequential and depth-first: a prerequisite completes before its dependent runs.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/stagehand/internal/logging"
	"github.com/marcus/stagehand/internal/reporting"
	"github.com/marcus/stagehand/internal/tasks"
	"github.com/marcus/stagehand/internal/templates"
)

// Flags control how a single Execute call treats readiness.
type Flags struct {
	MustNotBeReady bool // fail if the task is already ready
	MustBeReady    bool // fail if the task is not ready; never run it
	Cascade        bool // run unmet prerequisites instead of requiring them
	Report         bool // write an execution record for the requested task
}

// prerequisiteFlags derives the flags a prerequisite is executed with.
func (f Flags) prerequisiteFlags() Flags {
	return Flags{
		MustNotBeReady: false,
		MustBeReady:    !f.Cascade,
		Cascade:        f.Cascade,
		Report:         false,
	}
}

// Orchestrator executes registered tasks. It holds no per-call state, so
// concurrent Execute calls are safe as long as they use different templates.
type Orchestrator struct {
	registry     *tasks.Registry
	catalog      *templates.Catalog
	reporter     reporting.Reporter
	logger       *logging.Logger
	eventHandler EventHandler
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReporter sets the sink for execution records.
func WithReporter(r reporting.Reporter) Option {
	return func(o *Orchestrator) {
		o.reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithEventHandler sets an optional callback for lifecycle events.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) {
		o.eventHandler = h
	}
}

// WithClock overrides the time source used for record timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator over a registry and template catalog.
func New(registry *tasks.Registry, catalog *templates.Catalog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		catalog:  catalog,
		logger:   logging.Component("orchestrator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// invocation is the template binding shared by every task in one recursion chain.
type invocation struct {
	runID   string
	details tasks.Details
	log     *logging.Logger
}

// Execute runs taskID against templateID, honoring flags.
//
// A ready task is skipped unless MustNotBeReady is set. A task that is not
// ready fails when MustBeReady is set; otherwise its prerequisites are
// executed (Cascade) or required to be ready (no Cascade) before it runs.
func (o *Orchestrator) Execute(ctx context.Context, taskID, templateID string, flags Flags) error {
	if flags.MustBeReady && flags.MustNotBeReady {
		return ErrConflictingFlags
	}

	task, err := o.registry.Lookup(taskID)
	if err != nil {
		return err
	}
	tmpl, err := o.catalog.Lookup(templateID)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	inv := &invocation{
		runID: runID,
		details: tasks.Details{
			TemplateID: templateID,
			Template:   tmpl,
			WorkingDir: o.catalog.WorkingDir(templateID),
		},
		log: o.logger.WithFields(map[string]any{
			"run_id":   runID,
			"template": templateID,
		}),
	}

	inv.log.InfoCtx("execute", map[string]any{
		"task":              taskID,
		"cascade":           flags.Cascade,
		"must_be_ready":     flags.MustBeReady,
		"must_not_be_ready": flags.MustNotBeReady,
		"report":            flags.Report,
	})

	return o.execute(ctx, inv, task, flags, nil)
}

func (o *Orchestrator) execute(ctx context.Context, inv *invocation, task tasks.Task, flags Flags, chain []string) error {
	name := task.Name()
	templateID := inv.details.TemplateID
	depth := len(chain)

	for i, visiting := range chain {
		if visiting == name {
			path := make([]string, 0, len(chain)-i+1)
			path = append(path, chain[i:]...)
			return &tasks.CycleError{Path: append(path, name)}
		}
	}
	chain = append(chain, name)

	ready, err := task.Ready(ctx, inv.details)
	if err != nil {
		return fmt.Errorf("%s (%s): readiness check: %w", name, templateID, err)
	}

	if ready {
		if flags.MustNotBeReady {
			return &StateError{Task: name, Template: templateID, Err: ErrUnexpectedlyReady}
		}
		inv.log.DebugCtx("task not required", map[string]any{"task": name, "depth": depth})
		o.emit(Event{Type: EventTaskSkipped, RunID: inv.runID, Task: name, Template: templateID, Depth: depth})
		return nil
	}

	if flags.MustBeReady {
		return &StateError{Task: name, Template: templateID, Err: ErrNotReady}
	}

	for _, dep := range task.Before() {
		prereq, err := o.registry.Lookup(dep)
		if err != nil {
			return fmt.Errorf("%s prerequisite: %w", name, err)
		}
		if err := o.execute(ctx, inv, prereq, flags.prerequisiteFlags(), chain); err != nil {
			return err
		}
	}

	start := o.now()
	inv.log.InfoCtx("task start", map[string]any{"task": name, "depth": depth})
	o.emit(Event{Type: EventTaskStart, Time: start, RunID: inv.runID, Task: name, Template: templateID, Depth: depth})

	runErr := task.Run(ctx, inv.details)
	duration := o.now().Sub(start)

	end := Event{Type: EventTaskEnd, Time: start.Add(duration), RunID: inv.runID, Task: name, Template: templateID, Depth: depth, Duration: duration}
	if runErr != nil {
		end.Error = runErr.Error()
		inv.log.Err(runErr).Str("task", name).Dur("duration", duration).Msg("task failed")
	} else {
		inv.log.InfoCtx("task complete", map[string]any{"task": name, "duration": duration.String()})
	}
	o.emit(end)

	if flags.Report {
		reportErr := o.report(inv, reporting.Record{
			Task:     name,
			Template: templateID,
			Start:    start,
			Duration: duration,
			Err:      runErr,
		}, depth)
		if reportErr != nil {
			if runErr == nil {
				return reportErr
			}
			inv.log.WarnCtx("report write failed", map[string]any{"task": name, "error": reportErr.Error()})
		}
	}

	if runErr != nil {
		return &RunError{Task: name, Template: templateID, Err: runErr}
	}
	return nil
}

func (o *Orchestrator) report(inv *invocation, rec reporting.Record, depth int) error {
	if o.reporter == nil {
		inv.log.Warn("report requested but no reporter configured")
		return nil
	}
	path, err := o.reporter.Report(rec)
	if err != nil {
		return fmt.Errorf("writing report for %s: %w", rec.Task, err)
	}
	inv.log.InfoCtx("test results written", map[string]any{"task": rec.Task, "path": path})
	o.emit(Event{Type: EventReportWritten, RunID: inv.runID, Task: rec.Task, Template: rec.Template, Depth: depth, Path: path})
	return nil
}

// emit sends an event to the registered handler, if any. Events without a
// time are stamped from the orchestrator clock.
func (o *Orchestrator) emit(e Event) {
	if o.eventHandler == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = o.now()
	}
	o.eventHandler(e)
}
