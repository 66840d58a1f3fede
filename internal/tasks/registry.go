package tasks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownTask is returned for identifiers that are not registered.
	ErrUnknownTask = errors.New("unknown task")

	// ErrCyclicDependency is returned when prerequisites form a cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")
)

// CycleError describes a prerequisite cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Path, " -> "))
}

// Unwrap returns ErrCyclicDependency.
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// Registry maps task identifiers to tasks. It is immutable once built.
type Registry struct {
	byName map[string]Task
}

// NewRegistry registers the given tasks. Names must be non-empty and unique.
func NewRegistry(list ...Task) (*Registry, error) {
	r := &Registry{byName: make(map[string]Task, len(list))}
	for _, t := range list {
		if t == nil {
			return nil, fmt.Errorf("nil task")
		}
		name := t.Name()
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("task has empty name")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate task %q", name)
		}
		r.byName[name] = t
	}
	return r, nil
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (Task, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return t, nil
}

// Names returns all registered task names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.byName)
}

// Validate checks that every prerequisite is registered and the graph is acyclic.
func (r *Registry) Validate() error {
	for _, name := range r.Names() {
		for _, dep := range r.byName[name].Before() {
			if _, ok := r.byName[dep]; !ok {
				return fmt.Errorf("task %s depends on %s: %w", name, dep, ErrUnknownTask)
			}
		}
	}

	// white=0, gray=1, black=2
	colors := make(map[string]int, len(r.byName))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		path = append(path, name)
		colors[name] = 1
		for _, dep := range r.byName[name].Before() {
			switch colors[dep] {
			case 1:
				return &CycleError{Path: append(cyclePath(path, dep), dep)}
			case 0:
				if err := visit(dep, path); err != nil {
					return err
				}
			}
		}
		colors[name] = 2
		return nil
	}

	for _, name := range r.Names() {
		if colors[name] == 0 {
			if err := visit(name, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// Plan returns the depth-first order a cascade would visit, prerequisites
// first and name last. Shared prerequisites appear once.
func (r *Registry) Plan(name string) ([]string, error) {
	var order []string
	done := make(map[string]bool)
	visiting := make(map[string]bool)

	var walk func(n string, path []string) error
	walk = func(n string, path []string) error {
		t, err := r.Lookup(n)
		if err != nil {
			return err
		}
		path = append(path, n)
		if visiting[n] {
			return &CycleError{Path: cyclePath(path, n)}
		}
		if done[n] {
			return nil
		}
		visiting[n] = true
		for _, dep := range t.Before() {
			if err := walk(dep, path); err != nil {
				return err
			}
		}
		visiting[n] = false
		done[n] = true
		order = append(order, n)
		return nil
	}

	if err := walk(name, nil); err != nil {
		return nil, err
	}
	return order, nil
}

// cyclePath trims path to start at the first occurrence of name.
func cyclePath(path []string, name string) []string {
	for i, p := range path {
		if p == name {
			out := make([]string, len(path)-i)
			copy(out, path[i:])
			return out
		}
	}
	return append([]string(nil), path...)
}
