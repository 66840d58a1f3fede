// Package shell implements tasks whose readiness probe and run action are
// shell snippets, interpreted in-process so no system shell is required.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/marcus/stagehand/internal/tasks"
)

// Spec declares a script task.
type Spec struct {
	Name        string
	Before      []string
	Dir         string   // run directory; empty means the template working dir
	ReadyFiles  []string // doublestar globs that must all match under the dir
	ReadyScript string   // exit 0 means ready
	Run         string
}

// ScriptTask is a tasks.Task backed by shell snippets.
type ScriptTask struct {
	spec        Spec
	readyFiles  []string
	readyScript *syntax.File
	run         *syntax.File
	stdout      io.Writer
	stderr      io.Writer
	environ     func() []string
}

// Option configures a ScriptTask.
type Option func(*ScriptTask)

// WithOutput sets where run output goes.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *ScriptTask) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithEnviron overrides the base environment (os.Environ by default).
func WithEnviron(fn func() []string) Option {
	return func(s *ScriptTask) {
		s.environ = fn
	}
}

// New parses the scripts in spec and returns a task.
func New(spec Spec, opts ...Option) (*ScriptTask, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("script task has empty name")
	}
	if strings.TrimSpace(spec.Run) == "" {
		return nil, fmt.Errorf("task %s: run script is empty", spec.Name)
	}

	s := &ScriptTask{
		spec:    spec,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		environ: os.Environ,
	}

	for _, pattern := range spec.ReadyFiles {
		pattern = filepath.ToSlash(pattern)
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("task %s: invalid ready glob %q", spec.Name, pattern)
		}
		s.readyFiles = append(s.readyFiles, pattern)
	}

	var err error
	if s.run, err = parse(spec.Name+".run", spec.Run); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.ReadyScript) != "" {
		if s.readyScript, err = parse(spec.Name+".ready", spec.ReadyScript); err != nil {
			return nil, err
		}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func parse(name, src string) (*syntax.File, error) {
	f, err := syntax.NewParser().Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return f, nil
}

// Name returns the task identifier.
func (s *ScriptTask) Name() string {
	return s.spec.Name
}

// Before returns the prerequisites.
func (s *ScriptTask) Before() []string {
	return s.spec.Before
}

// Dir returns the directory the task runs in for d.
func (s *ScriptTask) Dir(d tasks.Details) string {
	if s.spec.Dir != "" {
		return s.spec.Dir
	}
	return d.WorkingDir
}

// Ready reports whether all ready globs match and the ready script exits 0.
// A task with no readiness checks is never ready. A missing directory is not ready.
func (s *ScriptTask) Ready(ctx context.Context, d tasks.Details) (bool, error) {
	if len(s.readyFiles) == 0 && s.readyScript == nil {
		return false, nil
	}

	dir := s.Dir(d)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s is not a directory", dir)
	}

	fsys := os.DirFS(dir)
	for _, pattern := range s.readyFiles {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return false, fmt.Errorf("ready glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return false, nil
		}
	}

	if s.readyScript != nil {
		err := s.exec(ctx, s.readyScript, dir, d, io.Discard)
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

// Run creates the directory if needed and runs the run script in it.
func (s *ScriptTask) Run(ctx context.Context, d tasks.Details) error {
	dir := s.Dir(d)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	err := s.exec(ctx, s.run, dir, d, s.stdout)
	var status interp.ExitStatus
	if errors.As(err, &status) {
		return fmt.Errorf("%s exited with status %d", s.spec.Name, uint8(status))
	}
	return err
}

func (s *ScriptTask) exec(ctx context.Context, file *syntax.File, dir string, d tasks.Details, stdout io.Writer) error {
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(s.env(d)...)),
		interp.StdIO(nil, stdout, s.stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return fmt.Errorf("creating shell: %w", err)
	}
	return runner.Run(ctx, file)
}

// env returns the base environment plus the template binding.
func (s *ScriptTask) env(d tasks.Details) []string {
	env := append([]string(nil), s.environ()...)
	env = append(env,
		"STAGEHAND_TASK="+s.spec.Name,
		"STAGEHAND_TEMPLATE="+d.TemplateID,
		"STAGEHAND_WORKDIR="+d.WorkingDir,
	)

	keys := make([]string, 0, len(d.Template.Params))
	for k := range d.Template.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, "STAGEHAND_PARAM_"+EnvKey(k)+"="+d.Template.Params[k])
	}
	return env
}

// EnvKey upper-cases k and replaces anything outside [A-Z0-9_] with '_'.
func EnvKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(k) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
