package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcus/stagehand/internal/shell"
	"github.com/marcus/stagehand/internal/tasks"
)

func validConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Templates: []TemplateConfig{
			{ID: "cra/default-ts", Params: map[string]string{"framework": "react"}},
		},
		Tasks: []TaskConfig{
			{Name: "create", Run: "echo create"},
			{Name: "smoke-test", Before: []string{"create"}, Run: "echo smoke"},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"empty logging uses defaults", func(c *Config) { c.Logging = LoggingConfig{} }, nil},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, ErrInvalidLogLevel},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
		{"no templates", func(c *Config) { c.Templates = nil }, ErrNoTemplates},
		{"no tasks", func(c *Config) { c.Tasks = nil }, ErrNoTasks},
		{"missing run", func(c *Config) { c.Tasks[1].Run = "  " }, ErrTaskMissingRun},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_MissingRunNamesTask(t *testing.T) {
	cfg := validConfig()
	cfg.Tasks[1].Run = ""
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "smoke-test") {
		t.Errorf("error should name the task, got: %v", err)
	}
}

func TestValidate_MissingName(t *testing.T) {
	cfg := validConfig()
	cfg.Tasks[0].Name = ""
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "tasks[0]") {
		t.Errorf("error should mention tasks[0], got: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}
	for _, tc := range tests {
		result := expandPath(tc.input)
		if result != tc.expected {
			t.Errorf("expandPath(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}

const projectYAML = `
paths:
  sandbox: build/sandbox
  reports: build/test-results
logging:
  level: debug
templates:
  - id: cra/default-ts
    name: Create React App (TypeScript)
    params:
      framework: react
  - id: vite/vue
tasks:
  - name: create
    ready:
      files: [package.json]
    run: echo create
  - name: smoke-test
    before: [create]
    dir: checks
    run: echo smoke
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFromPaths_WithYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, FileName), projectYAML)

	cfg, err := LoadFromPaths(tmpDir, filepath.Join(tmpDir, "nonexistent", "global.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Templates) != 2 || cfg.Templates[0].ID != "cra/default-ts" {
		t.Fatalf("Templates = %+v", cfg.Templates)
	}
	if cfg.Templates[0].Params["framework"] != "react" {
		t.Errorf("Params = %v", cfg.Templates[0].Params)
	}
	if len(cfg.Tasks) != 2 || cfg.Tasks[1].Before[0] != "create" {
		t.Fatalf("Tasks = %+v", cfg.Tasks)
	}
	if got := cfg.Tasks[0].Ready.Files; len(got) != 1 || got[0] != "package.json" {
		t.Errorf("Ready.Files = %v", got)
	}
	if cfg.Dir != tmpDir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, tmpDir)
	}
	if got, want := cfg.SandboxDir(), filepath.Join(tmpDir, "build", "sandbox"); got != want {
		t.Errorf("SandboxDir = %q, want %q", got, want)
	}
	if got, want := cfg.ReportsDir(), filepath.Join(tmpDir, "build", "test-results"); got != want {
		t.Errorf("ReportsDir = %q, want %q", got, want)
	}
}

func TestLoadFromPaths_MergeConfigs(t *testing.T) {
	tmpDir := t.TempDir()

	globalConfig := filepath.Join(tmpDir, "global", "stagehand.yaml")
	writeFile(t, globalConfig, `
logging:
  level: warn
  format: text
paths:
  reports: /var/reports
`)

	projectDir := filepath.Join(tmpDir, "project")
	writeFile(t, filepath.Join(projectDir, FileName), `
logging:
  level: debug
`)

	cfg, err := LoadFromPaths(projectDir, globalConfig)
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug (project override)", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want text (from global)", cfg.Logging.Format)
	}
	if cfg.ReportsDir() != "/var/reports" {
		t.Errorf("ReportsDir = %q", cfg.ReportsDir())
	}
	if len(cfg.Files) != 2 {
		t.Errorf("Files = %v, want both", cfg.Files)
	}
}

func TestLoadFromPaths_RelativePathsFollowTheirFile(t *testing.T) {
	tmpDir := t.TempDir()

	globalDir := filepath.Join(tmpDir, "home", ".config", "stagehand")
	writeFile(t, filepath.Join(globalDir, FileName), `
paths:
  sandbox: sandbox
  reports: reports
tasks:
  - name: bootstrap
    dir: shared
    run: echo bootstrap
`)

	projectDir := filepath.Join(tmpDir, "project")
	writeFile(t, filepath.Join(projectDir, FileName), `
paths:
  reports: out/junit
logging:
  level: debug
`)

	cfg, err := LoadFromPaths(projectDir, filepath.Join(globalDir, FileName))
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}
	if len(cfg.Tasks) != 1 {
		t.Fatalf("Tasks = %+v", cfg.Tasks)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"sandbox from global", cfg.SandboxDir(), filepath.Join(globalDir, "sandbox")},
		{"reports from project", cfg.ReportsDir(), filepath.Join(projectDir, "out", "junit")},
		{"task dir from global", cfg.Tasks[0].Dir, filepath.Join(globalDir, "shared")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if cfg.Dir != projectDir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, projectDir)
	}
}

func TestLoadFromPaths_Defaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := LoadFromPaths(tmpDir, filepath.Join(tmpDir, "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}

	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, DefaultLogLevel)
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, DefaultLogFormat)
	}
	if cfg.Logging.RetentionDays != DefaultRetentionDays {
		t.Errorf("Logging.RetentionDays = %d", cfg.Logging.RetentionDays)
	}
	if len(cfg.Files) != 0 {
		t.Errorf("Files = %v, want none", cfg.Files)
	}
	if !errors.Is(Validate(cfg), ErrNoTemplates) {
		t.Error("empty config should fail validation")
	}
}

func TestLoadFromPaths_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, FileName), projectYAML)
	t.Setenv("STAGEHAND_LOGGING_LEVEL", "error")
	t.Setenv("STAGEHAND_PATHS_SANDBOX", "/tmp/elsewhere")

	cfg, err := LoadFromPaths(tmpDir, "")
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want error", cfg.Logging.Level)
	}
	if cfg.SandboxDir() != "/tmp/elsewhere" {
		t.Errorf("SandboxDir = %q", cfg.SandboxDir())
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "ci", "custom.yaml")
	writeFile(t, path, projectYAML)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Dir != filepath.Dir(path) {
		t.Errorf("Dir = %q", cfg.Dir)
	}

	if _, err := LoadFile(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "tasks: [\n  - name: x\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestBuildCatalog(t *testing.T) {
	cfg := validConfig()
	cfg.Dir = "/project"
	cfg.Paths.Sandbox = "sandbox"

	catalog, err := BuildCatalog(cfg)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	if catalog.Root() != "/project/sandbox" {
		t.Errorf("Root = %q", catalog.Root())
	}
	if got := catalog.WorkingDir("cra/default-ts"); got != "/project/sandbox/cra-default-ts" {
		t.Errorf("WorkingDir = %q", got)
	}

	cfg.Templates = append(cfg.Templates, cfg.Templates[0])
	if _, err := BuildCatalog(cfg); err == nil {
		t.Error("expected duplicate template error")
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := validConfig()
	cfg.Dir = t.TempDir()
	cfg.Tasks[1].Dir = "checks"

	registry, err := BuildRegistry(cfg, shell.WithEnviron(func() []string { return nil }))
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if registry.Len() != 2 {
		t.Errorf("Len = %d", registry.Len())
	}
	plan, err := registry.Plan("smoke-test")
	if err != nil || strings.Join(plan, ",") != "create,smoke-test" {
		t.Errorf("Plan = %v, %v", plan, err)
	}

	task, _ := registry.Lookup("smoke-test")
	st, ok := task.(*shell.ScriptTask)
	if !ok {
		t.Fatalf("task is %T", task)
	}
	if got, want := st.Dir(tasks.Details{}), filepath.Join(cfg.Dir, "checks"); got != want {
		t.Errorf("Dir = %q, want %q", got, want)
	}
	if ready, err := st.Ready(context.Background(), tasks.Details{}); err != nil || ready {
		t.Errorf("Ready = %v, %v", ready, err)
	}
}

func TestBuildRegistry_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown prerequisite", func(c *Config) { c.Tasks[1].Before = []string{"missing"} }, tasks.ErrUnknownTask},
		{"cycle", func(c *Config) { c.Tasks[0].Before = []string{"smoke-test"} }, tasks.ErrCyclicDependency},
		{"bad script", func(c *Config) { c.Tasks[0].Run = "if then (" }, nil},
		{"duplicate", func(c *Config) { c.Tasks[1].Name = "create" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			_, err := BuildRegistry(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
