package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/marcus/stagehand/internal/config"
	"github.com/marcus/stagehand/internal/logging"
	"github.com/marcus/stagehand/internal/orchestrator"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Dir:   dir,
		Paths: config.PathsConfig{Sandbox: "sandbox", Reports: "test-results"},
		Templates: []config.TemplateConfig{
			{ID: "cra/default-ts", Params: map[string]string{"framework": "react"}},
		},
		Tasks: []config.TaskConfig{
			{Name: "create", Ready: config.ReadyConfig{Files: []string{"package.json"}}, Run: `echo "$STAGEHAND_PARAM_FRAMEWORK" > package.json`},
			{Name: "smoke-test", Before: []string{"create"}, Run: "echo smoke ok"},
			{Name: "broken", Before: []string{"create"}, Run: "echo boom\nexit 2"},
		},
	}
}

func runWith(t *testing.T, cfg *config.Config, task string, flags orchestrator.Flags) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := executeRun(context.Background(), executeRunParams{
		cfg:      cfg,
		task:     task,
		template: "cra/default-ts",
		flags:    flags,
		out:      &out,
		errOut:   &out,
		log:      logging.Discard(),
	})
	return out.String(), err
}

func TestFlagsFromCLI(t *testing.T) {
	tests := []struct {
		force, before, junit bool
		want                 orchestrator.Flags
	}{
		{false, true, false, orchestrator.Flags{Cascade: true}},
		{true, true, false, orchestrator.Flags{MustBeReady: true, Cascade: true}},
		{false, false, true, orchestrator.Flags{Report: true}},
	}
	for _, tt := range tests {
		if got := flagsFromCLI(tt.force, tt.before, tt.junit); got != tt.want {
			t.Errorf("flagsFromCLI(%v, %v, %v) = %+v, want %+v", tt.force, tt.before, tt.junit, got, tt.want)
		}
	}
}

func TestExecuteRun_CascadeAndReport(t *testing.T) {
	cfg := testConfig(t)

	out, err := runWith(t, cfg, "smoke-test", flagsFromCLI(false, true, true))
	if err != nil {
		t.Fatalf("executeRun: %v\n%s", err, out)
	}

	for _, want := range []string{">>> create (cra/default-ts)", ">>> smoke-test (cra/default-ts)", "smoke ok", "2 task(s) run"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	pkg := filepath.Join(cfg.Dir, "sandbox", "cra-default-ts", "package.json")
	data, err := os.ReadFile(pkg)
	if err != nil {
		t.Fatalf("create did not run: %v", err)
	}
	if strings.TrimSpace(string(data)) != "react" {
		t.Errorf("package.json = %q", data)
	}

	report := filepath.Join(cfg.Dir, "test-results", "smoke-test.xml")
	if _, err := os.Stat(report); err != nil {
		t.Errorf("report not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Dir, "test-results", "create.xml")); !os.IsNotExist(err) {
		t.Error("prerequisites should not be reported")
	}
}

func TestExecuteRun_SkipsReadyTask(t *testing.T) {
	cfg := testConfig(t)
	if _, err := runWith(t, cfg, "create", flagsFromCLI(false, true, false)); err != nil {
		t.Fatal(err)
	}

	out, err := runWith(t, cfg, "create", flagsFromCLI(false, true, false))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, ">>>") {
		t.Errorf("ready task should not run again:\n%s", out)
	}
	if !strings.Contains(out, "is up to date") {
		t.Errorf("output = %q", out)
	}
}

func TestExecuteRun_ReadinessErrors(t *testing.T) {
	tests := []struct {
		name  string
		task  string
		flags orchestrator.Flags
	}{
		{"force on task that never ran", "create", flagsFromCLI(true, true, false)},
		{"no cascade with missing prerequisite", "smoke-test", flagsFromCLI(false, false, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			out, err := runWith(t, cfg, tt.task, tt.flags)
			if !errors.Is(err, orchestrator.ErrNotReady) {
				t.Fatalf("err = %v, want ErrNotReady", err)
			}
			if strings.Contains(out, ">>>") {
				t.Errorf("nothing should run:\n%s", out)
			}
		})
	}
}

func TestExecuteRun_Failure(t *testing.T) {
	cfg := testConfig(t)
	out, err := runWith(t, cfg, "broken", flagsFromCLI(false, true, true))

	var runErr *orchestrator.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("err = %v, want RunError", err)
	}
	if runErr.Task != "broken" {
		t.Errorf("Task = %q", runErr.Task)
	}
	if !strings.Contains(out, "FAILED") {
		t.Errorf("output missing FAILED:\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Dir, "test-results", "broken.xml"))
	if err != nil {
		t.Fatalf("failure report not written: %v", err)
	}
	if !strings.Contains(string(data), "<failure") {
		t.Errorf("report has no failure element:\n%s", data)
	}
}

func TestExecuteRun_UnknownNames(t *testing.T) {
	cfg := testConfig(t)

	if _, err := runWith(t, cfg, "deploy", flagsFromCLI(false, true, false)); !errors.Is(err, orchestrator.ErrUnknownTask) {
		t.Errorf("err = %v, want ErrUnknownTask", err)
	}

	var out bytes.Buffer
	err := executeRun(context.Background(), executeRunParams{
		cfg: cfg, task: "create", template: "vite/vue",
		flags: flagsFromCLI(false, true, false), out: &out, errOut: &out, log: logging.Discard(),
	})
	if !errors.Is(err, orchestrator.ErrUnknownTemplate) {
		t.Errorf("err = %v, want ErrUnknownTemplate", err)
	}
}

func TestLiveRenderer(t *testing.T) {
	var out bytes.Buffer
	r := newLiveRenderer(&out)

	r.HandleEvent(orchestrator.Event{Type: orchestrator.EventTaskSkipped, Task: "bootstrap", Template: "t1", Depth: 2})
	r.HandleEvent(orchestrator.Event{Type: orchestrator.EventTaskStart, Task: "create", Template: "t1", Depth: 1})
	r.HandleEvent(orchestrator.Event{Type: orchestrator.EventTaskEnd, Task: "create", Template: "t1", Depth: 1, Duration: 1500 * time.Millisecond})
	r.HandleEvent(orchestrator.Event{Type: orchestrator.EventTaskEnd, Task: "smoke-test", Template: "t1", Error: "exit 1"})
	r.HandleEvent(orchestrator.Event{Type: orchestrator.EventReportWritten, Task: "smoke-test", Template: "t1", Path: "/r/smoke-test.xml"})

	got := out.String()
	for _, want := range []string{
		"    = bootstrap (t1) already done",
		"  >>> create (t1)",
		"  DONE (1.5s)",
		"FAILED: exit 1",
		"report: /r/smoke-test.xml",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if r.ran != 2 {
		t.Errorf("ran = %d, want 2", r.ran)
	}
}
