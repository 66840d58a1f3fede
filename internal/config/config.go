// Package config handles loading and validating stagehand configuration.
// Supports YAML config files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/marcus/stagehand/internal/logging"
	"github.com/marcus/stagehand/internal/reporting"
	"github.com/marcus/stagehand/internal/shell"
	"github.com/marcus/stagehand/internal/tasks"
	"github.com/marcus/stagehand/internal/templates"
)

const (
	// FileName is the project config file looked up in the working directory.
	FileName = "stagehand.yaml"
	// EnvPrefix prefixes environment overrides, e.g. STAGEHAND_LOGGING_LEVEL.
	EnvPrefix = "STAGEHAND"
)

// Defaults
const (
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultRetentionDays = 7
)

// Validation errors.
var (
	ErrInvalidLogLevel  = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat = errors.New("logging.format must be one of: json, text")
	ErrNoTemplates      = errors.New("no templates configured")
	ErrNoTasks          = errors.New("no tasks configured")
	ErrTaskMissingRun   = errors.New("task has no run script")
)

// Config holds all stagehand configuration.
type Config struct {
	Paths     PathsConfig      `mapstructure:"paths"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Templates []TemplateConfig `mapstructure:"templates"`
	Tasks     []TaskConfig     `mapstructure:"tasks"`

	// Dir anchors relative paths that did not come from a file, such as
	// environment overrides: the directory of the last file read, or the
	// project directory.
	Dir string `mapstructure:"-"`
	// Files lists the config files that were read, in merge order.
	Files []string `mapstructure:"-"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	Sandbox string `mapstructure:"sandbox"` // template working dirs; default ./sandbox
	Reports string `mapstructure:"reports"` // junit output; default ./test-results
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Path          string `mapstructure:"path"`
	Format        string `mapstructure:"format"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// TemplateConfig declares one template.
type TemplateConfig struct {
	ID     string            `mapstructure:"id"`
	Name   string            `mapstructure:"name"`
	Params map[string]string `mapstructure:"params"`
}

// TaskConfig declares one script task.
type TaskConfig struct {
	Name   string      `mapstructure:"name"`
	Before []string    `mapstructure:"before"`
	Dir    string      `mapstructure:"dir"`
	Ready  ReadyConfig `mapstructure:"ready"`
	Run    string      `mapstructure:"run"`
}

// ReadyConfig declares how a task detects that it has already run.
type ReadyConfig struct {
	Files  []string `mapstructure:"files"`
	Script string   `mapstructure:"script"`
}

// GlobalConfigPath returns the per-user config path.
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "stagehand", FileName)
}

// Load reads the global config, then the project config in the current directory.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working dir: %w", err)
	}
	return LoadFromPaths(cwd, GlobalConfigPath())
}

// LoadFile reads exactly one config file.
func LoadFile(path string) (*Config, error) {
	abs, err := filepath.Abs(expandPath(path))
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}
	settings, err := readAnchored(abs)
	if err != nil {
		return nil, err
	}
	v := newViper()
	if err := v.MergeConfigMap(settings); err != nil {
		return nil, fmt.Errorf("merge config %s: %w", abs, err)
	}
	return decode(v, filepath.Dir(abs), []string{abs})
}

// LoadFromPaths merges globalPath and projectDir/stagehand.yaml, project last.
// Missing files are skipped. Relative paths.* and tasks[].dir values are
// anchored at the directory of the file that declares them, so a global
// sandbox path keeps pointing next to the global file. Config.Dir, used for
// relative values that come from the environment, is the directory of the
// last file read, or projectDir when none was found.
func LoadFromPaths(projectDir, globalPath string) (*Config, error) {
	v := newViper()
	dir := projectDir
	var files []string

	for _, path := range []string{globalPath, filepath.Join(projectDir, FileName)} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path %s: %w", path, err)
		}
		settings, err := readAnchored(abs)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", abs, err)
		}
		files = append(files, abs)
		dir = filepath.Dir(abs)
	}

	return decode(v, dir, files)
}

// readAnchored reads one config file and rewrites its relative paths.sandbox,
// paths.reports and tasks[].dir against the file's directory.
func readAnchored(path string) (map[string]any, error) {
	fv := viper.New()
	fv.SetConfigType("yaml")
	fv.SetConfigFile(path)
	if err := fv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	settings := fv.AllSettings()

	if paths, ok := settings["paths"].(map[string]any); ok {
		for _, key := range []string{"sandbox", "reports"} {
			if p, ok := paths[key].(string); ok {
				paths[key] = anchor(dir, p)
			}
		}
	}
	if list, ok := settings["tasks"].([]any); ok {
		for _, item := range list {
			if task, ok := item.(map[string]any); ok {
				if p, ok := task["dir"].(string); ok {
					task["dir"] = anchor(dir, p)
				}
			}
		}
	}
	return settings, nil
}

func anchor(dir, path string) string {
	path = expandPath(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.sandbox", "")
	v.SetDefault("paths.reports", "")
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", logging.DefaultLogDir())
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.retention_days", DefaultRetentionDays)
}

func decode(v *viper.Viper, dir string, files []string) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Dir = dir
	cfg.Files = files
	return cfg, nil
}

// Validate checks cfg for invalid values.
func Validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return ErrInvalidLogFormat
	}

	if len(cfg.Templates) == 0 {
		return ErrNoTemplates
	}
	if len(cfg.Tasks) == 0 {
		return ErrNoTasks
	}
	for i, t := range cfg.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		if strings.TrimSpace(t.Run) == "" {
			return fmt.Errorf("%w: %s", ErrTaskMissingRun, t.Name)
		}
	}
	return nil
}

// SandboxDir returns the resolved root for template working directories.
func (c *Config) SandboxDir() string {
	if c.Paths.Sandbox == "" {
		return templates.DefaultSandboxDir()
	}
	return c.resolve(c.Paths.Sandbox)
}

// ReportsDir returns the resolved junit output directory.
func (c *Config) ReportsDir() string {
	if c.Paths.Reports == "" {
		return reporting.DefaultReportsDir()
	}
	return c.resolve(c.Paths.Reports)
}

// LoggingConfig converts the logging section for logging.Init.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:         c.Logging.Level,
		Path:          expandPath(c.Logging.Path),
		Format:        c.Logging.Format,
		RetentionDays: c.Logging.RetentionDays,
	}
}

// resolve expands ~ and anchors relative paths at the config directory.
func (c *Config) resolve(path string) string {
	path = expandPath(path)
	if path == "" || filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// BuildCatalog creates the template catalog rooted at SandboxDir.
func BuildCatalog(cfg *Config) (*templates.Catalog, error) {
	list := make([]templates.Template, 0, len(cfg.Templates))
	for _, t := range cfg.Templates {
		list = append(list, templates.Template{ID: t.ID, Name: t.Name, Params: t.Params})
	}
	return templates.NewCatalog(cfg.SandboxDir(), list)
}

// BuildRegistry creates script tasks for every configured task and validates
// the prerequisite graph.
func BuildRegistry(cfg *Config, opts ...shell.Option) (*tasks.Registry, error) {
	list := make([]tasks.Task, 0, len(cfg.Tasks))
	for _, t := range cfg.Tasks {
		dir := ""
		if t.Dir != "" {
			dir = cfg.resolve(t.Dir)
		}
		task, err := shell.New(shell.Spec{
			Name:        t.Name,
			Before:      t.Before,
			Dir:         dir,
			ReadyFiles:  t.Ready.Files,
			ReadyScript: t.Ready.Script,
			Run:         t.Run,
		}, opts...)
		if err != nil {
			return nil, err
		}
		list = append(list, task)
	}

	registry, err := tasks.NewRegistry(list...)
	if err != nil {
		return nil, err
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}

func expandPath(path string) string {
	return logging.ExpandPath(path)
}
