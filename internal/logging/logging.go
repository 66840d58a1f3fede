// Package logging provides structured logging with date-stamped log files for stagehand.
// Supports JSON and text formats; without a log directory it writes to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	filePrefix = "stagehand-"
	fileSuffix = ".log"
	dateLayout = "2006-01-02"
)

// Logger wraps zerolog with stagehand-specific functionality.
type Logger struct {
	zl        zerolog.Logger
	component string
	logDir    string
	file      *os.File
	mu        sync.Mutex
}

// Config holds logging configuration.
type Config struct {
	Level         string    // debug, info, warn, error
	Path          string    // Log directory path; empty logs to Console or stderr
	Format        string    // json, text
	RetentionDays int       // Days to keep logs (default 7)
	Console       io.Writer // Optional extra sink, e.g. stderr in CI
}

// DefaultLogDir returns the default log directory.
func DefaultLogDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "stagehand", "logs")
}

// DefaultConfig returns default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		Path:          DefaultLogDir(),
		Format:        "json",
		RetentionDays: 7,
	}
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// Init initializes the global logger with the given configuration.
func Init(cfg Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	logger, err := New(cfg)
	if err != nil {
		return err
	}

	if globalLogger != nil && globalLogger.file != nil {
		_ = globalLogger.file.Close()
	}

	globalLogger = logger
	return nil
}

// New creates a new Logger instance.
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 7
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	if cfg.Path != "" {
		cfg.Path = ExpandPath(cfg.Path)
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
	}

	logger := &Logger{
		logDir: cfg.Path,
	}

	var writers []io.Writer
	if cfg.Path != "" {
		f, err := os.OpenFile(logger.currentLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logger.file = f
		writers = append(writers, f)

		go logger.cleanOldLogs(cfg.RetentionDays)
	}
	if cfg.Console != nil {
		writers = append(writers, cfg.Console)
	}

	var output io.Writer
	switch len(writers) {
	case 0:
		output = os.Stderr
	case 1:
		output = writers[0]
	default:
		output = io.MultiWriter(writers...)
	}

	if cfg.Format == "text" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}

	logger.zl = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) currentLogPath() string {
	return filepath.Join(l.logDir, filePrefix+time.Now().Format(dateLayout)+fileSuffix)
}

// cleanOldLogs removes log files older than retention days.
func (l *Logger) cleanOldLogs(retentionDays int) {
	files, err := Files(l.logDir)
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, path := range files {
		logDate, ok := fileDate(filepath.Base(path))
		if ok && logDate.Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}

// WithComponent returns a new Logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		component: component,
		logDir:    l.logDir,
		file:      l.file,
	}
}

// WithFields returns a new Logger carrying the given fields on every line.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		zl:        ctx.Logger(),
		component: l.component,
		logDir:    l.logDir,
		file:      l.file,
	}
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.zl.Warn().Msg(msg)
}

// DebugCtx logs a debug message with context fields.
func (l *Logger) DebugCtx(msg string, fields map[string]any) {
	event := l.zl.Debug()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// InfoCtx logs an info message with context fields.
func (l *Logger) InfoCtx(msg string, fields map[string]any) {
	event := l.zl.Info()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// WarnCtx logs a warning message with context fields.
func (l *Logger) WarnCtx(msg string, fields map[string]any) {
	event := l.zl.Warn()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Err logs an error with the error field.
func (l *Logger) Err(err error) *zerolog.Event {
	return l.zl.Error().Err(err)
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Files lists stagehand log files in dir sorted by date, newest first.
func Files(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := fileDate(entry.Name()); ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i] > files[j]
	})
	return files, nil
}

// CurrentFile returns today's log file path in dir.
func CurrentFile(dir string) string {
	return filepath.Join(dir, filePrefix+time.Now().Format(dateLayout)+fileSuffix)
}

// fileDate parses the date out of stagehand-YYYY-MM-DD.log.
func fileDate(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	dateStr := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	d, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Get returns the global logger.
func Get() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return &Logger{
			zl: zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger(),
		}
	}
	return globalLogger
}

// Close closes the global logger's file, if any.
func Close() error {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return nil
	}
	return globalLogger.Close()
}

// Component returns a logger with the specified component.
func Component(name string) *Logger {
	return Get().WithComponent(name)
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
