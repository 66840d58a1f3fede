package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marcus/stagehand/internal/config"
	"github.com/marcus/stagehand/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View logs",
	Long: `View stagehand logs.

Displays recent log entries. Use --follow to stream logs in real-time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")
		export, _ := cmd.Flags().GetString("export")

		logDir := logDirFor(cmd)
		out := cmd.OutOrStdout()

		if export != "" {
			return exportLogs(out, logDir, export)
		}

		if follow {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return followLogs(ctx, out, logDir, tail)
		}

		return showLogs(out, logDir, tail)
	},
}

func init() {
	logsCmd.Flags().IntP("tail", "n", 50, "Number of log lines to show")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().StringP("export", "e", "", "Export logs to file")
	rootCmd.AddCommand(logsCmd)
}

// logDirFor returns the configured log directory. A broken or missing
// config falls back to the default so logs stay readable.
func logDirFor(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil || cfg.Logging.Path == "" {
		return logging.DefaultLogDir()
	}
	return cfg.LoggingConfig().Path
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Level     string    `json:"level"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Task      string    `json:"task,omitempty"`
	Template  string    `json:"template,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func logFiles(logDir string) ([]string, error) {
	files, err := logging.Files(logDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading log dir: %w", err)
	}
	return files, nil
}

func showLogs(out io.Writer, logDir string, n int) error {
	files, err := logFiles(logDir)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		fmt.Fprintln(out, "No log files found.")
		return nil
	}

	for _, line := range readLastLines(files, n) {
		printLogLine(out, line)
	}
	return nil
}

func followLogs(ctx context.Context, out io.Writer, logDir string, initialLines int) error {
	files, err := logFiles(logDir)
	if err != nil {
		return err
	}

	if len(files) > 0 && initialLines > 0 {
		for _, line := range readLastLines(files, initialLines) {
			printLogLine(out, line)
		}
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(logDir); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	t := &tailer{}
	defer t.close()
	t.open(logging.CurrentFile(logDir), true)

	fmt.Fprintln(out, "--- Following logs (Ctrl+C to exit) ---")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Date rollover starts a new file.
			if current := logging.CurrentFile(logDir); current != t.path || t.reader == nil {
				t.open(current, false)
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				for _, line := range t.readLines() {
					printLogLine(out, line)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}

// tailer reads lines appended to one log file.
type tailer struct {
	path   string
	file   *os.File
	reader *bufio.Reader
}

func (t *tailer) open(path string, seekEnd bool) {
	t.close()
	t.path = path
	f, err := os.Open(path)
	if err != nil {
		return
	}
	if seekEnd {
		_, _ = f.Seek(0, io.SeekEnd)
	}
	t.file = f
	t.reader = bufio.NewReader(f)
}

func (t *tailer) readLines() []string {
	if t.reader == nil {
		return nil
	}
	var lines []string
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return lines
		}
		lines = append(lines, strings.TrimSuffix(line, "\n"))
	}
}

func (t *tailer) close() {
	if t.file != nil {
		_ = t.file.Close()
	}
	t.file = nil
	t.reader = nil
}

func exportLogs(out io.Writer, logDir, outFile string) error {
	files, err := logFiles(logDir)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no log files found")
	}

	dst, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer dst.Close()

	w := bufio.NewWriter(dst)
	totalLines := 0

	// Oldest first
	for i := len(files) - 1; i >= 0; i-- {
		for _, line := range readFileLines(files[i]) {
			_, _ = w.WriteString(line + "\n")
			totalLines++
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", outFile, err)
	}

	fmt.Fprintf(out, "Exported %d log lines to %s\n", totalLines, outFile)
	return nil
}

// readLastLines returns the last n lines across files, which are newest first.
func readLastLines(files []string, n int) []string {
	var lines []string

	for _, file := range files {
		if len(lines) >= n {
			break
		}

		fileLines := readFileLines(file)
		remaining := n - len(lines)

		if len(fileLines) <= remaining {
			lines = append(fileLines, lines...)
		} else {
			lines = append(fileLines[len(fileLines)-remaining:], lines...)
		}
	}

	return lines
}

func readFileLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines
}

func printLogLine(out io.Writer, line string) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Message == "" {
		fmt.Fprintln(out, line)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", entry.Time.Format("15:04:05"), formatLogLevel(entry.Level))
	if entry.Component != "" {
		fmt.Fprintf(&b, " [%s]", entry.Component)
	}
	b.WriteString(" " + entry.Message)
	if entry.Task != "" {
		fmt.Fprintf(&b, " task=%s", entry.Task)
	}
	if entry.Template != "" {
		fmt.Fprintf(&b, " template=%s", entry.Template)
	}
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%s", entry.Error)
	}
	fmt.Fprintln(out, b.String())
}

func formatLogLevel(level string) string {
	switch level {
	case "debug":
		return "DBG"
	case "info":
		return "INF"
	case "warn":
		return "WRN"
	case "error":
		return "ERR"
	case "":
		return "???"
	default:
		if len(level) < 3 {
			return strings.ToUpper(level)
		}
		return strings.ToUpper(level[:3])
	}
}
