// Package commands implements the stagehand CLI commands using cobra.
package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/marcus/stagehand/internal/config"
	"github.com/marcus/stagehand/internal/logging"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Run dependent setup and test tasks against project templates",
	Long: `Stagehand executes named tasks against named templates. Each task declares
its prerequisites and how to tell whether it has already run. Running a task
first brings its prerequisites up to date, then runs the task and optionally
records the outcome as a JUnit report.

Configure templates and tasks in stagehand.yaml.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		noColor, _ := cmd.Flags().GetBool("no-color")
		if noColor || os.Getenv("NO_COLOR") != "" || !isInteractive() {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./stagehand.yaml merged over ~/.config/stagehand/stagehand.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}

// loadConfig reads the --config file if given, otherwise the merged defaults,
// and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
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
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// initLogging initializes the logging subsystem. --verbose mirrors debug
// output to stderr.
func initLogging(cmd *cobra.Command, cfg *config.Config) error {
	lc := cfg.LoggingConfig()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		lc.Level = "debug"
		lc.Console = cmd.ErrOrStderr()
	}
	return logging.Init(lc)
}
