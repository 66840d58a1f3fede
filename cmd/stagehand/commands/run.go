package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcus/stagehand/internal/config"
	"github.com/marcus/stagehand/internal/logging"
	"github.com/marcus/stagehand/internal/orchestrator"
	"github.com/marcus/stagehand/internal/reporting"
	"github.com/marcus/stagehand/internal/shell"
)

var runCmd = &cobra.Command{
	Use:   "run <task> <template>",
	Short: "Run a task against a template",
	Long: `Run a task against a template.

If the task has already run for the template it is skipped. Otherwise its
prerequisites are run first (unless --before=false, in which case they must
already have run) and then the task itself.

Flags:
  --force        Require the task to have already run; never run it.
  --before       Run prerequisites that have not run yet (default true).
  --junit        Write a JUnit report for the task to the reports dir.

Examples:
  stagehand run create cra/default-ts
  stagehand run smoke-test cra/default-ts --junit
  stagehand run smoke-test cra/default-ts --before=false`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("force", false, "Require the task to be ready instead of running it")
	runCmd.Flags().Bool("before", true, "Run prerequisites that are not ready")
	runCmd.Flags().Bool("junit", false, "Write a JUnit report for the task")
	rootCmd.AddCommand(runCmd)
}

// executeRunParams holds everything one run needs.
type executeRunParams struct {
	cfg      *config.Config
	task     string
	template string
	flags    orchestrator.Flags
	out      io.Writer
	errOut   io.Writer
	log      *logging.Logger
}

// flagsFromCLI maps command-line switches onto orchestrator flags.
func flagsFromCLI(force, before, junit bool) orchestrator.Flags {
	return orchestrator.Flags{
		MustNotBeReady: false,
		MustBeReady:    force,
		Cascade:        before,
		Report:         junit,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	before, _ := cmd.Flags().GetBool("before")
	junit, _ := cmd.Flags().GetBool("junit")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cmd, cfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logging.Close() }()
	log := logging.Component("run")
	log.Info("starting stagehand run")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\ninterrupt received, stopping...")
			log.Warn("interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()

	return executeRun(ctx, executeRunParams{
		cfg:      cfg,
		task:     args[0],
		template: args[1],
		flags:    flagsFromCLI(force, before, junit),
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
		log:      log,
	})
}

// executeRun builds the engine from cfg and executes one task.
func executeRun(ctx context.Context, p executeRunParams) error {
	catalog, err := config.BuildCatalog(p.cfg)
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}
	registry, err := config.BuildRegistry(p.cfg, shell.WithOutput(p.out, p.errOut))
	if err != nil {
		return fmt.Errorf("tasks: %w", err)
	}

	renderer := newLiveRenderer(p.out)
	orch := orchestrator.New(registry, catalog,
		orchestrator.WithLogger(logging.Component("orchestrator")),
		orchestrator.WithReporter(reporting.NewJUnitReporter(p.cfg.ReportsDir())),
		orchestrator.WithEventHandler(renderer.HandleEvent),
	)

	p.log.InfoCtx("run requested", map[string]any{
		"task":     p.task,
		"template": p.template,
		"config":   p.cfg.Files,
	})

	if err := orch.Execute(ctx, p.task, p.template, p.flags); err != nil {
		p.log.Err(err).Str("task", p.task).Str("template", p.template).Msg("run failed")
		return err
	}
	renderer.done(p.task, p.template)
	return nil
}
