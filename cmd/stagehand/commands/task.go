package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/stagehand/internal/config"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect configured tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured tasks",
	Long: `List every configured task with its prerequisites and readiness checks.

Use --json to output as JSON for scripting.`,
	Args: cobra.NoArgs,
	RunE: runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task>",
	Short: "Show a task and the order a cascade would run it in",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

func init() {
	taskListCmd.Flags().Bool("json", false, "Output as JSON")
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := config.BuildRegistry(cfg); err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg.Tasks)
	}
	return printTaskList(cmd.OutOrStdout(), cfg.Tasks)
}

func printTaskList(out io.Writer, list []config.TaskConfig) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tBEFORE\tREADY")
	for _, t := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, orDash(strings.Join(t.Before, ",")), readySummary(t.Ready))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d task(s)\n", len(list))
	return err
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	registry, err := config.BuildRegistry(cfg)
	if err != nil {
		return err
	}

	name := args[0]
	plan, err := registry.Plan(name)
	if err != nil {
		return err
	}

	var tc config.TaskConfig
	for _, t := range cfg.Tasks {
		if t.Name == name {
			tc = t
			break
		}
	}
	return printTaskShow(cmd.OutOrStdout(), tc, plan)
}

func printTaskShow(out io.Writer, t config.TaskConfig, plan []string) error {
	styles := newRunStyles()
	fmt.Fprintln(out, styles.Title.Render(t.Name))
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("before:"), orDash(strings.Join(t.Before, ", ")))
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("dir:   "), orDefault(t.Dir, "template working dir"))
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("ready: "), readySummary(t.Ready))
	fmt.Fprintln(out, styles.Label.Render("run:"))
	for _, line := range strings.Split(strings.TrimRight(t.Run, "\n"), "\n") {
		fmt.Fprintf(out, "  %s\n", line)
	}
	fmt.Fprintln(out, styles.Label.Render("cascade order:"))
	for i, step := range plan {
		fmt.Fprintf(out, "  %d. %s\n", i+1, step)
	}
	return nil
}

func readySummary(r config.ReadyConfig) string {
	var parts []string
	if len(r.Files) > 0 {
		parts = append(parts, "files "+strings.Join(r.Files, " "))
	}
	if strings.TrimSpace(r.Script) != "" {
		parts = append(parts, "script")
	}
	if len(parts) == 0 {
		return "never"
	}
	return strings.Join(parts, " + ")
}

func orDash(s string) string {
	return orDefault(s, "-")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

