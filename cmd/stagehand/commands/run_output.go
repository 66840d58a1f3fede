package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/marcus/stagehand/internal/orchestrator"
)

// isInteractive reports whether stdout is a terminal. Override in tests.
var isInteractive = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// runStyles holds lipgloss styles for colored run output.
type runStyles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Accent  lipgloss.Style
}

func newRunStyles() runStyles {
	return runStyles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
	}
}

// liveRenderer prints orchestrator events as status lines. Events arrive
// synchronously from the executing goroutine.
type liveRenderer struct {
	out    io.Writer
	styles runStyles
	ran    int
}

func newLiveRenderer(out io.Writer) *liveRenderer {
	return &liveRenderer{out: out, styles: newRunStyles()}
}

// HandleEvent renders one event.
func (r *liveRenderer) HandleEvent(e orchestrator.Event) {
	indent := strings.Repeat("  ", e.Depth)
	label := fmt.Sprintf("%s (%s)", e.Task, e.Template)

	switch e.Type {
	case orchestrator.EventTaskSkipped:
		fmt.Fprintf(r.out, "%s%s %s\n", indent, r.styles.Muted.Render("="), r.styles.Muted.Render(label+" already done"))

	case orchestrator.EventTaskStart:
		fmt.Fprintf(r.out, "%s%s %s\n", indent, r.styles.Accent.Render(">>>"), r.styles.Title.Render(label))

	case orchestrator.EventTaskEnd:
		r.ran++
		elapsed := r.styles.Muted.Render(fmt.Sprintf("(%s)", e.Duration.Round(time.Millisecond)))
		if e.Error != "" {
			fmt.Fprintf(r.out, "%s%s %s\n", indent, r.styles.Error.Render("FAILED: "+e.Error), elapsed)
			return
		}
		fmt.Fprintf(r.out, "%s%s %s\n", indent, r.styles.Success.Render("DONE"), elapsed)

	case orchestrator.EventReportWritten:
		fmt.Fprintf(r.out, "%s%s %s\n", indent, r.styles.Label.Render("report:"), e.Path)
	}
}

// done prints the closing line for a successful run.
func (r *liveRenderer) done(task, template string) {
	if r.ran == 0 {
		fmt.Fprintf(r.out, "%s %s (%s) is up to date\n", r.styles.Success.Render("OK"), task, template)
		return
	}
	fmt.Fprintf(r.out, "%s %s (%s), %d task(s) run\n", r.styles.Success.Render("OK"), task, template, r.ran)
}
