//go:build linux

package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/loopbridge/internal/util"
)

const summaryLabelWidth = 14

// printSummary renders a run result. Colors are used only when w is a
// terminal that supports them.
func printSummary(w io.Writer, r *runResult) {
	re := lipgloss.NewRenderer(w)
	title := re.NewStyle().Bold(true)
	label := re.NewStyle().Faint(true)
	good := re.NewStyle().Foreground(lipgloss.Color("10"))
	bad := re.NewStyle().Foreground(lipgloss.Color("9"))

	width := min(terminalWidth(w, 60), 80)

	row := func(name, value string) {
		line := label.Render(util.PadRight(name, summaryLabelWidth)) + value
		fmt.Fprintln(w, util.Fit(line, width))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, title.Render("BRIDGE SUMMARY"))
	fmt.Fprintln(w, strings.Repeat("─", width))
	row("Bridge", util.ShortID(r.BridgeID))
	row("Application", r.App)
	row("Ended", r.Reason)
	row("Duration", r.Duration.Round(time.Millisecond).String())
	row("Workers", fmt.Sprintf("%d", r.Workers))
	row("Submitted", fmt.Sprintf("%d deferred calls", r.Submitted))

	completed := fmt.Sprintf("%d deferred calls", r.Completed)
	if r.Completed == r.Submitted {
		completed = good.Render(completed)
	}
	row("Completed", completed)
	row("Runner", fmt.Sprintf("%d invocations, %d functions", r.Stats.RunnerInvocations, r.Stats.Executed))
	row("Coalesced", fmt.Sprintf("%d requests", r.Stats.Coalesced))

	failures := fmt.Sprintf("%d", r.Stats.SendFailures)
	if r.Stats.SendFailures > 0 {
		failures = bad.Render(failures)
	}
	row("Send failures", failures)

	types := make([]string, 0, len(r.Events))
	for t := range r.Events {
		types = append(types, t)
	}
	sort.Strings(types)
	fmt.Fprintln(w)
	fmt.Fprintln(w, title.Render("EVENTS"))
	fmt.Fprintln(w, strings.Repeat("─", width))
	for _, t := range types {
		row(t, fmt.Sprintf("%d", r.Events[t]))
	}
}
