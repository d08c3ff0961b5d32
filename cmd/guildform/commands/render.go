package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/policy"
)

var styles = struct {
	create  lipgloss.Style
	update  lipgloss.Style
	remove  lipgloss.Style
	detail  lipgloss.Style
	heading lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
	warning lipgloss.Style
}{
	create:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	update:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	remove:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	heading: lipgloss.NewStyle().Bold(true),
	ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
}

// renderDiff colors the plain FormatDiff output line by line.
func renderDiff(diff *engine.ServerDiff) string {
	lines := strings.Split(strings.TrimRight(engine.FormatDiff(diff), "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		switch {
		case strings.HasPrefix(trimmed, engine.OperationCreate.Symbol()+" "):
			lines[i] = styles.create.Render(line)
		case strings.HasPrefix(trimmed, engine.OperationUpdate.Symbol()+" "):
			lines[i] = styles.update.Render(line)
		case strings.HasPrefix(trimmed, engine.OperationDelete.Symbol()+" "):
			lines[i] = styles.remove.Render(line)
		case strings.HasPrefix(line, "      "):
			lines[i] = styles.detail.Render(line)
		case strings.HasPrefix(line, "Plan:"), strings.HasPrefix(line, "Changes for guild"):
			lines[i] = styles.heading.Render(line)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

// renderProgress prints one line per executed operation.
func renderProgress(out io.Writer, r engine.ApplyResult) {
	mark := styles.ok.Render("✓")
	if !r.Success {
		mark = styles.failed.Render("✗")
	}
	symbol := r.Operation.Symbol()
	if r.Operation.IsDestructive() {
		symbol = styles.remove.Render(symbol)
	}
	line := fmt.Sprintf("%s %s %s %s", mark, symbol, r.ResourceType, r.ResourceName)
	if r.Error != "" {
		line += styles.failed.Render(": " + r.Error)
	}
	if r.Attempts > 1 {
		line += styles.detail.Render(fmt.Sprintf(" (%d attempts)", r.Attempts))
	}
	fmt.Fprintln(out, line)
}

func renderApplySummary(out io.Writer, result *engine.ApplyBatchResult) {
	s := result.Summary
	line := fmt.Sprintf("Apply %s: %d succeeded, %d failed, %d total in %s.",
		result.RunID, s.Succeeded, s.Failed, s.Total, result.TotalDuration.Round(time.Millisecond))
	switch {
	case result.DryRun:
		line = "Dry run: " + line
		fmt.Fprintln(out, styles.heading.Render(line))
	case result.Success && !result.Truncated:
		fmt.Fprintln(out, styles.ok.Render(line))
	default:
		fmt.Fprintln(out, styles.failed.Render(line))
	}
	if result.Truncated {
		fmt.Fprintln(out, styles.failed.Render("Apply stopped early; remaining operations were not run."))
	}
}

// renderPolicyResult prints violations grouped by severity order.
func renderPolicyResult(out io.Writer, result *policy.PolicyResult) {
	if result == nil {
		return
	}
	for _, v := range result.Violations {
		style := styles.warning
		if v.Severity.Blocking() {
			style = styles.failed
		}
		fmt.Fprintf(out, "%s %s: %s\n", style.Render(fmt.Sprintf("[%s]", v.Severity)), v.Policy, v.Message)
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(out, styles.warning.Render("policy warning: ")+w)
	}
}
