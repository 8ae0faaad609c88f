// Package render provides output formatting for the terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/joss/sysup/internal/audit"
	"github.com/joss/sysup/internal/orchestrator"
	"github.com/joss/sysup/internal/textutil"
)

var summaryBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#444444")).
	Padding(0, 1)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Batch formats the results of an update batch.
func (r *Renderer) Batch(batch orchestrator.BatchResult) string {
	var sb strings.Builder

	for _, res := range batch.Results {
		r.formatResult(&sb, res)
	}

	summary := fmt.Sprintf("%d succeeded, %d skipped, %d total",
		batch.Succeeded(), batch.SkippedCount(), len(batch.Results))
	if batch.Halted {
		summary += ", batch halted"
	}

	if r.pretty {
		sb.WriteString(summaryBoxStyle.Render(summary))
		sb.WriteString("\n")
	} else {
		sb.WriteString(summary + "\n")
	}

	return sb.String()
}

func (r *Renderer) formatResult(sb *strings.Builder, res orchestrator.Result) {
	status := statusMark(res.Outcome, r.pretty)
	durStr := FormatDuration(res.Duration)

	if r.pretty {
		fmt.Fprintf(sb, "%s %s (%d attempt(s), %s)\n", status, res.Operation, res.Attempts, durStr)
	} else {
		fmt.Fprintf(sb, "[%s] %s attempts=%d duration=%s\n", res.Outcome, res.Operation, res.Attempts, durStr)
	}

	if res.FinalKind != "" && res.FinalKind != "unknown" {
		fmt.Fprintf(sb, "    fault: %s\n", res.FinalKind)
	}
	for _, rem := range res.Remediations {
		fmt.Fprintf(sb, "    tried: %s\n", rem)
	}
}

func statusMark(outcome orchestrator.Outcome, pretty bool) string {
	if !pretty {
		return string(outcome)
	}
	switch outcome {
	case orchestrator.Success:
		return color.GreenString("✓")
	case orchestrator.Skipped:
		return color.YellowString("→")
	default:
		return color.RedString("✗")
	}
}

// Events formats audit history lines.
func (r *Renderer) Events(events []audit.Event) string {
	if len(events) == 0 {
		return "No events found"
	}

	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Audit History\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, e := range events {
		r.formatEvent(&sb, e)
	}

	return sb.String()
}

func (r *Renderer) formatEvent(sb *strings.Builder, e audit.Event) {
	timeStr := e.Timestamp.Local().Format("2006-01-02 15:04:05")
	msg := textutil.Truncate(e.Message, 100)

	if r.pretty {
		fmt.Fprintf(sb, "%s %s %s#%d %s\n",
			levelColor(e.Level), color.HiBlackString(timeStr), e.Operation, e.Sequence, msg)
	} else {
		fmt.Fprintf(sb, "[%s] %s %s#%d %s\n", e.Level, timeStr, e.Operation, e.Sequence, msg)
	}
	if e.FaultKind != "" {
		fmt.Fprintf(sb, "    fault: %s\n", e.FaultKind)
	}
}

func levelColor(level audit.Level) string {
	switch level {
	case audit.LevelWarn:
		return color.YellowString("%-5s", string(level))
	case audit.LevelError:
		return color.RedString("%-5s", string(level))
	case audit.LevelAudit:
		return color.CyanString("%-5s", string(level))
	default:
		return fmt.Sprintf("%-5s", string(level))
	}
}

// Stats formats audit statistics.
func (r *Renderer) Stats(stats *audit.Stats) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Audit Statistics\n"))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
	}

	fmt.Fprintf(&sb, "  Total events: %d\n", stats.Total)
	for level, count := range stats.Levels {
		fmt.Fprintf(&sb, "  %-6s %d\n", string(level)+":", count)
	}
	if len(stats.Faults) > 0 {
		sb.WriteString("\n  Faults:\n")
		for kind, count := range stats.Faults {
			fmt.Fprintf(&sb, "    %-20s %d\n", string(kind)+":", count)
		}
	}
	if !stats.Oldest.IsZero() {
		fmt.Fprintf(&sb, "\n  Range: %s → %s\n",
			stats.Oldest.Local().Format("2006-01-02"), stats.Newest.Local().Format("2006-01-02"))
	}

	return sb.String()
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
