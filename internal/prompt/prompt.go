// Package prompt presents bounded operator decisions when automated
// remediation is unavailable or exhausted.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/joss/sysup/internal/fault"
	"github.com/joss/sysup/internal/textutil"
)

// Decision is the closed set of operator responses.
type Decision string

const (
	RetryAutomatic Decision = "retry-automatic"
	RetryManual    Decision = "retry-manual"
	Skip           Decision = "skip"
	Abort          Decision = "abort"
)

// EscalationContext carries everything the operator needs to decide.
type EscalationContext struct {
	Operation     string
	Component     string
	Kind          fault.Kind
	Output        string
	RemedySummary string
	Sequence      int
	MaxAttempts   int
}

// RetryBudgetLeft reports whether an operator-sanctioned retry is
// still permitted (one extra attempt beyond the automatic budget).
func (c EscalationContext) RetryBudgetLeft() bool {
	return c.Sequence < c.MaxAttempts+1
}

// Prompter produces one decision per escalation.
type Prompter interface {
	Decide(ctx EscalationContext) Decision
}

// Auto resolves every escalation to a fixed default without blocking.
// Used in non-interactive mode.
type Auto struct {
	Default Decision
}

// Decide returns the configured default.
func (a Auto) Decide(EscalationContext) Decision {
	return a.Default
}

// outputLines bounds how much captured output is shown before asking.
const outputLines = 15

// TTY prompts the operator on the terminal. Input outside the valid
// set re-prompts rather than defaulting.
type TTY struct {
	In  io.Reader
	Out io.Writer
}

// NewTTY creates a terminal prompter on stdin/stderr.
func NewTTY() *TTY {
	return &TTY{In: os.Stdin, Out: os.Stderr}
}

// Interactive reports whether stdin is a terminal.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Decide renders the failure and the four-choice menu, blocking until
// the operator answers with a valid choice.
func (t *TTY) Decide(ctx EscalationContext) Decision {
	t.render(ctx)

	reader := bufio.NewReader(t.In)
	for {
		fmt.Fprintf(t.Out, "%s ", color.CyanString("[a]uto-fix retry, [m]anual shell retry, [s]kip, [q]uit batch?"))
		line, err := reader.ReadString('\n')
		if err != nil {
			// Input gone (EOF): treat as abort rather than spinning.
			fmt.Fprintln(t.Out, color.RedString("input closed, aborting"))
			return Abort
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "a", "auto":
			if !ctx.RetryBudgetLeft() {
				fmt.Fprintln(t.Out, color.YellowString("retry budget exhausted, choose skip or quit"))
				continue
			}
			return RetryAutomatic
		case "m", "manual":
			if !ctx.RetryBudgetLeft() {
				fmt.Fprintln(t.Out, color.YellowString("retry budget exhausted, choose skip or quit"))
				continue
			}
			return RetryManual
		case "s", "skip":
			return Skip
		case "q", "quit", "abort":
			return Abort
		default:
			fmt.Fprintln(t.Out, color.YellowString("invalid choice"))
		}
	}
}

func (t *TTY) render(ctx EscalationContext) {
	fmt.Fprintln(t.Out)
	fmt.Fprintf(t.Out, "%s %s (attempt %d/%d, fault: %s)\n",
		color.RedString("✗"), ctx.Operation, ctx.Sequence, ctx.MaxAttempts, ctx.Kind)

	if out := strings.TrimSpace(ctx.Output); out != "" {
		fmt.Fprintln(t.Out, color.HiBlackString(strings.Repeat("─", 60)))
		for _, line := range strings.Split(textutil.TailLines(out, outputLines), "\n") {
			fmt.Fprintf(t.Out, "  %s\n", line)
		}
		fmt.Fprintln(t.Out, color.HiBlackString(strings.Repeat("─", 60)))
	}

	if ctx.RemedySummary != "" {
		fmt.Fprintf(t.Out, "%s %s\n", color.YellowString("remediation attempted:"), ctx.RemedySummary)
	}
	if !ctx.RetryBudgetLeft() {
		fmt.Fprintln(t.Out, color.YellowString("no retry budget remaining"))
	}
}
