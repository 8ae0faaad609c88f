package prompt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/joss/sysup/internal/fault"
)

func ttyWith(input string) (*TTY, *bytes.Buffer) {
	var out bytes.Buffer
	return &TTY{In: strings.NewReader(input), Out: &out}, &out
}

func escalation() EscalationContext {
	return EscalationContext{
		Operation:   "update-pacman",
		Component:   "pacman",
		Kind:        fault.SyncFailure,
		Output:      "error: failed to synchronize all databases",
		Sequence:    2,
		MaxAttempts: 3,
	}
}

func TestTTYDecide(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Decision
	}{
		{"auto short", "a\n", RetryAutomatic},
		{"auto long", "auto\n", RetryAutomatic},
		{"manual", "m\n", RetryManual},
		{"skip", "s\n", Skip},
		{"quit", "q\n", Abort},
		{"abort word", "abort\n", Abort},
		{"case insensitive", "A\n", RetryAutomatic},
		{"whitespace trimmed", "  s  \n", Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tty, _ := ttyWith(tt.input)
			if got := tty.Decide(escalation()); got != tt.want {
				t.Errorf("Decide() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTTYDecideReprompts(t *testing.T) {
	tty, out := ttyWith("x\nbanana\nm\n")

	if got := tty.Decide(escalation()); got != RetryManual {
		t.Errorf("Decide() = %s, want %s", got, RetryManual)
	}
	if n := strings.Count(out.String(), "invalid choice"); n != 2 {
		t.Errorf("re-prompt count = %d, want 2", n)
	}
}

func TestTTYDecideBudgetExhausted(t *testing.T) {
	// Retry choices re-prompt once the budget is gone; only skip and
	// quit terminate.
	ctx := escalation()
	ctx.Sequence = 4 // past MaxAttempts+1

	tty, out := ttyWith("a\nm\ns\n")
	if got := tty.Decide(ctx); got != Skip {
		t.Errorf("Decide() = %s, want %s", got, Skip)
	}
	if n := strings.Count(out.String(), "retry budget exhausted"); n != 2 {
		t.Errorf("budget warnings = %d, want 2", n)
	}
}

func TestTTYDecideEOFAborts(t *testing.T) {
	tty, _ := ttyWith("")
	if got := tty.Decide(escalation()); got != Abort {
		t.Errorf("Decide() on closed input = %s, want %s", got, Abort)
	}
}

func TestTTYRenderShowsContext(t *testing.T) {
	ctx := escalation()
	ctx.RemedySummary = "refresh package databases"

	tty, out := ttyWith("s\n")
	tty.Decide(ctx)

	for _, want := range []string{
		"update-pacman",
		"attempt 2/3",
		string(fault.SyncFailure),
		"failed to synchronize",
		"refresh package databases",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("rendered prompt missing %q", want)
		}
	}
}

func TestAutoDecide(t *testing.T) {
	if got := (Auto{Default: Skip}).Decide(escalation()); got != Skip {
		t.Errorf("Decide() = %s, want %s", got, Skip)
	}
	if got := (Auto{Default: Abort}).Decide(escalation()); got != Abort {
		t.Errorf("Decide() = %s, want %s", got, Abort)
	}
}

func TestRetryBudgetLeft(t *testing.T) {
	tests := []struct {
		sequence, max int
		want          bool
	}{
		{1, 3, true},
		{3, 3, true},  // the one sanctioned extra attempt
		{4, 3, false}, // extra attempt spent
		{1, 1, true},
		{2, 1, false},
	}
	for _, tt := range tests {
		ctx := EscalationContext{Sequence: tt.sequence, MaxAttempts: tt.max}
		if got := ctx.RetryBudgetLeft(); got != tt.want {
			t.Errorf("RetryBudgetLeft(seq=%d, max=%d) = %v, want %v",
				tt.sequence, tt.max, got, tt.want)
		}
	}
}
