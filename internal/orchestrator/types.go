// Package orchestrator drives operations through the attempt →
// classify → remediate/prompt → retry loop.
package orchestrator

import (
	"time"

	"github.com/joss/sysup/internal/fault"
	"github.com/joss/sysup/internal/prompt"
)

// Operation is a named, retryable unit of external work. Immutable
// once submitted.
type Operation struct {
	// Name identifies the operation in audit events (e.g. "sync-packages").
	Name string

	// Command is the argv to execute. Opaque to the loop: the
	// ecosystem glue constructs it per package manager.
	Command []string

	// Component tags the operation for snapshot scoping (e.g. "pacman").
	Component string

	// Policy bounds the retry loop.
	Policy RetryPolicy
}

// RetryPolicy bounds and configures the loop for one operation.
type RetryPolicy struct {
	// MaxAttempts is the automatic attempt budget (>= 1). Escalation
	// may grant one extra operator-sanctioned attempt beyond it.
	MaxAttempts int

	// Backoff is the fixed delay before each retry.
	Backoff time.Duration

	// BackoffFunc, when set, computes the delay from the attempt
	// index and overrides Backoff.
	BackoffFunc func(attempt int) time.Duration

	// AutoRemediate allows catalog strategies to run without asking.
	AutoRemediate bool

	// AutoKinds optionally restricts automatic remediation to a
	// subset of fault kinds. Empty means all cataloged kinds.
	AutoKinds []fault.Kind

	// NonInteractiveDefault resolves escalations when no operator is
	// available. Must be Skip or Abort.
	NonInteractiveDefault prompt.Decision

	// Rollback takes a component snapshot before the first attempt.
	Rollback bool

	// RestoreOnRetry restores that snapshot before each
	// operator-sanctioned retry.
	RestoreOnRetry bool
}

// DefaultPolicy mirrors the stock update-batch behavior.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:           3,
		Backoff:               5 * time.Second,
		AutoRemediate:         true,
		NonInteractiveDefault: prompt.Skip,
		Rollback:              true,
	}
}

// allowsAuto reports whether the policy permits automatic
// remediation for a kind.
func (p RetryPolicy) allowsAuto(kind fault.Kind) bool {
	if !p.AutoRemediate || kind == fault.Unknown {
		return false
	}
	if len(p.AutoKinds) == 0 {
		return true
	}
	for _, k := range p.AutoKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Attempt is one execution of an operation. Retained only for the
// lifetime of the loop; every transition is persisted to the audit
// log before the attempt is discarded.
type Attempt struct {
	Sequence  int
	StartedAt time.Time
	EndedAt   time.Time
	ExitCode  int
	Output    string
}

// Outcome is the terminal state of an operation's loop.
type Outcome string

const (
	Success Outcome = "success"
	Skipped Outcome = "skipped"
	Aborted Outcome = "aborted"
)

// Result summarizes a finished operation.
type Result struct {
	Operation    string
	Outcome      Outcome
	Attempts     int
	FinalKind    fault.Kind
	Remediations []string
	Duration     time.Duration
}
