package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joss/sysup/internal/audit"
	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/fault"
	"github.com/joss/sysup/internal/prompt"
	"github.com/joss/sysup/internal/remedy"
	"github.com/joss/sysup/internal/snapshot"
	"github.com/joss/sysup/internal/textutil"
)

// Orchestrator runs one operation at a time through the retry loop.
// It holds no cross-operation mutable state beyond the audit logger.
type Orchestrator struct {
	runner     exec.Runner
	classifier *fault.Classifier
	catalog    *remedy.Catalog
	prompter   prompt.Prompter
	log        *audit.Logger
	snapshots  *snapshot.Store
	shell      string
	sleep      func(time.Duration)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSnapshots enables rollback support.
func WithSnapshots(store *snapshot.Store) Option {
	return func(o *Orchestrator) { o.snapshots = store }
}

// WithSleep overrides the backoff sleep (test seam).
func WithSleep(fn func(time.Duration)) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithShell sets the shell used for manual-retry escalations.
func WithShell(shell string) Option {
	return func(o *Orchestrator) { o.shell = shell }
}

// New creates an orchestrator. A nil prompter means non-interactive:
// escalations resolve to the policy default.
func New(runner exec.Runner, classifier *fault.Classifier, catalog *remedy.Catalog,
	prompter prompt.Prompter, log *audit.Logger, opts ...Option) *Orchestrator {

	o := &Orchestrator{
		runner:     runner,
		classifier: classifier,
		catalog:    catalog,
		prompter:   prompter,
		log:        log,
		shell:      defaultShell(),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// Run drives the operation to exactly one terminal outcome.
// Skipped and Aborted are returned as *OperationError; Success
// returns a nil error.
func (o *Orchestrator) Run(ctx context.Context, op Operation) (Result, error) {
	start := time.Now()
	policy := normalize(op.Policy)

	var snap snapshot.Snapshot
	haveSnap := false
	if policy.Rollback && o.snapshots != nil {
		s, err := o.snapshots.Create(op.Component)
		if err != nil {
			// Backup failure degrades the run, it does not block it.
			o.log.Warn(op.Name, 0, fmt.Sprintf("snapshot unavailable for %s: %v", op.Component, err))
		} else {
			snap, haveSnap = s, true
			o.log.Info(op.Name, 0, fmt.Sprintf("snapshot %s created for %s (%d files)", s.ID, op.Component, s.Files))
		}
	}

	var remediations []string
	seq := 0

	for {
		if ctx.Err() != nil {
			return o.finish(op, start, Aborted, "", seq, remediations, "cancelled by caller")
		}

		seq++
		attempt := o.execute(ctx, op, seq)
		if attempt.ExitCode == 0 {
			return o.finish(op, start, Success, "", seq, remediations, "operation succeeded")
		}

		kind := o.classifier.Classify(attempt.Output)
		o.log.Error(op.Name, seq, fmt.Sprintf("attempt failed (exit %d): %s",
			attempt.ExitCode, textutil.Truncate(textutil.TailLines(attempt.Output, 1), 160)), kind)

		remedSummary := ""
		if policy.allowsAuto(kind) {
			if strategy, ok := o.catalog.Lookup(kind); ok {
				_, rerr := o.catalog.Remediate(ctx, remedy.Failure{
					Kind:      kind,
					Output:    attempt.Output,
					Component: op.Component,
				})
				if rerr == nil {
					remedSummary = strategy.Describe()
					o.log.Info(op.Name, seq, "remediation applied: "+remedSummary)
				} else {
					// Partial application: some actions ran, one failed.
					// Worth retrying once, never guaranteed success.
					remedSummary = strategy.Describe() + " (partial: " + rerr.Error() + ")"
					o.log.Warn(op.Name, seq, "remediation partial: "+rerr.Error())
				}
				remediations = append(remediations, remedSummary)
				if seq < policy.MaxAttempts {
					o.backoff(policy, seq)
					continue
				}
			}
		}

		esc := prompt.EscalationContext{
			Operation:     op.Name,
			Component:     op.Component,
			Kind:          kind,
			Output:        attempt.Output,
			RemedySummary: remedSummary,
			Sequence:      seq,
			MaxAttempts:   policy.MaxAttempts,
		}

		decision, retry := o.escalate(ctx, op, policy, esc, snap, haveSnap)
		if retry {
			continue
		}
		switch decision {
		case prompt.Abort:
			return o.finish(op, start, Aborted, kind, seq, remediations,
				fmt.Sprintf("aborted after %d attempt(s)", seq))
		default:
			return o.finish(op, start, Skipped, kind, seq, remediations,
				fmt.Sprintf("skipped after %d attempt(s)", seq))
		}
	}
}

// escalate resolves one escalation. retry=true means the loop should
// run another attempt; otherwise decision is Skip or Abort.
func (o *Orchestrator) escalate(ctx context.Context, op Operation, policy RetryPolicy,
	esc prompt.EscalationContext, snap snapshot.Snapshot, haveSnap bool) (prompt.Decision, bool) {

	for {
		decision, automatic := o.decide(policy, esc)
		if automatic {
			o.log.Warn(op.Name, esc.Sequence,
				fmt.Sprintf("no operator available, default decision: %s", decision))
		} else {
			o.log.Audit(op.Name, esc.Sequence, "operator decision: "+string(decision), esc.Kind)
		}

		switch decision {
		case prompt.Skip, prompt.Abort:
			return decision, false

		case prompt.RetryAutomatic, prompt.RetryManual:
			if !esc.RetryBudgetLeft() {
				// A well-behaved prompter never returns retry here;
				// fall back to the policy default so the loop ends.
				o.log.Warn(op.Name, esc.Sequence,
					"retry budget exhausted, applying default: "+string(policy.NonInteractiveDefault))
				return policy.NonInteractiveDefault, false
			}

			if policy.RestoreOnRetry && haveSnap {
				if err := o.snapshots.Restore(snap); err != nil {
					o.log.Warn(op.Name, esc.Sequence, "snapshot restore failed: "+err.Error())
				} else {
					o.log.Audit(op.Name, esc.Sequence,
						fmt.Sprintf("snapshot %s restored for %s", snap.ID, op.Component), esc.Kind)
				}
			}

			if decision == prompt.RetryManual {
				o.log.Audit(op.Name, esc.Sequence, "handing control to manual shell", esc.Kind)
				if err := o.runner.Interactive(ctx, o.shell); err != nil {
					o.log.Warn(op.Name, esc.Sequence, "manual shell exited: "+err.Error())
				}
				return decision, true
			}

			// Operator-sanctioned auto-fix before the extra attempt.
			if strategy, ok := o.catalog.Lookup(esc.Kind); ok {
				_, rerr := o.catalog.Remediate(ctx, remedy.Failure{
					Kind:      esc.Kind,
					Output:    esc.Output,
					Component: op.Component,
				})
				if rerr != nil {
					o.log.Warn(op.Name, esc.Sequence, "remediation partial: "+rerr.Error())
				} else {
					o.log.Info(op.Name, esc.Sequence, "remediation applied: "+strategy.Describe())
				}
			}
			return decision, true

		default:
			o.log.Warn(op.Name, esc.Sequence, "invalid decision, re-prompting")
		}
	}
}

// decide consults the prompter, or the policy default when running
// non-interactively. automatic=true means no operator made the call.
func (o *Orchestrator) decide(policy RetryPolicy, esc prompt.EscalationContext) (prompt.Decision, bool) {
	if o.prompter == nil {
		return policy.NonInteractiveDefault, true
	}
	if auto, ok := o.prompter.(prompt.Auto); ok {
		return auto.Decide(esc), true
	}
	return o.prompter.Decide(esc), false
}

// execute runs one attempt and records its start.
func (o *Orchestrator) execute(ctx context.Context, op Operation, seq int) Attempt {
	o.log.Info(op.Name, seq, "attempt started: "+strings.Join(op.Command, " "))

	attempt := Attempt{Sequence: seq, StartedAt: time.Now()}
	if len(op.Command) == 0 {
		attempt.EndedAt = time.Now()
		attempt.ExitCode = -1
		o.log.Warn(op.Name, seq, "empty command")
		return attempt
	}
	out, code, err := o.runner.Capture(ctx, op.Command[0], op.Command[1:]...)
	attempt.EndedAt = time.Now()
	attempt.Output = string(out)
	attempt.ExitCode = code
	if err != nil {
		// The process never ran; classification of whatever output
		// exists (usually none) decides the fault kind.
		attempt.ExitCode = -1
		o.log.Warn(op.Name, seq, "command failed to start: "+err.Error())
	}
	return attempt
}

func (o *Orchestrator) backoff(policy RetryPolicy, attempt int) {
	delay := policy.Backoff
	if policy.BackoffFunc != nil {
		delay = policy.BackoffFunc(attempt)
	}
	if delay > 0 {
		o.sleep(delay)
	}
}

// finish emits the terminal audit event and builds the result.
func (o *Orchestrator) finish(op Operation, start time.Time, outcome Outcome,
	kind fault.Kind, attempts int, remediations []string, message string) (Result, error) {

	// Terminal events carry everything a post-mortem needs: the final
	// kind plus what automation already tried.
	if outcome != Success && len(remediations) > 0 {
		message += "; remediations tried: " + strings.Join(remediations, "; ")
	}
	o.log.Audit(op.Name, attempts, message, kind)

	result := Result{
		Operation:    op.Name,
		Outcome:      outcome,
		Attempts:     attempts,
		FinalKind:    kind,
		Remediations: remediations,
		Duration:     time.Since(start),
	}

	if outcome == Success {
		return result, nil
	}
	return result, &OperationError{
		Operation:    op.Name,
		Outcome:      outcome,
		Kind:         kind,
		Attempts:     attempts,
		Remediations: remediations,
	}
}

func normalize(policy RetryPolicy) RetryPolicy {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.NonInteractiveDefault != prompt.Skip && policy.NonInteractiveDefault != prompt.Abort {
		policy.NonInteractiveDefault = prompt.Skip
	}
	return policy
}
