package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joss/sysup/internal/audit"
	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/fault"
	"github.com/joss/sysup/internal/prompt"
	"github.com/joss/sysup/internal/remedy"
	"github.com/joss/sysup/internal/snapshot"
)

const breakOutput = "error: installing foo (2.1) breaks dependency 'foo=2.0' required by foo-git"

// scriptedPrompter plays back a fixed decision sequence, repeating the
// last one when the script runs out.
type scriptedPrompter struct {
	decisions []prompt.Decision
	calls     int
	contexts  []prompt.EscalationContext
}

func (p *scriptedPrompter) Decide(ctx prompt.EscalationContext) prompt.Decision {
	p.contexts = append(p.contexts, ctx)
	i := p.calls
	p.calls++
	if i >= len(p.decisions) {
		i = len(p.decisions) - 1
	}
	return p.decisions[i]
}

func testLogger(buf *bytes.Buffer) *audit.Logger {
	return audit.NewLogger(audit.WithOutput(buf), audit.WithSession("test"))
}

func newTestOrchestrator(runner exec.Runner, prompter prompt.Prompter, buf *bytes.Buffer, opts ...Option) *Orchestrator {
	opts = append(opts, WithSleep(func(time.Duration) {}))
	return New(runner, fault.NewDefault(), remedy.DefaultCatalog(runner),
		prompter, testLogger(buf), opts...)
}

func policy(maxAttempts int, def prompt.Decision) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:           maxAttempts,
		AutoRemediate:         true,
		NonInteractiveDefault: def,
	}
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	runner := exec.NewMockRunner()
	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	result, err := orch.Run(context.Background(), Operation{
		Name:    "update-pacman",
		Command: []string{"sudo", "pacman", "-Syu", "--noconfirm"},
		Policy:  policy(3, prompt.Skip),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Outcome != Success || result.Attempts != 1 {
		t.Errorf("result = %s after %d attempts, want success after 1", result.Outcome, result.Attempts)
	}
	if len(result.Remediations) != 0 {
		t.Errorf("unexpected remediations: %v", result.Remediations)
	}
}

func TestRunRemediatesDependencyBreak(t *testing.T) {
	// First attempt fails with a dependency break, the conflicting
	// package is removed automatically, second attempt succeeds.
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{Output: []byte(breakOutput), ExitCode: 1})
	runner.Script("pacman", exec.MockResponse{ExitCode: 0})

	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	result, err := orch.Run(context.Background(), Operation{
		Name:      "update-pacman",
		Command:   []string{"pacman", "-Syu", "--noconfirm"},
		Component: "pacman",
		Policy:    policy(3, prompt.Skip),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Outcome != Success || result.Attempts != 2 {
		t.Fatalf("result = %s after %d attempts, want success after 2", result.Outcome, result.Attempts)
	}
	if result.FinalKind != "" {
		t.Errorf("FinalKind = %s, want empty on success", result.FinalKind)
	}
	if len(result.Remediations) != 1 {
		t.Fatalf("remediations = %v, want exactly one", result.Remediations)
	}

	// The remediation must have targeted the requiring package.
	sudo := runner.CallsFor("sudo")
	if len(sudo) != 1 {
		t.Fatalf("expected 1 sudo call, got %d", len(sudo))
	}
	if got := strings.Join(sudo[0].Args, " "); got != "pacman -Rdd --noconfirm foo-git" {
		t.Errorf("remediation command = %q", got)
	}
}

func TestRunUnknownFaultEscalatesImmediately(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{Output: []byte("xyzzy: fatal plugh error"), ExitCode: 1})

	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	result, err := orch.Run(context.Background(), Operation{
		Name:    "update-pacman",
		Command: []string{"pacman", "-Syu"},
		Policy:  policy(3, prompt.Abort),
	})
	if err == nil {
		t.Fatal("Run() error = nil, want abort")
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) || !opErr.IsAbort() {
		t.Fatalf("err = %v, want aborting *OperationError", err)
	}
	if result.Outcome != Aborted || result.Attempts != 1 {
		t.Errorf("result = %s after %d attempts, want aborted after 1", result.Outcome, result.Attempts)
	}
	if result.FinalKind != fault.Unknown {
		t.Errorf("FinalKind = %s, want %s", result.FinalKind, fault.Unknown)
	}
	if len(runner.CallsFor("sudo")) != 0 {
		t.Error("unknown fault must never be auto-remediated")
	}
}

func TestRunPartialRemediationAtBudgetEnd(t *testing.T) {
	// MaxAttempts=1: the remediation still runs after the only failed
	// attempt, but its partial result carries into the escalation
	// instead of granting a retry.
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{
		Output:   []byte("error: failed retrieving file 'core.db' from mirror"),
		ExitCode: 1,
	})
	// rm succeeds, database refresh fails => partial.
	runner.Script("sudo", exec.MockResponse{ExitCode: 0})
	runner.Script("sudo", exec.MockResponse{Output: []byte("mirror unreachable"), ExitCode: 1})

	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	result, err := orch.Run(context.Background(), Operation{
		Name:    "update-pacman",
		Command: []string{"pacman", "-Syu"},
		Policy:  policy(1, prompt.Skip),
	})
	if err == nil {
		t.Fatal("Run() error = nil, want skip error")
	}
	if result.Outcome != Skipped || result.Attempts != 1 {
		t.Errorf("result = %s after %d attempts, want skipped after 1", result.Outcome, result.Attempts)
	}
	if len(result.Remediations) != 1 || !strings.Contains(result.Remediations[0], "partial") {
		t.Errorf("remediations = %v, want one partial entry", result.Remediations)
	}
}

func TestRunBoundedAttempts(t *testing.T) {
	// Every attempt fails, every remediation "succeeds": the loop must
	// stop at MaxAttempts, not spin.
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{
		Output:   []byte("error: failed to synchronize all databases"),
		ExitCode: 1,
	})

	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	result, err := orch.Run(context.Background(), Operation{
		Name:    "update-pacman",
		Command: []string{"pacman", "-Syu"},
		Policy:  policy(3, prompt.Skip),
	})
	if err == nil {
		t.Fatal("Run() error = nil, want skip error")
	}
	if result.Outcome != Skipped {
		t.Errorf("outcome = %s, want skipped", result.Outcome)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want exactly 3", result.Attempts)
	}
	if got := len(runner.CallsFor("pacman")); got != 3 {
		t.Errorf("pacman invoked %d times, want 3", got)
	}
}

func TestRunNonInteractiveDeterministic(t *testing.T) {
	run := func() (Result, int) {
		runner := exec.NewMockRunner()
		runner.Script("pacman", exec.MockResponse{
			Output:   []byte("error: failed to synchronize all databases"),
			ExitCode: 1,
		})
		var buf bytes.Buffer
		orch := newTestOrchestrator(runner, nil, &buf)
		result, _ := orch.Run(context.Background(), Operation{
			Name:    "update-pacman",
			Command: []string{"pacman", "-Syu"},
			Policy:  policy(2, prompt.Skip),
		})
		return result, strings.Count(buf.String(), "\n")
	}

	r1, events1 := run()
	r2, events2 := run()

	if r1.Outcome != r2.Outcome || r1.Attempts != r2.Attempts {
		t.Errorf("non-deterministic results: %+v vs %+v", r1, r2)
	}
	if events1 != events2 {
		t.Errorf("non-deterministic audit trail: %d vs %d events", events1, events2)
	}
}

func TestRunOperatorSanctionedExtraAttempt(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{
		Output:   []byte("error: failed to synchronize all databases"),
		ExitCode: 1,
	})

	prompter := &scriptedPrompter{decisions: []prompt.Decision{prompt.RetryAutomatic, prompt.Skip}}
	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, prompter, &buf)

	result, err := orch.Run(context.Background(), Operation{
		Name:    "update-pacman",
		Command: []string{"pacman", "-Syu"},
		Policy:  policy(2, prompt.Skip),
	})
	if err == nil {
		t.Fatal("Run() error = nil, want skip error")
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want MaxAttempts+1 = 3", result.Attempts)
	}
	if result.Outcome != Skipped {
		t.Errorf("outcome = %s, want skipped", result.Outcome)
	}
	// The second escalation must arrive with the budget exhausted.
	last := prompter.contexts[len(prompter.contexts)-1]
	if last.RetryBudgetLeft() {
		t.Error("final escalation should report no retry budget left")
	}
}

func TestRunMisbehavingPrompterFallsBack(t *testing.T) {
	// A prompter that keeps demanding retries past the budget must not
	// be able to make the loop spin.
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{
		Output:   []byte("error: failed to synchronize all databases"),
		ExitCode: 1,
	})

	prompter := &scriptedPrompter{decisions: []prompt.Decision{prompt.RetryAutomatic}}
	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, prompter, &buf)

	result, err := orch.Run(context.Background(), Operation{
		Name:    "update-pacman",
		Command: []string{"pacman", "-Syu"},
		Policy:  policy(2, prompt.Abort),
	})
	if err == nil {
		t.Fatal("Run() error = nil, want abort")
	}
	if result.Outcome != Aborted {
		t.Errorf("outcome = %s, want aborted via policy default", result.Outcome)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestRunManualRetryOpensShell(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{
		Output:   []byte("error: failed to synchronize all databases"),
		ExitCode: 1,
	})
	runner.Script("pacman", exec.MockResponse{ExitCode: 0})

	prompter := &scriptedPrompter{decisions: []prompt.Decision{prompt.RetryManual}}
	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, prompter, &buf, WithShell("fixshell"))

	result, err := orch.Run(context.Background(), Operation{
		Name:    "update-pacman",
		Command: []string{"pacman", "-Syu"},
		Policy:  RetryPolicy{MaxAttempts: 1, NonInteractiveDefault: prompt.Skip},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Outcome != Success || result.Attempts != 2 {
		t.Errorf("result = %s after %d attempts, want success after 2", result.Outcome, result.Attempts)
	}
	if got := len(runner.CallsFor("fixshell")); got != 1 {
		t.Errorf("shell invoked %d times, want 1", got)
	}
}

func TestRunAutoKindsRestriction(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{Output: []byte(breakOutput), ExitCode: 1})

	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	p := policy(3, prompt.Skip)
	p.AutoKinds = []fault.Kind{fault.SyncFailure}

	result, _ := orch.Run(context.Background(), Operation{
		Name:    "update-pacman",
		Command: []string{"pacman", "-Syu"},
		Policy:  p,
	})
	if result.Attempts != 1 || result.Outcome != Skipped {
		t.Errorf("result = %s after %d attempts, want skipped after 1", result.Outcome, result.Attempts)
	}
	if len(runner.CallsFor("sudo")) != 0 {
		t.Error("dependency-break remediation ran despite AutoKinds restriction")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := exec.NewMockRunner()
	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	result, err := orch.Run(ctx, Operation{
		Name:    "update-pacman",
		Command: []string{"pacman", "-Syu"},
		Policy:  policy(3, prompt.Skip),
	})
	if err == nil {
		t.Fatal("Run() error = nil, want abort")
	}
	if result.Outcome != Aborted || result.Attempts != 0 {
		t.Errorf("result = %s after %d attempts, want aborted with no attempts", result.Outcome, result.Attempts)
	}
	if len(runner.Calls) != 0 {
		t.Error("no command may run after cancellation")
	}
}

func TestRunEmptyCommand(t *testing.T) {
	runner := exec.NewMockRunner()
	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	result, err := orch.Run(context.Background(), Operation{
		Name:   "update-nothing",
		Policy: policy(1, prompt.Skip),
	})
	if err == nil {
		t.Fatal("Run() error = nil, want skip error")
	}
	if result.Outcome != Skipped {
		t.Errorf("outcome = %s, want skipped", result.Outcome)
	}
}

func TestRunBackoffBetweenRetries(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{
		Output:   []byte("error: failed to synchronize all databases"),
		ExitCode: 1,
	})

	var delays []time.Duration
	var buf bytes.Buffer
	orch := New(runner, fault.NewDefault(), remedy.DefaultCatalog(runner),
		nil, testLogger(&buf), WithSleep(func(d time.Duration) { delays = append(delays, d) }))

	p := policy(3, prompt.Skip)
	p.Backoff = 2 * time.Second

	_, _ = orch.Run(context.Background(), Operation{
		Name:    "update-pacman",
		Command: []string{"pacman", "-Syu"},
		Policy:  p,
	})

	// Two retries, one delay before each. No delay after the last.
	if len(delays) != 2 {
		t.Fatalf("sleeps = %v, want 2", delays)
	}
	for _, d := range delays {
		if d != 2*time.Second {
			t.Errorf("delay = %v, want 2s", d)
		}
	}
}

func TestRunRestoreOnRetry(t *testing.T) {
	root := t.TempDir()
	etc := filepath.Join(root, "etc")
	if err := os.MkdirAll(etc, 0755); err != nil {
		t.Fatal(err)
	}
	conf := filepath.Join(etc, "pacman.conf")
	if err := os.WriteFile(conf, []byte("original\n"), 0644); err != nil {
		t.Fatal(err)
	}

	store := snapshot.New(filepath.Join(root, "backups"),
		snapshot.WithRoot(root),
		snapshot.WithPaths(map[string][]string{"pacman": {"/etc/pacman.conf"}}))

	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{
		Output: []byte("error: failed to synchronize all databases"), ExitCode: 1,
	})
	runner.Script("pacman", exec.MockResponse{ExitCode: 0})

	// Damage the file between snapshot and retry, as a broken
	// transaction would. The prompter side effect stands in for the
	// failed attempt mutating state.
	prompter := &sideEffectPrompter{
		inner: &scriptedPrompter{decisions: []prompt.Decision{prompt.RetryManual}},
		fn: func(prompt.EscalationContext) {
			_ = os.WriteFile(conf, []byte("damaged\n"), 0644)
		},
	}

	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, prompter, &buf, WithSnapshots(store), WithShell("sh"))

	p := RetryPolicy{
		MaxAttempts:           1,
		NonInteractiveDefault: prompt.Skip,
		Rollback:              true,
		RestoreOnRetry:        true,
	}

	result, err := orch.Run(context.Background(), Operation{
		Name:      "update-pacman",
		Command:   []string{"pacman", "-Syu"},
		Component: "pacman",
		Policy:    p,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Outcome != Success {
		t.Fatalf("outcome = %s, want success", result.Outcome)
	}

	data, err := os.ReadFile(conf)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original\n" {
		t.Errorf("config = %q, want restored %q", data, "original\n")
	}
}

type sideEffectPrompter struct {
	inner prompt.Prompter
	fn    func(prompt.EscalationContext)
}

func (p *sideEffectPrompter) Decide(ctx prompt.EscalationContext) prompt.Decision {
	p.fn(ctx)
	return p.inner.Decide(ctx)
}

func TestRunAllHaltsOnAbort(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{Output: []byte("xyzzy broke"), ExitCode: 1})

	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	ops := []Operation{
		{Name: "update-pacman", Command: []string{"pacman", "-Syu"}, Policy: policy(1, prompt.Abort)},
		{Name: "update-flatpak", Command: []string{"flatpak", "update", "-y"}, Policy: policy(1, prompt.Abort)},
	}

	batch, err := orch.RunAll(context.Background(), ops)
	if err == nil {
		t.Fatal("RunAll() error = nil, want abort")
	}
	if !batch.Halted {
		t.Error("batch should be halted")
	}
	if len(batch.Results) != 1 {
		t.Errorf("results = %d, want 1 (second op must not run)", len(batch.Results))
	}
	if len(runner.CallsFor("flatpak")) != 0 {
		t.Error("operation after an abort must not execute")
	}
}

func TestRunAllContinuesPastSkip(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Script("pacman", exec.MockResponse{Output: []byte("xyzzy broke"), ExitCode: 1})

	var buf bytes.Buffer
	orch := newTestOrchestrator(runner, nil, &buf)

	ops := []Operation{
		{Name: "update-pacman", Command: []string{"pacman", "-Syu"}, Policy: policy(1, prompt.Skip)},
		{Name: "update-flatpak", Command: []string{"flatpak", "update", "-y"}, Policy: policy(1, prompt.Skip)},
	}

	batch, err := orch.RunAll(context.Background(), ops)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if batch.Halted {
		t.Error("skip must not halt the batch")
	}
	if batch.Succeeded() != 1 || batch.SkippedCount() != 1 {
		t.Errorf("succeeded=%d skipped=%d, want 1 and 1", batch.Succeeded(), batch.SkippedCount())
	}
}

func TestNormalizePolicy(t *testing.T) {
	p := normalize(RetryPolicy{MaxAttempts: 0, NonInteractiveDefault: prompt.RetryAutomatic})
	if p.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", p.MaxAttempts)
	}
	if p.NonInteractiveDefault != prompt.Skip {
		t.Errorf("NonInteractiveDefault = %s, want skip", p.NonInteractiveDefault)
	}
}
