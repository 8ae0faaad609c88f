// Package remedy maps fault kinds to corrective actions executed
// against the environment.
package remedy

import (
	"context"
	"fmt"
	"strings"

	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/fault"
)

// Failure carries the context a targeted action may need: the
// classified kind, the failing attempt's captured output, and the
// component tag of the operation.
type Failure struct {
	Kind      fault.Kind
	Output    string
	Component string
}

// Action is a single corrective step. Idempotent by contract:
// applying twice must not fail differently than applying once.
type Action interface {
	// Describe returns a short human-readable label.
	Describe() string

	// Apply executes the step against the environment.
	Apply(ctx context.Context, fail Failure) error
}

// CommandAction runs a fixed command through a Runner.
type CommandAction struct {
	Label  string
	Name   string
	Args   []string
	Runner exec.Runner

	// TolerateOutput lists output fragments that downgrade a non-zero
	// exit to success, keeping the action idempotent (e.g. removing a
	// package that is already gone).
	TolerateOutput []string
}

func (a *CommandAction) Describe() string { return a.Label }

func (a *CommandAction) Apply(ctx context.Context, fail Failure) error {
	out, code, err := a.Runner.Capture(ctx, a.Name, a.Args...)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Label, err)
	}
	if code == 0 {
		return nil
	}
	for _, tolerated := range a.TolerateOutput {
		if strings.Contains(string(out), tolerated) {
			return nil
		}
	}
	return fmt.Errorf("%s: exit %d", a.Label, code)
}

// FuncAction adapts a function into an Action. Used for steps whose
// command depends on the failure context.
type FuncAction struct {
	Label string
	Fn    func(ctx context.Context, fail Failure) error
}

func (a *FuncAction) Describe() string { return a.Label }

func (a *FuncAction) Apply(ctx context.Context, fail Failure) error {
	return a.Fn(ctx, fail)
}

// RemoveConflicting removes the package a "breaks dependency ...
// required by <pkg>" error names. A no-op success when the output
// does not name a package or the package is already gone.
func RemoveConflicting(runner exec.Runner) Action {
	return &FuncAction{
		Label: "remove conflicting package",
		Fn: func(ctx context.Context, fail Failure) error {
			pkg := fault.RequiredBy(fail.Output)
			if pkg == "" {
				return fmt.Errorf("remove conflicting package: no target in output")
			}
			out, code, err := runner.Capture(ctx, "sudo", "pacman", "-Rdd", "--noconfirm", pkg)
			if err != nil {
				return fmt.Errorf("remove %s: %w", pkg, err)
			}
			if code != 0 && !strings.Contains(string(out), "target not found") {
				return fmt.Errorf("remove %s: exit %d", pkg, code)
			}
			return nil
		},
	}
}
