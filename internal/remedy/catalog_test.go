package remedy

import (
	"context"
	"errors"
	"testing"

	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/fault"
)

func TestRegisterUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering a strategy for Unknown")
		}
	}()
	NewCatalog().Register(Strategy{Kind: fault.Unknown})
}

func TestRemediateNoEntry(t *testing.T) {
	c := NewCatalog()

	applied, err := c.Remediate(context.Background(), Failure{Kind: fault.Unknown})
	if applied || err != nil {
		t.Errorf("Remediate() = (%v, %v), want (false, nil)", applied, err)
	}
}

func TestRemediateSuccess(t *testing.T) {
	var ran []string
	c := NewCatalog()
	c.Register(Strategy{
		Kind: fault.SyncFailure,
		Actions: []Action{
			&FuncAction{Label: "first", Fn: func(context.Context, Failure) error {
				ran = append(ran, "first")
				return nil
			}},
			&FuncAction{Label: "second", Fn: func(context.Context, Failure) error {
				ran = append(ran, "second")
				return nil
			}},
		},
	})

	applied, err := c.Remediate(context.Background(), Failure{Kind: fault.SyncFailure})
	if !applied || err != nil {
		t.Fatalf("Remediate() = (%v, %v), want (true, nil)", applied, err)
	}
	if len(ran) != 2 || ran[0] != "first" || ran[1] != "second" {
		t.Errorf("actions ran out of order: %v", ran)
	}
}

func TestRemediatePartial(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	c := NewCatalog()
	c.Register(Strategy{
		Kind: fault.SyncFailure,
		Actions: []Action{
			&FuncAction{Label: "breaks", Fn: func(context.Context, Failure) error {
				ran = append(ran, "breaks")
				return boom
			}},
			&FuncAction{Label: "never runs", Fn: func(context.Context, Failure) error {
				ran = append(ran, "never runs")
				return nil
			}},
		},
	})

	applied, err := c.Remediate(context.Background(), Failure{Kind: fault.SyncFailure})
	if !applied {
		t.Error("partial application must report applied=true")
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
	if len(ran) != 1 {
		t.Errorf("execution must stop at the first failing action, ran %v", ran)
	}
}

func TestRemoveConflicting(t *testing.T) {
	output := "installing foo (2.1) breaks dependency 'foo=2.0' required by foo-git"

	t.Run("removes the requiring package", func(t *testing.T) {
		runner := exec.NewMockRunner()
		action := RemoveConflicting(runner)

		err := action.Apply(context.Background(), Failure{Kind: fault.DependencyBreak, Output: output})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}

		calls := runner.CallsFor("sudo")
		if len(calls) != 1 {
			t.Fatalf("expected 1 sudo call, got %d", len(calls))
		}
		want := []string{"pacman", "-Rdd", "--noconfirm", "foo-git"}
		if len(calls[0].Args) != len(want) {
			t.Fatalf("args = %v, want %v", calls[0].Args, want)
		}
		for i := range want {
			if calls[0].Args[i] != want[i] {
				t.Fatalf("args = %v, want %v", calls[0].Args, want)
			}
		}
	})

	t.Run("idempotent when package already gone", func(t *testing.T) {
		runner := exec.NewMockRunner()
		runner.Script("sudo", exec.MockResponse{
			Output:   []byte("error: target not found: foo-git"),
			ExitCode: 1,
		})

		err := RemoveConflicting(runner).Apply(context.Background(),
			Failure{Kind: fault.DependencyBreak, Output: output})
		if err != nil {
			t.Errorf("already-removed target must not fail, got %v", err)
		}
	})

	t.Run("fails when output names no package", func(t *testing.T) {
		runner := exec.NewMockRunner()

		err := RemoveConflicting(runner).Apply(context.Background(),
			Failure{Kind: fault.DependencyBreak, Output: "something unrelated"})
		if err == nil {
			t.Error("expected error when no target package in output")
		}
		if len(runner.Calls) != 0 {
			t.Error("no command should run without a target")
		}
	})
}

func TestCommandActionTolerateOutput(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Script("sudo", exec.MockResponse{
		Output:   []byte("warning: nothing to do"),
		ExitCode: 1,
	})

	action := &CommandAction{
		Label:          "noop cleanup",
		Name:           "sudo",
		Args:           []string{"pacman", "-Sc"},
		Runner:         runner,
		TolerateOutput: []string{"nothing to do"},
	}
	if err := action.Apply(context.Background(), Failure{}); err != nil {
		t.Errorf("tolerated output must not fail, got %v", err)
	}
}

func TestDefaultCatalogCoversClassifiableKinds(t *testing.T) {
	c := DefaultCatalog(exec.NewMockRunner())

	for _, kind := range []fault.Kind{
		fault.DependencyBreak,
		fault.VersionConflict,
		fault.GenericDependencyFailure,
		fault.SyncFailure,
		fault.SignatureFailure,
	} {
		if _, ok := c.Lookup(kind); !ok {
			t.Errorf("default catalog missing strategy for %s", kind)
		}
	}
	if _, ok := c.Lookup(fault.Unknown); ok {
		t.Error("default catalog must not remediate unknown faults")
	}
}

func TestDeregister(t *testing.T) {
	c := DefaultCatalog(exec.NewMockRunner())
	c.Deregister(fault.SyncFailure)

	if _, ok := c.Lookup(fault.SyncFailure); ok {
		t.Error("deregistered kind still has a strategy")
	}
	applied, err := c.Remediate(context.Background(), Failure{Kind: fault.SyncFailure})
	if applied || err != nil {
		t.Errorf("Remediate() after Deregister = (%v, %v), want (false, nil)", applied, err)
	}
}
