package ecosys

import (
	"testing"

	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/orchestrator"
)

func TestBuiltinOrdering(t *testing.T) {
	ecos := Builtin()
	if len(ecos) == 0 {
		t.Fatal("no builtin ecosystems")
	}
	// The system package manager must run first: language-level
	// updaters may need libraries it installs.
	if ecos[0].Name != "pacman" {
		t.Errorf("first ecosystem = %s, want pacman", ecos[0].Name)
	}
	for _, e := range ecos {
		if e.Name == "" || e.Component == "" || e.Bin == "" || len(e.Update) == 0 {
			t.Errorf("incomplete ecosystem: %+v", e)
		}
	}
}

func TestYaySharesPacmanComponent(t *testing.T) {
	for _, e := range Builtin() {
		if e.Name == "yay" && e.Component != "pacman" {
			t.Errorf("yay component = %s, want pacman", e.Component)
		}
	}
}

func TestFilter(t *testing.T) {
	ecos := Builtin()

	t.Run("skip", func(t *testing.T) {
		got := Filter(ecos, []string{"npm", "pip"}, nil)
		for _, e := range got {
			if e.Name == "npm" || e.Name == "pip" {
				t.Errorf("skipped ecosystem %s present", e.Name)
			}
		}
		if len(got) != len(ecos)-2 {
			t.Errorf("got %d ecosystems, want %d", len(got), len(ecos)-2)
		}
	})

	t.Run("only", func(t *testing.T) {
		got := Filter(ecos, nil, []string{"pacman", "flatpak"})
		if len(got) != 2 {
			t.Fatalf("got %d ecosystems, want 2", len(got))
		}
		if got[0].Name != "pacman" || got[1].Name != "flatpak" {
			t.Errorf("order not preserved: %s, %s", got[0].Name, got[1].Name)
		}
	})

	t.Run("skip wins over only", func(t *testing.T) {
		got := Filter(ecos, []string{"pacman"}, []string{"pacman"})
		if len(got) != 0 {
			t.Errorf("got %d ecosystems, want 0", len(got))
		}
	})

	t.Run("no filters", func(t *testing.T) {
		if got := Filter(ecos, nil, nil); len(got) != len(ecos) {
			t.Errorf("got %d ecosystems, want all %d", len(got), len(ecos))
		}
	})
}

func TestDetect(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Missing["yay"] = true
	runner.Missing["cargo-install-update"] = true
	runner.Missing["gem"] = true

	got := Detect(runner, Builtin())
	for _, e := range got {
		if e.Name == "yay" || e.Name == "cargo" || e.Name == "gem" {
			t.Errorf("undetectable ecosystem %s present", e.Name)
		}
	}
	if len(got) != len(Builtin())-3 {
		t.Errorf("got %d ecosystems, want %d", len(got), len(Builtin())-3)
	}
}

func TestOperations(t *testing.T) {
	policy := orchestrator.RetryPolicy{MaxAttempts: 2}
	ops := Operations(Builtin()[:2], policy)

	if len(ops) != 2 {
		t.Fatalf("got %d operations, want 2", len(ops))
	}
	if ops[0].Name != "update-pacman" || ops[1].Name != "update-yay" {
		t.Errorf("names = %s, %s", ops[0].Name, ops[1].Name)
	}
	if ops[0].Component != "pacman" || ops[1].Component != "pacman" {
		t.Errorf("components = %s, %s, want pacman for both", ops[0].Component, ops[1].Component)
	}
	for _, op := range ops {
		if op.Policy.MaxAttempts != 2 {
			t.Errorf("policy not propagated to %s", op.Name)
		}
		if len(op.Command) == 0 {
			t.Errorf("empty command for %s", op.Name)
		}
	}
}
