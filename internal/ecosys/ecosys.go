// Package ecosys defines the update ecosystems sysup knows how to
// drive and turns the detected ones into operations.
package ecosys

import (
	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/orchestrator"
)

// Ecosystem is one package manager the update batch can cover.
type Ecosystem struct {
	// Name identifies the ecosystem ("pacman", "flatpak", ...).
	Name string

	// Component tags snapshots and audit events. Usually equal to
	// Name; AUR helpers share the "pacman" component since they
	// mutate the same state.
	Component string

	// Bin is the binary probed to detect availability.
	Bin string

	// Update is the argv that updates everything in this ecosystem.
	Update []string
}

// Builtin is the ordered stock ecosystem list. System package
// managers come first: later ecosystems may depend on libraries the
// system update installs.
func Builtin() []Ecosystem {
	return []Ecosystem{
		{
			Name:      "pacman",
			Component: "pacman",
			Bin:       "pacman",
			Update:    []string{"sudo", "pacman", "-Syu", "--noconfirm"},
		},
		{
			Name:      "yay",
			Component: "pacman",
			Bin:       "yay",
			Update:    []string{"yay", "-Syu", "--noconfirm"},
		},
		{
			Name:      "flatpak",
			Component: "flatpak",
			Bin:       "flatpak",
			Update:    []string{"flatpak", "update", "-y"},
		},
		{
			Name:      "rustup",
			Component: "rustup",
			Bin:       "rustup",
			Update:    []string{"rustup", "update"},
		},
		{
			Name:      "cargo",
			Component: "cargo",
			Bin:       "cargo-install-update",
			Update:    []string{"cargo", "install-update", "-a"},
		},
		{
			Name:      "npm",
			Component: "npm",
			Bin:       "npm",
			Update:    []string{"npm", "update", "-g"},
		},
		{
			Name:      "pip",
			Component: "pip",
			Bin:       "pip",
			Update:    []string{"pip", "install", "--upgrade", "--user", "pip"},
		},
		{
			Name:      "gem",
			Component: "gem",
			Bin:       "gem",
			Update:    []string{"gem", "update", "--user-install"},
		},
	}
}

// Filter applies skip/only name lists.
func Filter(ecos []Ecosystem, skip, only []string) []Ecosystem {
	skipSet := toSet(skip)
	onlySet := toSet(only)

	var out []Ecosystem
	for _, e := range ecos {
		if skipSet[e.Name] {
			continue
		}
		if len(onlySet) > 0 && !onlySet[e.Name] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Detect keeps only ecosystems whose binary is on PATH.
func Detect(runner exec.Runner, ecos []Ecosystem) []Ecosystem {
	var out []Ecosystem
	for _, e := range ecos {
		if _, err := runner.LookPath(e.Bin); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Operations builds one operation per ecosystem under a shared policy.
func Operations(ecos []Ecosystem, policy orchestrator.RetryPolicy) []orchestrator.Operation {
	ops := make([]orchestrator.Operation, 0, len(ecos))
	for _, e := range ecos {
		ops = append(ops, orchestrator.Operation{
			Name:      "update-" + e.Name,
			Command:   e.Update,
			Component: e.Component,
			Policy:    policy,
		})
	}
	return ops
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
