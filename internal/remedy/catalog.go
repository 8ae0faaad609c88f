package remedy

import (
	"context"
	"fmt"
	"strings"

	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/fault"
)

// Strategy is an ordered list of actions bound to a fault kind.
// Execution stops at the first failing action.
type Strategy struct {
	Kind    fault.Kind
	Actions []Action
}

// Describe returns a one-line summary of the strategy's actions.
func (s Strategy) Describe() string {
	labels := make([]string, len(s.Actions))
	for i, a := range s.Actions {
		labels[i] = a.Describe()
	}
	return strings.Join(labels, ", ")
}

// Catalog maps fault kinds to remediation strategies. Configured once
// at startup; Unknown never has an entry.
type Catalog struct {
	strategies map[fault.Kind]Strategy
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{strategies: make(map[fault.Kind]Strategy)}
}

// Register binds a strategy to its kind. Registering Unknown panics:
// an unclassifiable failure must always reach the operator.
func (c *Catalog) Register(s Strategy) {
	if s.Kind == fault.Unknown {
		panic("remedy: cannot register a strategy for unknown faults")
	}
	c.strategies[s.Kind] = s
}

// Deregister removes the strategy for a kind, disabling automatic
// remediation for it.
func (c *Catalog) Deregister(kind fault.Kind) {
	delete(c.strategies, kind)
}

// Lookup returns the strategy for a kind, if one exists.
func (c *Catalog) Lookup(kind fault.Kind) (Strategy, bool) {
	s, ok := c.strategies[kind]
	return s, ok
}

// Remediate applies the strategy for the failure's kind.
// applied=false, err=nil when no strategy exists (caller escalates);
// applied=true, err=nil on full success; applied=true with err on
// partial application (some actions ran, one failed).
func (c *Catalog) Remediate(ctx context.Context, fail Failure) (applied bool, err error) {
	strategy, ok := c.strategies[fail.Kind]
	if !ok {
		return false, nil
	}
	for i, action := range strategy.Actions {
		if err := action.Apply(ctx, fail); err != nil {
			return true, fmt.Errorf("action %d/%d (%s): %w",
				i+1, len(strategy.Actions), action.Describe(), err)
		}
	}
	return true, nil
}

// DefaultCatalog builds the stock pacman-family catalog. Each fault
// kind maps to the corrective steps the update scripts applied by
// hand; every action goes through the injected runner.
func DefaultCatalog(runner exec.Runner) *Catalog {
	c := NewCatalog()

	c.Register(Strategy{
		Kind:    fault.DependencyBreak,
		Actions: []Action{RemoveConflicting(runner)},
	})

	c.Register(Strategy{
		Kind: fault.VersionConflict,
		Actions: []Action{
			&CommandAction{
				Label:  "refresh package databases",
				Name:   "sudo",
				Args:   []string{"pacman", "-Syy", "--noconfirm"},
				Runner: runner,
			},
		},
	})

	c.Register(Strategy{
		Kind: fault.GenericDependencyFailure,
		Actions: []Action{
			&CommandAction{
				Label:  "clear package cache",
				Name:   "sudo",
				Args:   []string{"pacman", "-Sc", "--noconfirm"},
				Runner: runner,
			},
			&CommandAction{
				Label:  "refresh package databases",
				Name:   "sudo",
				Args:   []string{"pacman", "-Syy", "--noconfirm"},
				Runner: runner,
			},
		},
	})

	c.Register(Strategy{
		Kind: fault.SyncFailure,
		Actions: []Action{
			&CommandAction{
				Label: "remove stale database lock",
				Name:  "sudo",
				Args:  []string{"rm", "-f", "/var/lib/pacman/db.lck"},
				// rm -f never fails on a missing file
				Runner: runner,
			},
			&CommandAction{
				Label:  "refresh package databases",
				Name:   "sudo",
				Args:   []string{"pacman", "-Syy", "--noconfirm"},
				Runner: runner,
			},
		},
	})

	c.Register(Strategy{
		Kind: fault.SignatureFailure,
		Actions: []Action{
			&CommandAction{
				Label:  "refresh keyring",
				Name:   "sudo",
				Args:   []string{"pacman", "-Sy", "archlinux-keyring", "--noconfirm"},
				Runner: runner,
			},
			&CommandAction{
				Label:  "repopulate trusted keys",
				Name:   "sudo",
				Args:   []string{"pacman-key", "--populate"},
				Runner: runner,
			},
		},
	})

	return c
}
