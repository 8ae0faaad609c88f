package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/sysup/internal/config"
	"github.com/joss/sysup/internal/ecosys"
	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/fault"
	"github.com/joss/sysup/internal/logging"
	"github.com/joss/sysup/internal/orchestrator"
	"github.com/joss/sysup/internal/prompt"
	"github.com/joss/sysup/internal/remedy"
	"github.com/joss/sysup/internal/render"
	"github.com/joss/sysup/internal/snapshot"
)

func updateCmd() *cobra.Command {
	var (
		skip           []string
		only           []string
		nonInteractive bool
		onFail         string
		maxAttempts    int
		backoffSec     int
		noAutoFix      bool
		noRollback     bool
		restoreOnRetry bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update every detected package ecosystem",
		Long: `Run the full update batch across detected ecosystems.

Each ecosystem update runs under the remediation loop: failures are
classified, known faults get automatic fixes and bounded retries,
everything else asks you what to do (or applies --on-fail when
non-interactive).

Examples:
  sysup update                         # update everything, ask on trouble
  sysup update --skip npm,gem          # leave some ecosystems alone
  sysup update --only pacman           # system packages only
  sysup update --non-interactive       # never prompt; skip failures
  sysup update --non-interactive --on-fail abort`,
		Run: func(cmd *cobra.Command, args []string) {
			log := logging.New("update", verbose)

			cfg, err := config.LoadDefault()
			if err != nil {
				fatalError(err)
			}

			policy := buildPolicy(cfg, onFail, maxAttempts, backoffSec, noAutoFix, noRollback, restoreOnRetry)

			runner := exec.NewOSRunner()
			classifier := buildClassifier(cfg)
			catalog := buildCatalog(cfg, runner, log)
			snaps := buildSnapshotStore(cfg)

			var prompter prompt.Prompter
			interactive := prompt.Interactive() && !nonInteractive && !config.Env().NonInteractive
			if interactive {
				prompter = prompt.NewTTY()
			}

			orch := orchestrator.New(runner, classifier, catalog, prompter, auditLogger,
				orchestrator.WithSnapshots(snaps))

			all := ecosys.Filter(ecosys.Builtin(),
				append(skip, cfg.Ecosystems.Skip...),
				mergeOnly(only, cfg.Ecosystems.Only))
			detected := ecosys.Detect(runner, all)
			if len(detected) == 0 {
				fmt.Fprintln(os.Stderr, "No supported package ecosystems detected")
				os.Exit(1)
			}

			log.Debug("batch planned", "ecosystems", len(detected), "max_attempts", policy.MaxAttempts)

			ops := ecosys.Operations(detected, policy)

			recovery := logging.NewRecoveryHandler("update", log)
			var batch orchestrator.BatchResult
			runErr := recovery.WrapError(func() error {
				var err error
				batch, err = orch.RunAll(cmd.Context(), ops)
				return err
			})

			fmt.Print(render.New(pretty).Batch(batch))

			if runErr != nil {
				var opErr *orchestrator.OperationError
				if errors.As(runErr, &opErr) && opErr.IsAbort() {
					fmt.Fprintf(os.Stderr, "Batch halted: %v\n", runErr)
				} else {
					fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
				}
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringSliceVar(&skip, "skip", nil, "Ecosystems to skip (pacman,yay,flatpak,...)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Restrict the batch to these ecosystems")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt; resolve failures with --on-fail")
	cmd.Flags().StringVar(&onFail, "on-fail", "", "Non-interactive failure default: skip or abort")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Automatic attempt budget per ecosystem")
	cmd.Flags().IntVar(&backoffSec, "backoff", 0, "Seconds to wait between retries")
	cmd.Flags().BoolVar(&noAutoFix, "no-auto-fix", false, "Disable automatic remediation")
	cmd.Flags().BoolVar(&noRollback, "no-rollback", false, "Skip pre-update snapshots")
	cmd.Flags().BoolVar(&restoreOnRetry, "restore-on-retry", false, "Restore the snapshot before operator-sanctioned retries")

	return cmd
}

// buildPolicy layers flags over config file values over defaults.
func buildPolicy(cfg *config.File, onFail string, maxAttempts, backoffSec int,
	noAutoFix, noRollback, restoreOnRetry bool) orchestrator.RetryPolicy {

	policy := orchestrator.DefaultPolicy()

	if cfg.Policy.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Policy.MaxAttempts
	}
	if cfg.Policy.BackoffSeconds > 0 {
		policy.Backoff = time.Duration(cfg.Policy.BackoffSeconds) * time.Second
	}
	if cfg.Policy.AutoRemediate != nil {
		policy.AutoRemediate = *cfg.Policy.AutoRemediate
	}
	if cfg.Policy.Rollback != nil {
		policy.Rollback = *cfg.Policy.Rollback
	}
	if cfg.Policy.OnFail == "abort" {
		policy.NonInteractiveDefault = prompt.Abort
	}

	if maxAttempts > 0 {
		policy.MaxAttempts = maxAttempts
	}
	if backoffSec > 0 {
		policy.Backoff = time.Duration(backoffSec) * time.Second
	}
	if noAutoFix {
		policy.AutoRemediate = false
	}
	if noRollback {
		policy.Rollback = false
	}
	if restoreOnRetry {
		policy.RestoreOnRetry = true
	}
	if onFail == "abort" {
		policy.NonInteractiveDefault = prompt.Abort
	} else if onFail == "skip" {
		policy.NonInteractiveDefault = prompt.Skip
	}

	return policy
}

// buildClassifier prepends config signatures to the built-in table.
func buildClassifier(cfg *config.File) *fault.Classifier {
	classifier := fault.NewDefault()
	if len(cfg.Signatures) == 0 {
		return classifier
	}

	var custom []fault.Signature
	for _, s := range cfg.Signatures {
		kind, ok := fault.ParseKind(s.Kind)
		if !ok {
			continue
		}
		custom = append(custom, fault.Signature{
			Pattern: s.Pattern,
			Regex:   s.Regex,
			Kind:    kind,
		})
	}
	return classifier.Prepend(custom)
}

// buildCatalog starts from the stock catalog and lets config-supplied
// remedies replace the strategy for their kind. Every custom command
// is vetted first: remediations run unattended with root privileges.
func buildCatalog(cfg *config.File, runner exec.Runner, log *slog.Logger) *remedy.Catalog {
	catalog := remedy.DefaultCatalog(runner)
	if len(cfg.Remedies) == 0 {
		return catalog
	}

	guard := remedy.NewGuard()
	for kindName, steps := range cfg.Remedies {
		kind, ok := fault.ParseKind(kindName)
		if !ok {
			log.Warn("ignoring remedies for unknown fault kind", "kind", kindName)
			continue
		}

		var actions []remedy.Action
		for _, step := range steps {
			if len(step.Command) == 0 {
				continue
			}
			risk := guard.Vet(step.Command)
			if risk.Level == remedy.RiskBlocked {
				log.Warn("dropping blocked remedy command",
					"kind", kindName, "label", step.Label, "reason", risk.Reason)
				continue
			}
			if risk.Level == remedy.RiskWarning {
				log.Warn("risky remedy command accepted",
					"kind", kindName, "label", step.Label, "reason", risk.Reason)
			}
			label := step.Label
			if label == "" {
				label = strings.Join(step.Command, " ")
			}
			actions = append(actions, &remedy.CommandAction{
				Label:          label,
				Name:           step.Command[0],
				Args:           step.Command[1:],
				Runner:         runner,
				TolerateOutput: step.Tolerate,
			})
		}

		if len(actions) == 0 {
			continue
		}
		catalog.Register(remedy.Strategy{Kind: kind, Actions: actions})
	}
	return catalog
}

// buildSnapshotStore merges config component paths over the defaults.
func buildSnapshotStore(cfg *config.File) *snapshot.Store {
	paths := snapshot.DefaultPaths()
	for component, cc := range cfg.Components {
		paths[component] = cc.Paths
	}
	return snapshot.New(config.GetPaths().Backups, snapshot.WithPaths(paths))
}

func mergeOnly(flag, cfg []string) []string {
	if len(flag) > 0 {
		return flag
	}
	return cfg
}
