// Package main provides the sysup CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joss/sysup/internal/audit"
	"github.com/joss/sysup/internal/config"
)

var (
	version     = "0.1.0"
	pretty      = true
	verbose     = false
	auditStore  *audit.Store
	auditLogger *audit.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sysup",
		Short: "Transactional system update manager",
		Long: `sysup updates every detected package ecosystem on the machine,
wrapping each package-manager run in a remediation loop: failures are
classified from captured output, known faults get targeted automatic
fixes, and anything else escalates to you.

Use 'sysup update' to run the full batch.
Use 'sysup doctor' to see what sysup detected on this machine.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// History store is best-effort: audit events still reach
			// stderr as JSON lines when the database is unavailable.
			store, err := audit.NewStore(config.GetPaths().Data)
			if err == nil {
				auditStore = store
				auditLogger = audit.NewLogger(audit.WithStore(store))
			} else {
				auditLogger = audit.NewLogger()
			}
			audit.SetGlobal(auditLogger)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if auditStore != nil {
				auditStore.Close()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose diagnostics")

	rootCmd.AddGroup(
		&cobra.Group{ID: "maintenance", Title: "Maintenance:"},
		&cobra.Group{ID: "recovery", Title: "Recovery:"},
		&cobra.Group{ID: "runtime", Title: "Runtime:"},
	)

	update := updateCmd()
	update.GroupID = "maintenance"
	rootCmd.AddCommand(update)

	doctor := doctorCmd()
	doctor.GroupID = "maintenance"
	rootCmd.AddCommand(doctor)

	snap := snapshotCmd()
	snap.GroupID = "recovery"
	rootCmd.AddCommand(snap)

	classify := classifyCmd()
	classify.GroupID = "recovery"
	rootCmd.AddCommand(classify)

	auditC := auditCmd()
	auditC.GroupID = "runtime"
	rootCmd.AddCommand(auditC)

	status := statusCmd()
	status.GroupID = "runtime"
	rootCmd.AddCommand(status)

	rootCmd.AddCommand(versionCmd())

	// Ctrl-C aborts cleanly: running operations observe the cancelled
	// context between attempts and finish as Aborted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show sysup version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sysup %s\n", version)
		},
	}
}
