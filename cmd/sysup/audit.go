package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/sysup/internal/audit"
	"github.com/joss/sysup/internal/render"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit history and analysis",
		Long: `Query audit events from past update runs.

Every state transition of every operation is recorded: attempts,
classifications, remediations, operator decisions, rollbacks and
terminal outcomes.`,
	}

	cmd.AddCommand(
		auditRecentCmd(),
		auditFailuresCmd(),
		auditStatsCmd(),
	)
	return cmd
}

func requireStore() *audit.Store {
	if auditStore == nil {
		fatalError(fmt.Errorf("audit history unavailable (database could not be opened)"))
	}
	return auditStore
}

func auditRecentCmd() *cobra.Command {
	var operation, level string
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent audit events",
		Long: `Display recent audit events with filters.

Examples:
  sysup audit recent                        # latest events
  sysup audit recent --operation update-pacman
  sysup audit recent --level ERROR -n 50`,
		Run: func(cmd *cobra.Command, args []string) {
			store := requireStore()

			events, err := store.Query(context.Background(), audit.QueryFilter{
				Operation: operation,
				Level:     audit.Level(level),
				Limit:     limit,
			})
			if err != nil {
				fatalError(err)
			}

			fmt.Print(render.New(pretty).Events(events))
		},
	}
	cmd.Flags().StringVarP(&operation, "operation", "o", "", "Filter by operation name")
	cmd.Flags().StringVarP(&level, "level", "l", "", "Filter by level (INFO, WARN, ERROR, AUDIT)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")

	return cmd
}

func auditFailuresCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Show recent classified failures",
		Run: func(cmd *cobra.Command, args []string) {
			store := requireStore()

			events, err := store.Failures(context.Background(), limit)
			if err != nil {
				fatalError(err)
			}

			fmt.Print(render.New(pretty).Events(events))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")

	return cmd
}

func auditStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show audit statistics",
		Run: func(cmd *cobra.Command, args []string) {
			store := requireStore()

			stats, err := store.GetStats(context.Background())
			if err != nil {
				fatalError(err)
			}

			fmt.Print(render.New(pretty).Stats(stats))
		},
	}
}
