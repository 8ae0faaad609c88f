package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joss/sysup/internal/textutil"
)

func statusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest outcome of every operation",
		Long: `Show where each operation last ended up.

One line per operation: its most recent terminal outcome, drawn from
the audit history. Useful after a non-interactive run to see what was
skipped and why.`,
		Run: func(cmd *cobra.Command, args []string) {
			store := requireStore()

			events, err := store.LatestOutcomes(context.Background(), limit)
			if err != nil {
				fatalError(err)
			}
			if len(events) == 0 {
				fmt.Println("No runs recorded yet")
				return
			}

			for _, e := range events {
				mark := color.GreenString("✓")
				if e.FaultKind != "" {
					mark = color.YellowString("!")
				}
				fmt.Printf("%s %-20s %s  %s\n", mark, e.Operation,
					e.Timestamp.Local().Format("2006-01-02 15:04"),
					textutil.Truncate(e.Message, 80))
				if e.FaultKind != "" {
					fmt.Printf("    fault: %s\n", e.FaultKind)
				}
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Operations to show")

	return cmd
}
