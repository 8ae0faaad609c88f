package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joss/sysup/internal/config"
	"github.com/joss/sysup/internal/snapshot"
)

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Aliases: []string{"snap"},
		Short:   "Component snapshot management",
		Long: `Create, list and restore component-scoped snapshots.

Snapshots are taken automatically before risky updates; these
commands cover the manual cases.

Examples:
  sysup snapshot create pacman      # snapshot pacman config now
  sysup snapshot list               # all snapshots, newest first
  sysup snapshot list pacman        # one component
  sysup snapshot restore pacman     # restore the latest pacman snapshot
  sysup snapshot restore pacman --id 01J...  # restore a specific one
  sysup snapshot prune --keep 3     # drop all but the 3 newest per component`,
	}

	cmd.AddCommand(
		snapshotCreateCmd(),
		snapshotListCmd(),
		snapshotRestoreCmd(),
		snapshotPruneCmd(),
	)

	return cmd
}

func snapshotStore() *snapshot.Store {
	cfg, err := config.LoadDefault()
	if err != nil {
		fatalError(err)
	}
	return buildSnapshotStore(cfg)
}

func snapshotCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <component>",
		Short: "Snapshot a component's state now",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := snapshotStore()
			snap, err := store.Create(args[0])
			if err != nil {
				fatalError(err)
			}
			auditLogger.Info("snapshot-"+args[0], 0,
				fmt.Sprintf("manual snapshot %s created (%d files)", snap.ID, snap.Files))
			fmt.Printf("Snapshot created: %s\n", snap.ID)
			fmt.Printf("  Component: %s\n", snap.Component)
			fmt.Printf("  Files:     %d\n", snap.Files)
			fmt.Printf("  Archive:   %s\n", snap.StoragePath)
		},
	}
}

func snapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [component]",
		Short: "List snapshots, newest first",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			component := ""
			if len(args) > 0 {
				component = args[0]
			}

			store := snapshotStore()
			snaps, err := store.List(component)
			if err != nil {
				fatalError(err)
			}
			if len(snaps) == 0 {
				fmt.Println("No snapshots found")
				return
			}

			for _, s := range snaps {
				size := ""
				if info, err := os.Stat(s.StoragePath); err == nil {
					size = " " + formatSize(info.Size())
				}
				fmt.Printf("%s  %-10s %s  %d files%s\n",
					s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					s.Component, s.ID, s.Files, size)
			}
		},
	}
}

func snapshotRestoreCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "restore <component>",
		Short: "Restore a component snapshot",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			component := args[0]
			store := snapshotStore()

			var snap snapshot.Snapshot
			if id != "" {
				snaps, err := store.List(component)
				if err != nil {
					fatalError(err)
				}
				found := false
				for _, s := range snaps {
					if s.ID == id {
						snap, found = s, true
						break
					}
				}
				if !found {
					fatalError(fmt.Errorf("no snapshot %s for component %s", id, component))
				}
			} else {
				s, ok, err := store.Latest(component)
				if err != nil {
					fatalError(err)
				}
				if !ok {
					fatalError(fmt.Errorf("no snapshots for component %s", component))
				}
				snap = s
			}

			if !confirm(fmt.Sprintf("Restore %s snapshot %s from %s?",
				component, snap.ID, snap.CreatedAt.Local().Format("2006-01-02 15:04"))) {
				fmt.Println("Cancelled")
				return
			}

			if err := store.Restore(snap); err != nil {
				fatalError(err)
			}
			auditLogger.Audit("snapshot-"+component, 0,
				fmt.Sprintf("manual restore of snapshot %s", snap.ID), "")
			fmt.Printf("Restored snapshot %s (%d files)\n", snap.ID, snap.Files)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Restore a specific snapshot instead of the latest")

	return cmd
}

func snapshotPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune [component]",
		Short: "Remove superseded snapshots",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			component := ""
			if len(args) > 0 {
				component = args[0]
			}

			store := snapshotStore()
			removed, err := store.Prune(component, keep)
			if err != nil {
				fatalError(err)
			}
			if len(removed) == 0 {
				fmt.Println("Nothing to prune")
				return
			}
			for _, s := range removed {
				fmt.Printf("Removed %s %s (%s)\n",
					s.Component, s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			auditLogger.Info("snapshot-prune", 0,
				fmt.Sprintf("pruned %d snapshot(s), keeping %d per component", len(removed), keep))
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 3, "Snapshots to keep per component")

	return cmd
}
