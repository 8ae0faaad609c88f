package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joss/sysup/internal/config"
	"github.com/joss/sysup/internal/ecosys"
	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/prompt"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run local diagnostics for the sysup setup",
		Run: func(cmd *cobra.Command, args []string) {
			paths := config.GetPaths()

			fmt.Println("sysup doctor")
			fmt.Println()
			fmt.Printf("OS:         %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Printf("Home dir:   %s\n", paths.Home)
			fmt.Printf("Backups:    %s\n", paths.Backups)
			fmt.Printf("Audit data: %s\n", paths.Data)

			if _, err := os.Stat(paths.ConfigFile); err == nil {
				printOK("Config file: %s", paths.ConfigFile)
			} else {
				printWarn("Config file: not found (defaults apply)")
			}

			if err := ensureWritable(paths.Home); err != nil {
				printFail("Writable check: %v", err)
			} else {
				printOK("Writable check: OK")
			}

			if prompt.Interactive() {
				printOK("Mode: interactive (escalations will prompt)")
			} else {
				printWarn("Mode: non-interactive (failures resolve to the policy default)")
			}

			fmt.Println("\nEcosystems:")
			runner := exec.NewOSRunner()
			for _, e := range ecosys.Builtin() {
				if path, err := runner.LookPath(e.Bin); err == nil {
					printOK("  %-10s %s", e.Name, path)
				} else {
					fmt.Printf("  %-10s %s\n", e.Name, color.HiBlackString("not detected"))
				}
			}
		},
	}
}

func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	file, err := os.CreateTemp(dir, "doctor-write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := file.Name()
	file.Close()
	return os.Remove(path)
}

func printOK(format string, args ...any) {
	fmt.Printf("%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func printWarn(format string, args ...any) {
	fmt.Printf("%s %s\n", color.YellowString("!"), fmt.Sprintf(format, args...))
}

func printFail(format string, args ...any) {
	fmt.Printf("%s %s\n", color.RedString("✗"), fmt.Sprintf(format, args...))
}
