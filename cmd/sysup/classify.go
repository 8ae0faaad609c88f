package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joss/sysup/internal/config"
	"github.com/joss/sysup/internal/exec"
	"github.com/joss/sysup/internal/fault"
	"github.com/joss/sysup/internal/remedy"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify captured failure output",
		Long: `Run the fault classifier over saved package-manager output.

Reads the file argument, or stdin when none is given. Useful for
checking what sysup would do with a failure you hit manually, and
for testing custom signatures in the config file.

Examples:
  sudo pacman -Syu 2>&1 | tee /tmp/out; sysup classify /tmp/out
  sysup classify < /tmp/out`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var data []byte
			var err error
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				fatalError(err)
			}

			cfg, err := config.LoadDefault()
			if err != nil {
				fatalError(err)
			}

			kind := buildClassifier(cfg).Classify(string(data))
			fmt.Printf("Fault kind: %s\n", kind)

			catalog := remedy.DefaultCatalog(exec.NewOSRunner())
			if strategy, ok := catalog.Lookup(kind); ok {
				fmt.Printf("Automatic remediation: %s\n", strategy.Describe())
			} else {
				fmt.Println("Automatic remediation: none (would escalate)")
			}

			if kind == fault.DependencyBreak {
				if pkg := fault.RequiredBy(string(data)); pkg != "" {
					fmt.Printf("Conflicting package: %s\n", pkg)
				}
			}
		},
	}

	return cmd
}
