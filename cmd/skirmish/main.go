package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/pario-ai/skirmish/pkg/errs"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "skirmish",
		Short:         "Skirmish: budget-governed simulated conversation battles",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "skirmish.yaml", "path to config file")

	root.AddCommand(
		newRunCmd(&configPath),
		newBudgetCmd(&configPath),
		newCacheCmd(&configPath),
		newSpendCmd(&configPath),
		newBattlesCmd(&configPath),
		newServeCmd(&configPath),
		newMCPCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(errs.ExitCode(err))
	}
}
