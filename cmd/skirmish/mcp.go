package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/skirmish/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			deps := mcp.Deps{
				Budget:      a.governor,
				Spend:       a.ledger,
				Environment: a.cfg.Environment,
				Version:     version,
				Logger:      a.logger,
			}
			if c, err := a.openCache(ctx); err == nil {
				deps.Cache = c
			}
			arch, err := a.openArchive()
			if err != nil {
				return err
			}
			if arch != nil {
				deps.Battles = arch
			}

			return mcp.New(deps).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
