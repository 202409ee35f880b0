package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve budget, cache and battle status over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			deps := server.Deps{Budget: a.governor, Logger: a.logger}
			c, err := a.openCache(ctx)
			if err != nil {
				a.logger.Warn("resource cache unavailable", zap.Error(err))
			} else {
				deps.Cache = c
			}
			arch, err := a.openArchive()
			if err != nil {
				return err
			}
			if arch != nil {
				deps.Battles = arch
			}

			if listen == "" {
				listen = a.cfg.Serve.Listen
			}
			return server.New(listen, deps).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}
