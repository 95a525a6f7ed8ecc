package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"DigestAgent/internal/app"
	"DigestAgent/internal/config"
	"DigestAgent/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "digestagent",
		Short:         "Daily news digest: topic ingestion, lease-guarded refresh and scheduled mail",
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newRefreshCmd(),
		newSweepCmd(),
		newStatusCmd(),
		newDigestCmd(),
	)
	return root
}

// withApp loads configuration, builds the application and closes it after fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, application *app.Application) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close application", "error", err)
		}
	}()

	return fn(ctx, application)
}
