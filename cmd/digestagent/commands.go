package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"DigestAgent/internal/app"
	"DigestAgent/internal/domain"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API together with the daily and digest sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, application *app.Application) error {
				return application.Run(ctx)
			})
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "refresh TOPIC...",
		Short: "Refresh topics now, honouring leases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, application *app.Application) error {
				outcomes, err := application.RefreshNow(ctx, args, date)
				for _, o := range outcomes {
					fmt.Fprintln(cmd.OutOrStdout(), formatOutcome(o))
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "ingestion date YYYY-MM-DD (default today in the service timezone)")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sweep daily|hourly",
		Short:     "Run one ingestion (daily) or digest (hourly) sweep immediately",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"daily", "hourly"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, application *app.Application) error {
				report, err := application.Sweep(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	var (
		topic string
		date  string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the refresh lease of a topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, application *app.Application) error {
				status, err := application.Status(ctx, topic, date)
				if err != nil {
					return err
				}
				last := "never"
				if status.LastRefreshedAt != nil {
					last = status.LastRefreshedAt.Format("2006-01-02 15:04:05 MST")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s refreshing=%t last=%s\n", status.Topic, status.Date, status.IsLeased, last)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "topic name")
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newDigestCmd() *cobra.Command {
	digest := &cobra.Command{
		Use:   "digest",
		Short: "Digest mail operations",
	}

	var user string
	send := &cobra.Command{
		Use:   "send",
		Short: "Send a digest to one user now, ignoring the schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := strconv.ParseInt(user, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid --user %q: %w", user, err)
			}
			return withApp(cmd, func(ctx context.Context, application *app.Application) error {
				if err := application.SendDigest(ctx, userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "digest sent to user %d\n", userID)
				return nil
			})
		},
	}
	send.Flags().StringVar(&user, "user", "", "user id")
	_ = send.MarkFlagRequired("user")

	digest.AddCommand(send)
	return digest
}

func formatOutcome(o domain.RefreshOutcome) string {
	switch {
	case o.Skipped && o.Reason == domain.OutcomeSkippedRecentlyRefreshed.String():
		return fmt.Sprintf("%s\tskipped (%s, %ds remaining)", o.Topic, o.Reason, o.RemainingSeconds)
	case o.Skipped:
		return fmt.Sprintf("%s\tskipped (%s)", o.Topic, o.Reason)
	case o.Success:
		return fmt.Sprintf("%s\tcreated=%d skipped=%d failed=%d", o.Topic, o.ArticlesCreated, o.ArticlesSkipped, o.ArticlesFailed)
	default:
		return fmt.Sprintf("%s\tfailed: %s", o.Topic, o.Error)
	}
}
