package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadcapture/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the lead service",
		Long: `Starts the lead service HTTP API: the landing page, lead submission
with keyword tagging and scoring, the keyword catalogue and stats.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.BuildLeadService(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return fmt.Errorf("build lead service: %w", err)
			}
			return runApp(cmd.Context(), app)
		},
	}
}

func newEdgeCmd() *cobra.Command {
	var ephemeral bool
	cmd := &cobra.Command{
		Use:   "edge",
		Short: "Runs the offline-capable edge gateway",
		Long: `Starts the edge gateway in front of the lead service. Form submissions
made while the lead service is unreachable are queued in the outbox and
replayed when connectivity returns.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg
			if ephemeral {
				cfg.Outbox.Ephemeral = true
			}
			app, err := server.BuildEdge(cmd.Context(), cfg, e.logger)
			if err != nil {
				return fmt.Errorf("build edge: %w", err)
			}
			return runApp(cmd.Context(), app)
		},
	}
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep the outbox in memory (queued submissions are lost on exit)")
	return cmd
}

func runApp(ctx context.Context, app *server.App) error {
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
