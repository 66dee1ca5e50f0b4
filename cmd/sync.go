package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/server"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replays queued submissions once",
		Long: `Probes the lead service and, when it is reachable, delivers every queued
submission in order. Entries that fail stay queued.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			result, err := server.SyncOnce(cmd.Context(), e.cfg, e.logger)
			if err != nil && result.Attempted == 0 {
				return err
			}
			e.logger.Info("sync finished",
				zap.Int("delivered", result.Delivered),
				zap.Int("remaining", result.Remaining))
			if encErr := json.NewEncoder(cmd.OutOrStdout()).Encode(result); encErr != nil {
				return encErr
			}
			return err
		},
	}
}

func newPrecacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "precache",
		Short: "Fetches the install assets into the edge cache",
		Long: `Activates the configured cache generation, removing entries from older
generations, and stores the install asset list fetched from the lead service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			report, err := server.Precache(cmd.Context(), e.cfg, e.logger)
			if encErr := json.NewEncoder(cmd.OutOrStdout()).Encode(report); encErr != nil {
				return encErr
			}
			return err
		},
	}
}
