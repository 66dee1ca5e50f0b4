package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/config"
	"github.com/JakeFAU/leadcapture/internal/logging"
)

var cfgFile string

// envKeyType is the key for storing the command environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env carries what every subcommand needs.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// newEnv is the environment factory. It's a variable so tests can swap it.
var newEnv = func(path string) (*env, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadcapture",
		Short: "Lead capture service and offline-capable edge gateway.",
		Long: `leadcapture runs the lead generation backend (serve) and the edge gateway
(edge) that keeps the lead form working while the backend is unreachable.
Operator commands inspect and replay the edge outbox.`,
		SilenceUsage: true,

		// Load configuration once and hand it to the subcommand through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, e))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok && e != nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the LEADCAPTURE_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEdgeCmd())
	cmd.AddCommand(newOutboxCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newPrecacheCmd())

	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	if ctx == nil {
		return nil, fmt.Errorf("command context is nil")
	}
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, fmt.Errorf("command environment not initialized")
	}
	return e, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "leadcapture:", err)
		os.Exit(1)
	}
}
