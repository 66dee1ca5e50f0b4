package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadcapture/internal/server"
)

type pendingView struct {
	ID         int64           `json:"id"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Raw        string          `json:"raw,omitempty"`
}

func newOutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspects queued lead submissions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Prints queued submissions as JSON, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := server.PendingSubmissions(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			views := make([]pendingView, 0, len(pending))
			for _, p := range pending {
				v := pendingView{ID: p.ID, EnqueuedAt: p.EnqueuedAt}
				if json.Valid(p.Payload) {
					v.Payload = json.RawMessage(p.Payload)
				} else {
					v.Raw = string(p.Payload)
				}
				views = append(views, v)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(views)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Prints the number of queued submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := server.PendingSubmissions(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), len(pending))
			return err
		},
	})
	return cmd
}
