package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report index and catalog statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := buildClients(cfg)
			if err != nil {
				return err
			}
			defer c.logger.Sync()

			stats, err := c.store.Stats(cmd.Context())
			if err != nil {
				return runErr(fmt.Errorf("index stats: %w", err))
			}

			out := map[string]any{
				"index": map[string]any{
					"dimension":     stats.Dimension,
					"total_vectors": stats.TotalVectorCount,
					"namespaces":    stats.Namespaces,
				},
			}
			if total, err := c.catalog.TotalCount(cmd.Context()); err == nil {
				out["catalog"] = map[string]any{"total_landmarks": total}
			} else {
				c.logger.Warn("catalog total unavailable", zap.Error(err))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
