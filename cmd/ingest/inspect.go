package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyc-landmarks/vectordb/internal/models"
)

func newInspectCmd() *cobra.Command {
	var showValues bool

	cmd := &cobra.Command{
		Use:   "inspect <vector-id>",
		Short: "Print one stored vector by its deterministic ID",
		Long: `Inspect fetches a single vector and prints its text and metadata,
for example after a validate run flagged it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !models.ValidVectorID(id) {
				return usageErr("%q does not look like a stored vector ID", id)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := buildClients(cfg)
			if err != nil {
				return err
			}
			defer c.logger.Sync()

			match, err := c.store.GetVector(cmd.Context(), id)
			if err != nil {
				return runErr(fmt.Errorf("fetch vector: %w", err))
			}
			if match == nil {
				return runErr(fmt.Errorf("vector %s not found", id))
			}

			out := map[string]any{
				"id":       match.ID,
				"text":     match.Text,
				"metadata": match.Metadata,
			}
			if showValues {
				out["values"] = match.Values
			} else {
				out["dimension"] = len(match.Values)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&showValues, "values", false, "include the embedding values in the output")

	return cmd
}
