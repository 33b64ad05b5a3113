package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/vectorstore"
)

func newValidateCmd() *cobra.Command {
	var (
		landmark string
		source   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a landmark's stored vectors against the storage invariants",
		Long: `Validate lists the vectors stored for one landmark and checks each
against the storage invariants: deterministic ID shape, required
metadata keys, source consistency, and embedding dimension.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lp := models.NormalizeLpNumber(landmark)
			if !models.ValidLpNumber(lp) {
				return usageErr("--landmark must look like LP-00001, got %q", landmark)
			}
			if source != "" && source != models.SourcePDF && source != models.SourceWikipedia {
				return usageErr("--source must be %q or %q, got %q",
					models.SourcePDF, models.SourceWikipedia, source)
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

			filter := map[string]any{models.MetaLandmarkID: lp}
			if source != "" {
				filter[models.MetaSourceType] = source
			}
			matches, err := c.store.Query(cmd.Context(), vectorstore.QueryRequest{
				TopK:   limit,
				Filter: filter,
			})
			if err != nil {
				return runErr(fmt.Errorf("list vectors: %w", err))
			}
			if len(matches) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no vectors stored for %s\n", lp)
				return nil
			}

			out := cmd.OutOrStdout()
			invalid := 0
			for _, m := range matches {
				report, err := c.store.ValidateVector(cmd.Context(), m.ID)
				if err != nil {
					return runErr(fmt.Errorf("validate %s: %w", m.ID, err))
				}
				if report.Valid() {
					fmt.Fprintf(out, "ok      %s\n", m.ID)
					continue
				}
				invalid++
				fmt.Fprintf(out, "invalid %s\n", m.ID)
				for _, p := range report.Problems {
					fmt.Fprintf(out, "        - %s\n", p)
				}
			}
			fmt.Fprintf(out, "%d vectors checked, %d invalid\n", len(matches), invalid)
			if invalid > 0 {
				return runErr(fmt.Errorf("%d invalid vectors", invalid))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&landmark, "landmark", "", "LP number to validate (required)")
	cmd.Flags().StringVar(&source, "source", "", "restrict to one source: pdf or wikipedia")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum vectors to check")
	_ = cmd.MarkFlagRequired("landmark")

	return cmd
}
