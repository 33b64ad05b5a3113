package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyc-landmarks/vectordb/internal/chunker"
	"github.com/nyc-landmarks/vectordb/internal/fetch"
	"github.com/nyc-landmarks/vectordb/internal/metadata"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/orchestrator"
	"github.com/nyc-landmarks/vectordb/internal/pipeline"
	"github.com/nyc-landmarks/vectordb/internal/ratecontrol"
)

func newRunCmd() *cobra.Command {
	var (
		source         string
		landmarks      []string
		all            bool
		limit          int
		parallelism    int
		deleteExisting bool
		reportDir      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process landmarks into the vector index",
		Long: `Run processes each selected landmark through the chosen source
pipeline and upserts the resulting vectors. Landmarks come either from
--landmarks or from the full catalog with --all.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if source != models.SourcePDF && source != models.SourceWikipedia {
				return usageErr("--source must be %q or %q, got %q",
					models.SourcePDF, models.SourceWikipedia, source)
			}
			if all == (len(landmarks) > 0) {
				return usageErr("specify exactly one of --landmarks or --all")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("parallelism") {
				cfg.Orchestrator.Parallelism = parallelism
			}
			if cmd.Flags().Changed("delete-existing") {
				cfg.Orchestrator.DeleteExisting = deleteExisting
			}
			if cmd.Flags().Changed("report-dir") {
				cfg.Orchestrator.ReportDir = reportDir
			}
			if cfg.Orchestrator.Parallelism < 1 {
				return usageErr("--parallelism must be at least 1, got %d", cfg.Orchestrator.Parallelism)
			}

			c, err := buildClients(cfg)
			if err != nil {
				return err
			}
			defer c.logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps := buildDeps(c)
			factory := func() pipeline.Processor {
				if source == models.SourceWikipedia {
					return pipeline.NewWikipediaProcessor(deps, c.logger)
				}
				return pipeline.NewPdfProcessor(deps, c.logger)
			}

			orch := orchestrator.New(orchestrator.Config{
				Source:             source,
				Parallelism:        cfg.Orchestrator.Parallelism,
				PerLandmarkTimeout: cfg.Orchestrator.PerLandmarkTimeout,
				GlobalTimeout:      cfg.Orchestrator.GlobalTimeout,
				ReportDir:          cfg.Orchestrator.ReportDir,
			}, factory, c.logger)

			feed := orchestrator.SliceFeed(landmarks)
			if all {
				feed = orchestrator.CatalogFeed(c.catalog, cfg.Catalog.PageSize, limit)
			}

			summary, err := orch.Run(ctx, feed)
			if err != nil {
				return runErr(fmt.Errorf("ingestion aborted: %w", err))
			}

			printSummary(cmd, summary)
			if code := summary.ExitCode(); code != 0 {
				return &exitError{code: code, err: errors.New("every attempted landmark failed")}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", models.SourcePDF, "document source: pdf or wikipedia")
	cmd.Flags().StringSliceVar(&landmarks, "landmarks", nil, "comma-separated LP numbers to process")
	cmd.Flags().BoolVar(&all, "all", false, "process every landmark in the catalog")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many landmarks with --all (0 = no limit)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "concurrent landmark workers (overrides config)")
	cmd.Flags().BoolVar(&deleteExisting, "delete-existing", true, "delete a landmark's stored vectors before upserting")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "write the JSON run report into this directory")

	return cmd
}

// buildDeps assembles the per-run pipeline dependencies. Every handle
// is safe for concurrent use, so all workers share one set.
func buildDeps(c *clients) pipeline.Deps {
	cfg := c.cfg
	wikiLimiter := ratecontrol.New(ratecontrol.Config{
		DefaultRPS: cfg.Fetch.WikipediaRateLimitRPS,
	}, c.logger)

	var quality *fetch.QualityClassifier
	if cfg.Fetch.QualityURL != "" {
		quality = fetch.NewQualityClassifier(fetch.QualityConfig{
			URL:   cfg.Fetch.QualityURL,
			Retry: cfg.Retry,
		}, c.logger)
	}

	return pipeline.Deps{
		Catalog: c.catalog,
		Collector: metadata.NewCollector(metadata.Config{
			CacheTTL:     cfg.Metadata.CacheTTL,
			MaxBuildings: cfg.Metadata.MaxBuildings,
		}, c.catalog, c.logger),
		Chunker: chunker.New(chunker.Config{
			MaxTokens:     cfg.Chunking.MaxTokens,
			OverlapTokens: cfg.Chunking.OverlapTokens,
		}),
		Embedder: c.embedder,
		Store:    c.store,
		PDF: fetch.NewPDFFetcher(fetch.PDFConfig{
			Timeout:  cfg.Fetch.PdfTimeout,
			MaxBytes: cfg.Fetch.PdfMaxBytes,
			Retry:    cfg.Retry,
		}, nil, c.logger),
		Wikipedia: fetch.NewWikipediaFetcher(fetch.WikipediaConfig{
			ReadTimeout:    cfg.Fetch.WikipediaReadTimeout,
			ConnectTimeout: cfg.Fetch.WikipediaConnectTimeout,
			Retry:          cfg.Retry,
		}, wikiLimiter, c.logger),
		Quality:        quality,
		DeleteExisting: cfg.Orchestrator.DeleteExisting,
	}
}

func printSummary(cmd *cobra.Command, s *orchestrator.RunSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "source:     %s\n", s.Source)
	fmt.Fprintf(out, "attempted:  %d\n", s.Attempted)
	fmt.Fprintf(out, "succeeded:  %d (%d without content)\n", s.Succeeded, s.NoContent)
	fmt.Fprintf(out, "failed:     %d\n", s.Failed)
	fmt.Fprintf(out, "chunks:     %d\n", s.Chunks)
	fmt.Fprintf(out, "duration:   %dms\n", s.DurationMS)
	for _, r := range s.Results {
		if r.Success {
			continue
		}
		fmt.Fprintf(out, "  failed %s: %v\n", r.LandmarkID, r.Errors)
	}
}
