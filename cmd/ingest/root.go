package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/catalog"
	"github.com/nyc-landmarks/vectordb/internal/config"
	"github.com/nyc-landmarks/vectordb/internal/embeddings"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/ratecontrol"
	"github.com/nyc-landmarks/vectordb/internal/vectorstore"
	"github.com/nyc-landmarks/vectordb/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "vectordb-ingest",
		Short:   "Batch ingestion for the NYC landmarks vector index",
		Version: version.Version,
		Long: `vectordb-ingest turns landmark source documents into embedded,
metadata-rich vectors in the remote index.

Examples:
  # Ingest designation report PDFs for two landmarks
  vectordb-ingest run --source pdf --landmarks LP-00001,LP-00009

  # Ingest Wikipedia articles for the whole catalog, 8 at a time
  vectordb-ingest run --source wikipedia --all --parallelism 8

  # Check stored vectors against the storage invariants
  vectordb-ingest validate --landmark LP-00001 --source pdf

  # Print one stored vector
  vectordb-ingest inspect LP-00001-chunk-0

  # Index and catalog statistics
  vectordb-ingest stats`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is a local development convenience; absence is not
			// an error.
			if _, err := os.Stat(".env"); err == nil {
				if err := godotenv.Load(); err != nil {
					fmt.Fprintf(os.Stderr, "warning: load .env: %v\n", err)
				}
			}
		},
	}

	root.AddCommand(newRunCmd(), newValidateCmd(), newStatsCmd(), newInspectCmd())
	return root
}

// loadConfig reads and checks the configuration for an ingestion
// command. Failures map to exit code 2.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, configErr(err)
	}
	if err := cfg.ValidateIngest(); err != nil {
		return nil, configErr(err)
	}
	return cfg, nil
}

// clients bundles the upstream handles shared by the subcommands.
type clients struct {
	cfg      *config.Config
	logger   *zap.Logger
	catalog  *catalog.Client
	store    *vectorstore.Client
	embedder *embeddings.Service
}

func buildClients(cfg *config.Config) (*clients, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, configErr(fmt.Errorf("initialize logging: %w", err))
	}

	limiter := ratecontrol.New(ratecontrol.Config{DefaultRPS: cfg.Catalog.RateLimitRPS}, logger)
	cat, err := catalog.NewClient(catalog.Config{
		BaseURL:  cfg.Catalog.BaseURL,
		Timeout:  cfg.Catalog.Timeout,
		PageSize: cfg.Catalog.PageSize,
		Retry:    cfg.Retry,
	}, limiter, logger)
	if err != nil {
		return nil, configErr(fmt.Errorf("catalog client: %w", err))
	}

	store, err := vectorstore.NewClient(vectorstore.Config{
		IndexHost:        cfg.VectorStore.IndexHost,
		APIKey:           cfg.VectorStore.APIKey,
		IndexName:        cfg.VectorStore.IndexName,
		Namespace:        cfg.VectorStore.Namespace,
		Timeout:          cfg.VectorStore.Timeout,
		Dimension:        cfg.Embedding.Dimension,
		UpsertBatchSize:  cfg.VectorStore.UpsertBatchSize,
		UpsertMaxRetries: cfg.VectorStore.UpsertMaxRetries,
		DeleteScanLimit:  cfg.VectorStore.DeleteScanLimit,
		Retry:            cfg.Retry,
	}, logger)
	if err != nil {
		return nil, configErr(fmt.Errorf("vector store client: %w", err))
	}

	var cache embeddings.EmbeddingCache
	if addr := cfg.Embedding.Cache.RedisAddr; addr != "" {
		rc, err := embeddings.NewRedisCache(addr)
		if err != nil {
			logger.Warn("embedding cache unavailable", zap.String("addr", addr), zap.Error(err))
		} else {
			cache = rc
		}
	}
	embedder := embeddings.NewService(embeddings.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
		BatchSize: cfg.Embedding.BatchSize,
		CacheTTL:  cfg.Embedding.Cache.TTL,
		Retry:     cfg.Retry,
	}, cache, logger)

	return &clients{
		cfg:      cfg,
		logger:   logger,
		catalog:  cat,
		store:    store,
		embedder: embedder,
	}, nil
}
