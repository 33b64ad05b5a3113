// The vectordb server exposes the landmark query API over HTTPS JSON
// plus health and Prometheus endpoints. Batch ingestion lives in
// cmd/ingest.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/catalog"
	"github.com/nyc-landmarks/vectordb/internal/circuitbreaker"
	"github.com/nyc-landmarks/vectordb/internal/config"
	"github.com/nyc-landmarks/vectordb/internal/embeddings"
	"github.com/nyc-landmarks/vectordb/internal/health"
	"github.com/nyc-landmarks/vectordb/internal/httpapi"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metrics"
	"github.com/nyc-landmarks/vectordb/internal/query"
	"github.com/nyc-landmarks/vectordb/internal/ratecontrol"
	"github.com/nyc-landmarks/vectordb/internal/tracing"
	"github.com/nyc-landmarks/vectordb/internal/vectorstore"
	"github.com/nyc-landmarks/vectordb/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("initialize logging: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("tracing unavailable", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(flushCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	circuitbreaker.StartMetricsCollection()
	if cfg.Metrics.ListenAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.Metrics.ListenAddr, logger); err != nil {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	// The shared Redis tier is optional; a failed connection costs
	// cache hits, not availability.
	var cache embeddings.EmbeddingCache
	var redisCache *embeddings.RedisCache
	if addr := cfg.Embedding.Cache.RedisAddr; addr != "" {
		rc, err := embeddings.NewRedisCache(addr)
		if err != nil {
			logger.Warn("embedding cache unavailable",
				zap.String("addr", addr),
				zap.Error(err),
			)
		} else {
			cache = rc
			redisCache = rc
		}
	}

	embeddings.Initialize(embeddings.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
		BatchSize: cfg.Embedding.BatchSize,
		CacheTTL:  cfg.Embedding.Cache.TTL,
		Retry:     cfg.Retry,
	}, cache, logger)

	if err := vectorstore.Initialize(vectorstore.Config{
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
	}, logger); err != nil {
		logger.Fatal("vector store unavailable", zap.Error(err))
	}

	limiter := ratecontrol.New(ratecontrol.Config{DefaultRPS: cfg.Catalog.RateLimitRPS}, logger)
	cat, err := catalog.NewClient(catalog.Config{
		BaseURL:  cfg.Catalog.BaseURL,
		Timeout:  cfg.Catalog.Timeout,
		PageSize: cfg.Catalog.PageSize,
		Retry:    cfg.Retry,
	}, limiter, logger)
	if err != nil {
		logger.Fatal("catalog client", zap.Error(err))
	}

	svc := query.NewService(query.Config{MaxTopK: cfg.API.MaxTopK},
		embeddings.Get(), vectorstore.Get(), cat, logger)

	hm := health.NewManager(logger)
	mustRegister(logger, hm, health.NewVectorStoreChecker(vectorstore.Get()))
	mustRegister(logger, hm, health.NewCatalogChecker(cat))
	mustRegister(logger, hm, health.NewFuncChecker("embeddings", false, time.Second,
		func(ctx context.Context) health.CheckResult {
			res := health.CheckResult{Component: "embeddings", Status: health.StatusHealthy}
			if embeddings.Get() == nil {
				res.Status = health.StatusUnhealthy
				res.Message = "embedding service not configured"
			}
			return res
		}))
	if redisCache != nil {
		mustRegister(logger, hm, health.NewRedisChecker(redisCache))
	}

	qh := httpapi.NewQueryHandler(svc, cfg.API.DefaultTopK, logger)
	hh := health.NewHTTPHandler(hm, version.Version, logger)
	server := httpapi.NewServer(httpapi.Config{
		ListenAddr:  cfg.API.ListenAddr,
		TLSCertFile: cfg.API.TLSCertFile,
		TLSKeyFile:  cfg.API.TLSKeyFile,
	}, httpapi.NewMux(qh, hh), logger)

	logger.Info("query API starting",
		zap.String("version", version.Version),
		zap.String("listen_addr", cfg.API.ListenAddr),
	)
	if err := server.Start(ctx); err != nil {
		logger.Fatal("query API failed", zap.Error(err))
	}
	logger.Info("query API stopped")
}

func mustRegister(logger *zap.Logger, hm *health.Manager, c health.Checker) {
	if err := hm.Register(c); err != nil {
		logger.Fatal("register health checker", zap.Error(err))
	}
}
