// Package pipeline turns single landmarks into embedded, stored
// vectors. A Processor composes the catalog client, a source fetcher,
// the chunker, the embedding service, the metadata collector, and the
// vector store into one process-landmark operation.
//
// Processors hold no cross-call mutable state beyond their
// dependencies' own caches, so the orchestrator gives each worker its
// own instance and reuses it for the worker's lifetime.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/catalog"
	"github.com/nyc-landmarks/vectordb/internal/chunker"
	"github.com/nyc-landmarks/vectordb/internal/embeddings"
	"github.com/nyc-landmarks/vectordb/internal/fetch"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metadata"
	"github.com/nyc-landmarks/vectordb/internal/metrics"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/vectorstore"
)

// Processor ingests one landmark from one source.
type Processor interface {
	// Source returns the source type the processor ingests.
	Source() string
	// Process ingests lpNumber and reports what happened. Errors never
	// escape as panics or return values; they land in the Result so a
	// bad landmark cannot take down a batch.
	Process(ctx context.Context, lpNumber string) Result
}

// Deps bundles the services a processor composes. All fields except
// Quality must be non-nil; Quality may be nil or disabled.
type Deps struct {
	Catalog   *catalog.Client
	Collector *metadata.Collector
	Chunker   *chunker.Chunker
	Embedder  *embeddings.Service
	Store     *vectorstore.Client
	PDF       *fetch.PDFFetcher
	Wikipedia *fetch.WikipediaFetcher
	Quality   *fetch.QualityClassifier

	// DeleteExisting removes previously stored vectors for the same
	// landmark and source before upserting, so shrinking documents
	// leave no stale chunks behind.
	DeleteExisting bool
}

// embed generates embeddings for the chunks in place.
func (d Deps) embed(ctx context.Context, chunks []models.Chunk) error {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := d.Embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return err
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return nil
}

// ensureCorrelation guarantees downstream calls and logs share one
// correlation ID per landmark.
func ensureCorrelation(ctx context.Context) context.Context {
	if logging.CorrelationFrom(ctx) == "" {
		ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())
	}
	return ctx
}

func logStart(logger *zap.Logger, lpNumber, source string) {
	logger.Info("landmark_process_start",
		zap.String("operation", "process_landmark"),
		zap.String("lp_number", lpNumber),
		zap.String("source", source),
	)
}

// logComplete emits the completion event and the processed-landmark
// metric for one finished Result.
func logComplete(logger *zap.Logger, res Result) {
	metrics.RecordLandmarkProcessed(res.Source, res.Outcome.String(), res.Duration)

	fields := []zap.Field{
		zap.String("operation", "process_landmark"),
		zap.String("lp_number", res.LandmarkID),
		zap.String("source", res.Source),
		zap.String("outcome", res.Outcome.String()),
		zap.Int("articles_or_pages", res.ArticlesOrPages),
		zap.Int("chunks", res.Chunks),
		zap.Duration("duration", res.Duration),
	}
	if len(res.Errors) > 0 {
		fields = append(fields, zap.Strings("errors", res.Errors))
	}
	if res.Success {
		logger.Info("landmark_process_complete", fields...)
	} else {
		logger.Warn("landmark_process_complete", fields...)
	}
}
