package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Ingestion metrics
	LandmarksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nycvdb_landmarks_processed_total",
			Help: "Total number of landmarks processed by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	LandmarkProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nycvdb_landmark_processing_duration_seconds",
			Help:    "Per-landmark processing duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	ChunksProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nycvdb_chunks_produced_total",
			Help: "Total number of text chunks produced",
		},
		[]string{"source"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nycvdb_embedding_requests_total",
			Help: "Total number of embedding service requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nycvdb_embeddings_generated_total",
			Help: "Total number of embedding vectors generated",
		},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nycvdb_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nycvdb_embedding_cache_hits_total",
			Help: "Total number of embedding cache hits",
		},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nycvdb_embedding_cache_misses_total",
			Help: "Total number of embedding cache misses",
		},
	)

	// Vector store metrics
	UpsertBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nycvdb_upsert_batches_total",
			Help: "Total number of upsert batches by status",
		},
		[]string{"status"},
	)

	VectorsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nycvdb_vectors_upserted_total",
			Help: "Total number of vectors upserted",
		},
	)

	VectorQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nycvdb_vector_queries_total",
			Help: "Total number of vector queries by status",
		},
		[]string{"status"},
	)

	VectorQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nycvdb_vector_query_duration_seconds",
			Help:    "Vector query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VectorsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nycvdb_vectors_deleted_total",
			Help: "Total number of vectors deleted",
		},
	)

	// HTTP API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nycvdb_http_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nycvdb_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// RecordLandmarkProcessed records one finished landmark.
func RecordLandmarkProcessed(source, outcome string, duration time.Duration) {
	LandmarksProcessed.WithLabelValues(source, outcome).Inc()
	LandmarkProcessingDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordEmbedding records one embedding service round trip.
func RecordEmbedding(model, status string, vectors int, duration time.Duration) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if vectors > 0 {
		EmbeddingsGenerated.Add(float64(vectors))
	}
	if duration > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(duration.Seconds())
	}
}

// RecordUpsertBatch records one upsert batch attempt.
func RecordUpsertBatch(status string, vectors int) {
	UpsertBatches.WithLabelValues(status).Inc()
	if status == "success" && vectors > 0 {
		VectorsUpserted.Add(float64(vectors))
	}
}

// RecordVectorQuery records one vector query.
func RecordVectorQuery(status string, duration time.Duration) {
	VectorQueries.WithLabelValues(status).Inc()
	if duration > 0 {
		VectorQueryDuration.Observe(duration.Seconds())
	}
}

// RecordHTTPRequest records one API request.
func RecordHTTPRequest(route string, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Serve exposes /metrics on addr. It blocks, so callers run it in a
// goroutine; an empty addr disables the endpoint.
func Serve(addr string, logger *zap.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
