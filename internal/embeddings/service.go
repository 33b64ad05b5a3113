// Package embeddings turns chunk text into fixed-dimension vectors via
// the embedding service, with a two-level cache in front of it.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/circuitbreaker"
	"github.com/nyc-landmarks/vectordb/internal/httpclient"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metrics"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/retry"
	"github.com/nyc-landmarks/vectordb/internal/tracing"
)

// Config controls the embedding client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	BatchSize int
	CacheTTL  time.Duration
	MaxLRU    int
	Retry     retry.Policy
	UserAgent string
}

// Hot texts stay in process for an hour; the shared tier keeps them
// for the configured TTL.
const lruTTL = time.Hour

// Service is the embedding client.
type Service struct {
	cfg    Config
	httpw  *circuitbreaker.HTTPWrapper
	cache  EmbeddingCache
	lru    *LocalLRU
	logger *zap.Logger
}

var globalSvc *Service

// Initialize wires the process-wide service. cache may be nil.
func Initialize(cfg Config, cache EmbeddingCache, logger *zap.Logger) {
	globalSvc = NewService(cfg, cache, logger)
}

// Get returns the process-wide service, nil before Initialize.
func Get() *Service { return globalSvc }

// NewService builds an embedding client with its own breaker-guarded
// HTTP client.
func NewService(cfg Config, cache EmbeddingCache, logger *zap.Logger) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.MaxLRU == 0 {
		cfg.MaxLRU = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logging.Module(logger, "embeddings")

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: httpclient.NewCorrelationRoundTripper(nil, cfg.UserAgent),
	}
	return &Service{
		cfg:    cfg,
		httpw:  circuitbreaker.NewHTTPWrapper(client, "embedding", "embedding-service", logger),
		cache:  cache,
		lru:    NewLocalLRU(cfg.MaxLRU),
		logger: logger,
	}
}

// Model returns the configured model name.
func (s *Service) Model() string {
	if s == nil {
		return ""
	}
	return s.cfg.Model
}

// Dimension returns the expected vector dimension.
func (s *Service) Dimension() int {
	if s == nil {
		return 0
	}
	return s.cfg.Dimension
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// GenerateEmbedding returns the vector for one text.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GenerateBatchEmbeddings returns one vector per input text, in input
// order. Cached texts are served locally; the rest go to the service
// in windows of the configured batch size.
func (s *Service) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("embedding service not initialized")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var uncachedTexts []string
	var uncachedIndices []int

	for i, text := range texts {
		key := MakeKey(s.cfg.Model, text)

		if v, ok := s.lru.Get(ctx, key); ok {
			results[i] = v
			metrics.EmbeddingCacheHits.Inc()
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.lru.Set(ctx, key, v, lruTTL)
				metrics.EmbeddingCacheHits.Inc()
				continue
			}
		}

		metrics.EmbeddingCacheMisses.Inc()
		uncachedTexts = append(uncachedTexts, text)
		uncachedIndices = append(uncachedIndices, i)
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	for start := 0; start < len(uncachedTexts); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(uncachedTexts) {
			end = len(uncachedTexts)
		}
		window := uncachedTexts[start:end]

		vectors, err := s.embedWindow(ctx, window)
		if err != nil {
			return nil, err
		}

		for i, vec := range vectors {
			idx := uncachedIndices[start+i]
			results[idx] = vec

			key := MakeKey(s.cfg.Model, window[i])
			s.lru.Set(ctx, key, vec, lruTTL)
			if s.cache != nil {
				s.cache.Set(ctx, key, vec, s.cfg.CacheTTL)
			}
		}
	}

	return results, nil
}

// embedWindow sends one request to the embedding service and validates
// the response shape and dimensions.
func (s *Service) embedWindow(ctx context.Context, window []string) ([][]float32, error) {
	started := time.Now()
	url := s.cfg.BaseURL + "/embeddings"

	var out [][]float32
	err := retry.Do(ctx, s.logger, "embedding_generation", s.cfg.Retry, func(ctx context.Context) error {
		ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
		defer span.End()

		body, err := json.Marshal(embedRequest{Model: s.cfg.Model, Input: window})
		if err != nil {
			return retry.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		}
		tracing.InjectTraceparent(ctx, req)

		resp, err := s.httpw.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.WrapStatus(resp.StatusCode, string(msg))
		}

		var er embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return err
		}
		if len(er.Embeddings) != len(window) {
			return retry.Permanent(fmt.Errorf("embedding service returned %d vectors for %d texts", len(er.Embeddings), len(window)))
		}

		vectors := make([][]float32, len(er.Embeddings))
		for i, embedding := range er.Embeddings {
			if len(embedding) != s.cfg.Dimension {
				return retry.Permanent(fmt.Errorf("input %d: %w", i,
					&models.DimensionMismatchError{Got: len(embedding), Want: s.cfg.Dimension}))
			}
			vec := make([]float32, len(embedding))
			for j, f := range embedding {
				v := float32(f)
				if math.IsNaN(f) || math.IsInf(float64(v), 0) {
					return retry.Permanent(fmt.Errorf("input %d: non-finite value at dimension %d", i, j))
				}
				vec[j] = v
			}
			vectors[i] = vec
		}
		out = vectors
		return nil
	})

	duration := time.Since(started)
	if err != nil {
		metrics.RecordEmbedding(s.cfg.Model, "error", 0, duration)
		return nil, err
	}

	metrics.RecordEmbedding(s.cfg.Model, "ok", len(out), duration)
	logging.WithCorrelation(ctx, s.logger).Info("embedding_generation",
		zap.String("operation", "embedding_generation"),
		zap.String("model", s.cfg.Model),
		zap.Int("batch_size", len(window)),
		zap.Duration("duration", duration),
	)
	return out, nil
}
