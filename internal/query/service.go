// Package query answers natural-language questions against the vector
// index: embed the query text, filter by landmark and source, and
// return attributed passages.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/catalog"
	"github.com/nyc-landmarks/vectordb/internal/embeddings"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metadata"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/vectorstore"
)

// ValidationError reports a request the caller must fix. The HTTP
// layer maps it to a 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Config tunes the query service.
type Config struct {
	// MaxTopK caps how many matches one query may request.
	MaxTopK int
	// NameCacheTTL bounds the landmark display name cache.
	NameCacheTTL time.Duration
}

// Request is one text query. TopK must already be resolved to a
// concrete value; the HTTP layer substitutes its default for an absent
// field before calling in.
type Request struct {
	Text       string
	TopK       int
	LandmarkID string
	SourceType string
}

// Match is one retrieved passage with attribution.
type Match struct {
	ID           string  `json:"id"`
	Score        float32 `json:"score"`
	LandmarkID   string  `json:"landmark_id"`
	LandmarkName string  `json:"landmark_name,omitempty"`
	SourceType   string  `json:"source_type"`
	Text         string  `json:"text"`
	ArticleTitle string  `json:"article_title,omitempty"`
	ArticleURL   string  `json:"article_url,omitempty"`
}

// Response is the query API payload.
type Response struct {
	Matches       []Match `json:"matches"`
	Count         int     `json:"count"`
	CorrelationID string  `json:"correlation_id"`
}

// Service embeds query text and searches the vector index.
type Service struct {
	cfg      Config
	embedder *embeddings.Service
	store    *vectorstore.Client
	catalog  *catalog.Client
	names    *metadata.TTLCache[string, string]
	logger   *zap.Logger
}

// NewService builds a query service. catalogClient may be nil; matches
// then carry no display names.
func NewService(cfg Config, embedder *embeddings.Service, store *vectorstore.Client, catalogClient *catalog.Client, logger *zap.Logger) *Service {
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 25
	}
	if cfg.NameCacheTTL <= 0 {
		cfg.NameCacheTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		catalog:  catalogClient,
		names:    metadata.NewTTLCache[string, string](cfg.NameCacheTTL, 4096),
		logger:   logging.Module(logger, "query"),
	}
}

// SearchText answers one free-text query, optionally filtered by
// landmark and source type.
func (s *Service) SearchText(ctx context.Context, req Request) (*Response, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	vector, err := s.embedder.GenerateEmbedding(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var filter map[string]any
	if req.LandmarkID != "" || req.SourceType != "" {
		filter = make(map[string]any, 2)
		if req.LandmarkID != "" {
			filter[models.MetaLandmarkID] = req.LandmarkID
		}
		if req.SourceType != "" {
			filter[models.MetaSourceType] = req.SourceType
		}
	}

	matches, err := s.store.Query(ctx, vectorstore.QueryRequest{
		Vector: vector,
		TopK:   req.TopK,
		Filter: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return s.buildResponse(ctx, matches), nil
}

// SearchLandmark answers a query scoped to one landmark.
func (s *Service) SearchLandmark(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.LandmarkID) == "" {
		return nil, &ValidationError{Field: "landmark_id", Reason: "must not be empty"}
	}
	return s.SearchText(ctx, req)
}

func (s *Service) validate(req *Request) error {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if req.TopK < 1 || req.TopK > s.cfg.MaxTopK {
		return &ValidationError{Field: "top_k", Reason: fmt.Sprintf("must be between 1 and %d", s.cfg.MaxTopK)}
	}
	switch req.SourceType {
	case "", models.SourcePDF, models.SourceWikipedia:
	default:
		return &ValidationError{Field: "source_type", Reason: `must be "pdf" or "wikipedia"`}
	}
	if req.LandmarkID != "" {
		req.LandmarkID = models.NormalizeLpNumber(req.LandmarkID)
		if !models.ValidLpNumber(req.LandmarkID) {
			return &ValidationError{Field: "landmark_id", Reason: "must match LP-XXXXX"}
		}
	}
	return nil
}

func (s *Service) buildResponse(ctx context.Context, matches []models.QueryMatch) *Response {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		match := Match{
			ID:           m.ID,
			Score:        m.Score,
			Text:         m.Text,
			LandmarkID:   metaString(m.Metadata, models.MetaLandmarkID),
			SourceType:   metaString(m.Metadata, models.MetaSourceType),
			ArticleTitle: metaString(m.Metadata, models.MetaArticleTitle),
			ArticleURL:   metaString(m.Metadata, models.MetaArticleURL),
		}
		if match.LandmarkID != "" {
			match.LandmarkName = s.landmarkName(ctx, match.LandmarkID)
		}
		out = append(out, match)
	}
	return &Response{
		Matches:       out,
		Count:         len(out),
		CorrelationID: logging.CorrelationFrom(ctx),
	}
}

// landmarkName resolves a display name through the cache. Lookup
// failures cost only the name, never the request.
func (s *Service) landmarkName(ctx context.Context, lpNumber string) string {
	if s.catalog == nil {
		return ""
	}
	if name, ok := s.names.Get(lpNumber); ok {
		return name
	}
	lm, err := s.catalog.GetLandmark(ctx, lpNumber)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			// Cache the miss so unknown IDs do not hammer the catalog.
			s.names.Set(lpNumber, "")
			return ""
		}
		s.logger.Warn("landmark name lookup failed",
			zap.String("lp_number", lpNumber),
			zap.Error(err),
		)
		return ""
	}
	s.names.Set(lpNumber, lm.Name)
	return lm.Name
}

func metaString(meta models.FlatMetadata, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
