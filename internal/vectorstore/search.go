package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metrics"
	"github.com/nyc-landmarks/vectordb/internal/models"
)

// Query runs one filtered similarity search. A nil query vector is
// replaced with the zero vector so callers can list vectors by metadata
// alone.
func (c *Client) Query(ctx context.Context, q QueryRequest) ([]models.QueryMatch, error) {
	if c == nil {
		return nil, fmt.Errorf("vectorstore: client not initialized")
	}
	started := time.Now()

	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}
	vector := q.Vector
	if vector == nil {
		vector = make([]float32, c.cfg.Dimension)
	}

	logger := logging.WithCorrelation(ctx, c.logger)
	logger.Info("vector_query_start",
		zap.String("operation", "vector_query"),
		zap.Int("top_k", topK),
		zap.Strings("filter_keys", filterKeys(q.Filter)),
		zap.String("id_prefix", q.IDPrefix),
	)

	var resp queryWireResponse
	err := c.doJSON(ctx, "vector_query", http.MethodPost, "/query", c.cfg.Retry, queryWireRequest{
		Vector:          vector,
		TopK:            topK,
		Filter:          equalityFilter(q.Filter),
		IncludeMetadata: true,
		IncludeValues:   q.IncludeValues,
		Namespace:       c.cfg.Namespace,
	}, &resp)
	if err != nil {
		metrics.RecordVectorQuery("error", time.Since(started))
		return nil, err
	}

	prefix := strings.ToLower(q.IDPrefix)
	matches := make([]models.QueryMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if prefix != "" && !strings.HasPrefix(strings.ToLower(m.ID), prefix) {
			continue
		}
		match := models.QueryMatch{ID: m.ID, Score: m.Score, Metadata: m.Metadata, Values: m.Values}
		if text, ok := m.Metadata[models.MetaText].(string); ok {
			match.Text = text
		}
		matches = append(matches, match)
	}

	metrics.RecordVectorQuery("success", time.Since(started))
	logger.Info("vector_query_complete",
		zap.String("operation", "vector_query"),
		zap.Int("matches", len(matches)),
		zap.Duration("duration", time.Since(started)),
	)
	return matches, nil
}

// GetVector retrieves one stored vector as a match. A missing ID
// returns nil without error.
func (c *Client) GetVector(ctx context.Context, id string) (*models.QueryMatch, error) {
	vectors, err := c.Fetch(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	rec, ok := vectors[id]
	if !ok {
		return nil, nil
	}
	match := &models.QueryMatch{ID: rec.ID, Metadata: rec.Metadata, Values: rec.Values}
	if text, ok := rec.Metadata[models.MetaText].(string); ok {
		match.Text = text
	}
	return match, nil
}

// ValidateVector fetches one vector and checks it against the storage
// invariants: deterministic ID shape, required metadata keys, a source
// type consistent with the ID, and values of the configured dimension.
// The returned error covers transport failures only; invariant
// violations land in the report.
func (c *Client) ValidateVector(ctx context.Context, id string) (*ValidationReport, error) {
	report := &ValidationReport{ID: id}
	if !models.ValidVectorID(id) {
		report.Problems = append(report.Problems, "id does not match a deterministic id shape")
	}

	vectors, err := c.Fetch(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	rec, ok := vectors[id]
	if !ok {
		report.Problems = append(report.Problems, "vector not found")
		return report, nil
	}

	switch {
	case len(rec.Values) == 0:
		report.Problems = append(report.Problems, "values missing")
	case len(rec.Values) != c.cfg.Dimension:
		report.Problems = append(report.Problems,
			fmt.Sprintf("values have dimension %d, want %d", len(rec.Values), c.cfg.Dimension))
	}
	for _, key := range models.RequiredMetaKeys {
		if _, ok := rec.Metadata[key]; !ok {
			report.Problems = append(report.Problems, "metadata missing required key "+key)
		}
	}
	if got, ok := rec.Metadata[models.MetaSourceType].(string); ok {
		if want := models.SourceTypeFromVectorID(id); got != want {
			report.Problems = append(report.Problems,
				fmt.Sprintf("source_type %q inconsistent with id prefix, want %q", got, want))
		}
	}
	if models.SourceTypeFromVectorID(id) == models.SourceWikipedia {
		for _, key := range []string{models.MetaArticleTitle, models.MetaArticleURL} {
			if _, ok := rec.Metadata[key]; !ok {
				report.Problems = append(report.Problems, "metadata missing required key "+key)
			}
		}
	}
	return report, nil
}

// Fetch retrieves stored vectors by ID. Unknown IDs are simply absent
// from the result.
func (c *Client) Fetch(ctx context.Context, ids []string) (map[string]models.VectorRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := url.Values{}
	for _, id := range ids {
		query.Add("ids", id)
	}
	if c.cfg.Namespace != "" {
		query.Set("namespace", c.cfg.Namespace)
	}

	var resp fetchResponse
	err := c.doJSON(ctx, "vector_fetch", http.MethodGet, "/vectors/fetch?"+query.Encode(), c.cfg.Retry, nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Vectors, nil
}

// Stats describes the remote index.
func (c *Client) Stats(ctx context.Context) (*IndexStats, error) {
	var stats IndexStats
	err := c.doJSON(ctx, "index_stats", http.MethodPost, "/describe_index_stats", c.cfg.Retry, struct{}{}, &stats)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Validate confirms the remote index is reachable and its dimension
// matches the embedding dimension this pipeline produces.
func (c *Client) Validate(ctx context.Context) error {
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.Dimension != c.cfg.Dimension {
		return &models.DimensionMismatchError{Got: stats.Dimension, Want: c.cfg.Dimension}
	}
	return nil
}

// equalityFilter translates flat key/value pairs to the data plane's
// filter language: every entry becomes an $eq match, combined
// implicitly with AND.
func equalityFilter(filter map[string]any) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = map[string]any{"$eq": v}
	}
	return out
}

func filterKeys(filter map[string]any) []string {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
