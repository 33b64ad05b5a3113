package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/httpclient"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metadata"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/retry"
)

// ErrQualityDisabled reports that no quality service URL is configured.
var ErrQualityDisabled = errors.New("fetch: quality service not configured")

// QualityConfig points at the article quality prediction service. An
// empty URL disables classification.
type QualityConfig struct {
	URL       string
	Timeout   time.Duration
	CacheTTL  time.Duration
	Retry     retry.Policy
	UserAgent string
}

// QualityClassifier predicts a Wikipedia article's quality rating from
// its revision ID. Predictions are immutable per revision, so results
// are cached.
type QualityClassifier struct {
	cfg    QualityConfig
	http   *http.Client
	cache  *metadata.TTLCache[int64, *models.ArticleQuality]
	logger *zap.Logger
}

// NewQualityClassifier builds a classifier for cfg.URL.
func NewQualityClassifier(cfg QualityConfig, logger *zap.Logger) *QualityClassifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QualityClassifier{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: httpclient.NewCorrelationRoundTripper(nil, cfg.UserAgent),
		},
		cache:  metadata.NewTTLCache[int64, *models.ArticleQuality](cfg.CacheTTL, 1000),
		logger: logging.Module(logger, "fetch.quality"),
	}
}

// Enabled reports whether a quality service is configured.
func (q *QualityClassifier) Enabled() bool {
	return q != nil && q.cfg.URL != ""
}

type qualityRequest struct {
	RevID int64 `json:"rev_id"`
}

type qualityResponse struct {
	Prediction  string             `json:"prediction"`
	Probability map[string]float64 `json:"probability"`
}

// Classify predicts the quality rating for revID. Errors here are
// advisory: callers log them and continue without quality metadata.
func (q *QualityClassifier) Classify(ctx context.Context, revID int64) (*models.ArticleQuality, error) {
	if !q.Enabled() {
		return nil, ErrQualityDisabled
	}
	if revID <= 0 {
		return nil, fmt.Errorf("invalid revision id %d", revID)
	}
	if cached, ok := q.cache.Get(revID); ok {
		return cached, nil
	}

	payload, err := json.Marshal(qualityRequest{RevID: revID})
	if err != nil {
		return nil, err
	}

	var pred qualityResponse
	err = retry.Do(ctx, q.logger, "article_quality", q.cfg.Retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.cfg.URL, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := q.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.WrapStatus(resp.StatusCode, string(msg))
		}
		return json.NewDecoder(resp.Body).Decode(&pred)
	})
	if err != nil {
		return nil, err
	}
	if pred.Prediction == "" {
		return nil, fmt.Errorf("quality service returned no prediction for revision %d", revID)
	}

	quality := &models.ArticleQuality{
		Quality:     pred.Prediction,
		Score:       pred.Probability[pred.Prediction],
		Description: models.QualityDescription(pred.Prediction),
	}
	q.cache.Set(revID, quality)
	return quality, nil
}
