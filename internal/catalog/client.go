// Package catalog is the client for the landmark reporting REST API,
// the system of record for designations, buildings, PLUTO joins, and
// Wikipedia article references.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/httpclient"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/ratecontrol"
	"github.com/nyc-landmarks/vectordb/internal/retry"
)

// ErrNotFound reports that the catalog has no record for the request.
var ErrNotFound = errors.New("catalog: not found")

// Config points the client at the reporting API.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	PageSize  int
	Retry     retry.Policy
	UserAgent string
}

// Client is the reporting API client. All calls are rate limited per
// host and retried per the shared policy.
type Client struct {
	cfg     Config
	http    *http.Client
	base    *url.URL
	limiter *ratecontrol.Limiter
	logger  *zap.Logger
}

// NewClient builds a catalog client. limiter may be nil to disable
// pacing (tests).
func NewClient(cfg Config, limiter *ratecontrol.Limiter, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coredatastore.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = ratecontrol.New(ratecontrol.Config{}, nil)
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: httpclient.NewCorrelationRoundTripper(nil, cfg.UserAgent),
		},
		base:    base,
		limiter: limiter,
		logger:  logging.Module(logger, "catalog"),
	}, nil
}

// GetLandmark fetches one landmark by LP number.
func (c *Client) GetLandmark(ctx context.Context, lpNumber string) (*models.Landmark, error) {
	lpNumber = models.NormalizeLpNumber(lpNumber)
	if !models.ValidLpNumber(lpNumber) {
		return nil, fmt.Errorf("invalid lp number %q", lpNumber)
	}
	var lm models.Landmark
	if err := c.getJSON(ctx, "get_landmark", "/api/LpcReport/"+lpNumber, nil, &lm); err != nil {
		return nil, err
	}
	lm.LpNumber = models.NormalizeLpNumber(lm.LpNumber)
	return &lm, nil
}

type reportPage struct {
	Results []models.Landmark `json:"results"`
	Total   int               `json:"total"`
}

// GetLandmarksPage fetches one page of landmarks and the total count.
// Pages are 1-based. LP numbers in the results are normalized.
func (c *Client) GetLandmarksPage(ctx context.Context, pageSize, page int) ([]models.Landmark, int, error) {
	if pageSize <= 0 {
		pageSize = c.cfg.PageSize
	}
	if page < 1 {
		page = 1
	}
	var resp reportPage
	path := fmt.Sprintf("/api/LpcReport/%d/%d", pageSize, page)
	if err := c.getJSON(ctx, "get_landmarks_page", path, nil, &resp); err != nil {
		return nil, 0, err
	}
	for i := range resp.Results {
		resp.Results[i].LpNumber = models.NormalizeLpNumber(resp.Results[i].LpNumber)
	}
	return resp.Results, resp.Total, nil
}

// TotalCount reports how many landmarks the catalog holds. The page
// endpoint usually carries the total; deployments that omit it are
// probed page by page until one comes back short.
func (c *Client) TotalCount(ctx context.Context) (int, error) {
	pageSize := c.cfg.PageSize
	results, total, err := c.GetLandmarksPage(ctx, pageSize, 1)
	if err != nil {
		return 0, err
	}
	if total > 0 {
		return total, nil
	}
	count := len(results)
	for page := 2; len(results) == pageSize; page++ {
		results, _, err = c.GetLandmarksPage(ctx, pageSize, page)
		if err != nil {
			return 0, err
		}
		count += len(results)
	}
	return count, nil
}

// GetLandmarkBuildings fetches the buildings associated with a
// landmark. The buildings endpoint is consulted first; when it fails
// or comes back empty, the landmarks array embedded in the landmark
// detail is used instead. Results are truncated to limit and malformed
// entries are skipped.
func (c *Client) GetLandmarkBuildings(ctx context.Context, lpNumber string, limit int) ([]models.Building, error) {
	lpNumber = models.NormalizeLpNumber(lpNumber)
	if limit <= 0 {
		limit = 50
	}

	entries, err := c.buildingsFromEndpoint(ctx, lpNumber, limit)
	if err != nil && !errors.Is(err, ErrNotFound) {
		c.logger.Warn("buildings endpoint unavailable, using landmark detail",
			zap.String("lp_number", lpNumber),
			zap.Error(err),
		)
	}
	if len(entries) == 0 {
		entries, err = c.buildingsFromDetail(ctx, lpNumber)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
	}

	buildings := make([]models.Building, 0, len(entries))
	for i, entry := range entries {
		var b models.Building
		if err := json.Unmarshal(entry, &b); err != nil {
			c.logger.Warn("skipping malformed building entry",
				zap.String("lp_number", lpNumber),
				zap.Int("entry", i),
				zap.Error(err),
			)
			continue
		}
		if b.LpNumber != "" && !strings.EqualFold(b.LpNumber, lpNumber) {
			continue
		}
		b.LpNumber = lpNumber
		buildings = append(buildings, b)
		if len(buildings) == limit {
			break
		}
	}
	return buildings, nil
}

// buildingsFromEndpoint hits the dedicated buildings endpoint, which
// returns either a bare array or a results envelope depending on
// deployment.
func (c *Client) buildingsFromEndpoint(ctx context.Context, lpNumber string, limit int) ([]json.RawMessage, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/api/LpcReport/landmark/%d/1", limit)
	query := url.Values{"LpcNumber": {lpNumber}}
	if err := c.getJSON(ctx, "get_landmark_buildings", path, query, &raw); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode buildings: %w", err)
		}
		return entries, nil
	}

	var envelope struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode buildings envelope: %w", err)
	}
	return envelope.Results, nil
}

// buildingsFromDetail extracts the landmarks array from the landmark
// detail document.
func (c *Client) buildingsFromDetail(ctx context.Context, lpNumber string) ([]json.RawMessage, error) {
	var detail struct {
		Landmarks []json.RawMessage `json:"landmarks"`
	}
	if err := c.getJSON(ctx, "get_landmark_detail", "/api/LpcReport/"+lpNumber, nil, &detail); err != nil {
		return nil, err
	}
	return detail.Landmarks, nil
}

// GetPlutoData fetches PLUTO tax-lot records for a landmark. Missing
// data is an empty slice, not an error.
func (c *Client) GetPlutoData(ctx context.Context, lpNumber string) ([]models.PlutoRecord, error) {
	var records []models.PlutoRecord
	if err := c.getJSON(ctx, "get_pluto_data", "/api/Pluto/"+lpNumber, nil, &records); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// GetWikipediaArticles lists the Wikipedia article references recorded
// for a landmark. Refs pointing outside wikipedia.org or at a
// different landmark are dropped.
func (c *Client) GetWikipediaArticles(ctx context.Context, lpNumber string) ([]models.WikipediaArticleRef, error) {
	lpNumber = models.NormalizeLpNumber(lpNumber)
	var refs []models.WikipediaArticleRef
	if err := c.getJSON(ctx, "get_wikipedia_articles", "/api/WebContent/"+lpNumber, nil, &refs); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	out := refs[:0]
	for _, ref := range refs {
		if !strings.EqualFold(ref.RecordType, "Wikipedia") {
			continue
		}
		if !strings.Contains(ref.URL, "wikipedia.org") {
			c.logger.Warn("dropping non-wikipedia article reference",
				zap.String("lp_number", lpNumber),
				zap.String("url", ref.URL),
			)
			continue
		}
		if ref.LpNumber != "" && !strings.EqualFold(ref.LpNumber, lpNumber) {
			continue
		}
		ref.LpNumber = lpNumber
		out = append(out, ref)
	}
	return out, nil
}

// getJSON performs a retried GET and decodes the body into target.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, target any) error {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	return retry.Do(ctx, c.logger, op, c.cfg.Retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx, u.Hostname()); err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return retry.Permanent(ErrNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.WrapStatus(resp.StatusCode, string(msg))
		}

		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decode %s: %w", op, err)
		}
		return nil
	})
}
