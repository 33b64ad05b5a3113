package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/httpclient"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/ratecontrol"
	"github.com/nyc-landmarks/vectordb/internal/retry"
)

const defaultWikiUserAgent = "nyc-landmarks-vectordb/1.0 (+https://github.com/nyc-landmarks/vectordb)"

// Elements stripped from article HTML before paragraph collection.
const wikiNoiseSelector = "script, style, sup.reference, .mw-empty-elt, table, .navbox, .vertical-navbox, .mw-editsection"

// WikipediaConfig tunes article downloads. Wikimedia asks clients for a
// descriptive User-Agent and modest connect timeouts.
type WikipediaConfig struct {
	ReadTimeout    time.Duration
	ConnectTimeout time.Duration
	Retry          retry.Policy
	UserAgent      string
}

// WikipediaFetcher downloads an article, cleans it to paragraph text,
// and resolves its current revision ID.
type WikipediaFetcher struct {
	cfg     WikipediaConfig
	http    *http.Client
	limiter *ratecontrol.Limiter
	logger  *zap.Logger
}

// NewWikipediaFetcher builds an article fetcher. limiter may be nil to
// disable pacing (tests).
func NewWikipediaFetcher(cfg WikipediaConfig, limiter *ratecontrol.Limiter, logger *zap.Logger) *WikipediaFetcher {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 27 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 3050 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultWikiUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = ratecontrol.New(ratecontrol.Config{}, nil)
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,
	}
	return &WikipediaFetcher{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.ReadTimeout,
			Transport: httpclient.NewCorrelationRoundTripper(transport, cfg.UserAgent),
		},
		limiter: limiter,
		logger:  logging.Module(logger, "fetch.wikipedia"),
	}
}

// FetchArticle downloads ref's article and returns the cleaned body.
// Returns ErrNoText when no paragraph text survives cleaning. A failed
// revision lookup is tolerated and leaves RevisionID at zero.
func (f *WikipediaFetcher) FetchArticle(ctx context.Context, ref models.WikipediaArticleRef) (*models.WikipediaArticle, error) {
	u, err := url.Parse(ref.URL)
	if err != nil {
		return nil, fmt.Errorf("parse article url: %w", err)
	}

	var body []byte
	err = retry.Do(ctx, f.logger, "wikipedia_fetch", f.cfg.Retry, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx, u.Hostname()); err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := f.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.WrapStatus(resp.StatusCode, string(msg))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}

	text, err := extractArticleText(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref.Title, err)
	}

	return &models.WikipediaArticle{
		Title:      ref.Title,
		URL:        ref.URL,
		Text:       text,
		RevisionID: f.revisionID(ctx, u, ref.Title),
	}, nil
}

// extractArticleText reduces rendered article HTML to the top-level
// paragraph text of the content root, paragraphs joined by blank lines.
func extractArticleText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse article html: %w", err)
	}

	content := doc.Find("div.mw-parser-output").First()
	if content.Length() == 0 {
		return "", ErrNoText
	}
	content.Find(wikiNoiseSelector).Remove()

	var paragraphs []string
	content.ChildrenFiltered("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return "", ErrNoText
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// revisionID resolves the article's current revision through the REST
// summary endpoint on the article's own host. Lookup failures are
// tolerated; a zero revision just disables quality classification.
func (f *WikipediaFetcher) revisionID(ctx context.Context, articleURL *url.URL, title string) int64 {
	summaryURL := &url.URL{
		Scheme: articleURL.Scheme,
		Host:   articleURL.Host,
		Path:   "/api/rest_v1/page/summary/" + strings.ReplaceAll(title, " ", "_"),
	}

	if err := f.limiter.Wait(ctx, articleURL.Hostname()); err != nil {
		return 0
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, summaryURL.String(), nil)
	if err != nil {
		return 0
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		f.logger.Warn("revision lookup failed", zap.String("title", title), zap.Error(err))
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("revision lookup failed",
			zap.String("title", title),
			zap.Int("status", resp.StatusCode),
		)
		return 0
	}

	// The summary endpoint has served revision as both a bare number
	// and a quoted string.
	var summary struct {
		Revision json.RawMessage `json:"revision"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		f.logger.Warn("revision lookup failed", zap.String("title", title), zap.Error(err))
		return 0
	}
	rev, err := strconv.ParseInt(strings.Trim(string(summary.Revision), `"`), 10, 64)
	if err != nil {
		return 0
	}
	return rev
}
