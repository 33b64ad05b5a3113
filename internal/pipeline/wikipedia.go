package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/fetch"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metrics"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/vectorstore"
)

// WikipediaProcessor ingests the Wikipedia articles linked to a
// landmark.
type WikipediaProcessor struct {
	deps   Deps
	logger *zap.Logger
}

// NewWikipediaProcessor builds a Wikipedia processor over deps.
func NewWikipediaProcessor(deps Deps, logger *zap.Logger) *WikipediaProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WikipediaProcessor{
		deps:   deps,
		logger: logging.Module(logger, "pipeline.wikipedia"),
	}
}

// Source returns "wikipedia".
func (w *WikipediaProcessor) Source() string { return models.SourceWikipedia }

// Process ingests every Wikipedia article the catalog links to
// lpNumber. A landmark with zero articles is a no-content success. A
// failed article is recorded and the remaining articles still process;
// the landmark fails only when nothing was stored and at least one
// article errored.
func (w *WikipediaProcessor) Process(ctx context.Context, lpNumber string) Result {
	start := time.Now()
	lpNumber = models.NormalizeLpNumber(lpNumber)
	ctx = ensureCorrelation(ctx)
	logger := logging.WithCorrelation(ctx, w.logger)

	logStart(logger, lpNumber, models.SourceWikipedia)
	res := w.process(ctx, logger, lpNumber)
	res.Duration = time.Since(start)
	logComplete(logger, res)
	return res
}

func (w *WikipediaProcessor) process(ctx context.Context, logger *zap.Logger, lpNumber string) Result {
	refs, err := w.deps.Catalog.GetWikipediaArticles(ctx, lpNumber)
	if err != nil {
		return Failed(lpNumber, models.SourceWikipedia, "resolve articles: "+err.Error())
	}
	if len(refs) == 0 {
		return NoContent(lpNumber, models.SourceWikipedia)
	}

	landmarkMeta, err := w.deps.Collector.Collect(ctx, lpNumber)
	if err != nil {
		logger.Warn("metadata collect failed, storing base fields",
			zap.String("lp_number", lpNumber),
			zap.Error(err),
		)
		landmarkMeta = models.FlatMetadata{models.MetaLandmarkID: lpNumber}
	}

	var (
		articles int
		stored   int
		errs     []string
	)
	for _, ref := range refs {
		n, err := w.processArticle(ctx, logger, lpNumber, ref, landmarkMeta)
		if err != nil {
			logger.Warn("article ingestion failed",
				zap.String("lp_number", lpNumber),
				zap.String("article", ref.Title),
				zap.Error(err),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", ref.Title, err))
			continue
		}
		if n > 0 {
			articles++
			stored += n
		}
	}

	switch {
	case stored > 0:
		res := Ok(lpNumber, models.SourceWikipedia, articles, stored)
		res.Errors = errs
		return res
	case len(errs) > 0:
		return Failed(lpNumber, models.SourceWikipedia, errs...)
	default:
		return NoContent(lpNumber, models.SourceWikipedia)
	}
}

// processArticle ingests one article and returns the number of chunks
// stored. An article without prose stores nothing and is not an error.
func (w *WikipediaProcessor) processArticle(ctx context.Context, logger *zap.Logger, lpNumber string, ref models.WikipediaArticleRef, landmarkMeta models.FlatMetadata) (int, error) {
	article, err := w.deps.Wikipedia.FetchArticle(ctx, ref)
	if err != nil {
		if errors.Is(err, fetch.ErrNoText) {
			logger.Debug("article has no prose", zap.String("article", ref.Title))
			return 0, nil
		}
		return 0, fmt.Errorf("fetch: %w", err)
	}
	w.classify(ctx, logger, article)

	chunks := w.deps.Chunker.Split(article.Text)
	if len(chunks) == 0 {
		return 0, nil
	}
	metrics.ChunksProduced.WithLabelValues(models.SourceWikipedia).Add(float64(len(chunks)))
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = models.FlatMetadata{}
		}
		m := chunks[i].Metadata
		m[models.MetaArticleURL] = article.URL
		if article.RevisionID > 0 {
			m[models.MetaArticleRevisionID] = article.RevisionID
		}
		if q := article.Quality; q != nil {
			m[models.MetaArticleQuality] = q.Quality
			m[models.MetaArticleQualScore] = q.Score
			m[models.MetaArticleQualityDesc] = q.Description
		}
	}

	if err := w.deps.embed(ctx, chunks); err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	ids, err := w.deps.Store.StoreChunks(ctx, chunks, vectorstore.StoreOptions{
		LandmarkID:      lpNumber,
		SourceType:      models.SourceWikipedia,
		ArticleTitle:    article.Title,
		Metadata:        landmarkMeta,
		ReplaceExisting: w.deps.DeleteExisting,
	})
	if err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}
	return len(ids), nil
}

// classify attaches a quality prediction when the classifier is
// enabled and the article's revision is known. Classification failures
// only cost the quality metadata.
func (w *WikipediaProcessor) classify(ctx context.Context, logger *zap.Logger, article *models.WikipediaArticle) {
	if !w.deps.Quality.Enabled() || article.RevisionID == 0 {
		return
	}
	quality, err := w.deps.Quality.Classify(ctx, article.RevisionID)
	if err != nil {
		logger.Warn("article quality unavailable",
			zap.String("article", article.Title),
			zap.Int64("revision_id", article.RevisionID),
			zap.Error(err),
		)
		return
	}
	article.Quality = quality
}
