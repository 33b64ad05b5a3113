package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/catalog"
	"github.com/nyc-landmarks/vectordb/internal/fetch"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metrics"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/vectorstore"
)

// PdfProcessor ingests landmark designation reports.
type PdfProcessor struct {
	deps   Deps
	logger *zap.Logger
}

// NewPdfProcessor builds a PDF processor over deps.
func NewPdfProcessor(deps Deps, logger *zap.Logger) *PdfProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PdfProcessor{
		deps:   deps,
		logger: logging.Module(logger, "pipeline.pdf"),
	}
}

// Source returns "pdf".
func (p *PdfProcessor) Source() string { return models.SourcePDF }

// Process downloads lpNumber's designation report, chunks and embeds
// its text, and stores the vectors. A landmark without a report URL or
// without extractable text is a no-content success.
func (p *PdfProcessor) Process(ctx context.Context, lpNumber string) Result {
	start := time.Now()
	lpNumber = models.NormalizeLpNumber(lpNumber)
	ctx = ensureCorrelation(ctx)
	logger := logging.WithCorrelation(ctx, p.logger)

	logStart(logger, lpNumber, models.SourcePDF)
	res := p.process(ctx, lpNumber)
	res.Duration = time.Since(start)
	logComplete(logger, res)
	return res
}

func (p *PdfProcessor) process(ctx context.Context, lpNumber string) Result {
	lm, err := p.deps.Catalog.GetLandmark(ctx, lpNumber)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Failed(lpNumber, models.SourcePDF, fmt.Sprintf("landmark %s not found", lpNumber))
		}
		return Failed(lpNumber, models.SourcePDF, "resolve landmark: "+err.Error())
	}
	if strings.TrimSpace(lm.PdfReportUrl) == "" {
		return NoContent(lpNumber, models.SourcePDF)
	}

	text, err := p.deps.PDF.FetchText(ctx, lm.PdfReportUrl)
	if err != nil {
		if errors.Is(err, fetch.ErrNoText) {
			return NoContent(lpNumber, models.SourcePDF)
		}
		return Failed(lpNumber, models.SourcePDF, "fetch report: "+err.Error())
	}

	chunks := p.deps.Chunker.Split(text)
	if len(chunks) == 0 {
		return NoContent(lpNumber, models.SourcePDF)
	}
	metrics.ChunksProduced.WithLabelValues(models.SourcePDF).Add(float64(len(chunks)))

	landmarkMeta, err := p.deps.Collector.Collect(ctx, lpNumber)
	if err != nil {
		// The text is already in hand; losing buildings and PLUTO
		// enrichment is not worth losing the landmark.
		logging.WithCorrelation(ctx, p.logger).Warn("metadata collect failed, storing base fields",
			zap.String("lp_number", lpNumber),
			zap.Error(err),
		)
		landmarkMeta = p.deps.Collector.BaseMetadata(lm)
	}

	docName := documentName(lm.PdfReportUrl)
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = models.FlatMetadata{}
		}
		chunks[i].Metadata[models.MetaDocumentName] = docName
		chunks[i].Metadata[models.MetaDocumentURL] = lm.PdfReportUrl
	}

	if err := p.deps.embed(ctx, chunks); err != nil {
		return Failed(lpNumber, models.SourcePDF, "embed chunks: "+err.Error())
	}

	ids, err := p.deps.Store.StoreChunks(ctx, chunks, vectorstore.StoreOptions{
		LandmarkID:      lpNumber,
		SourceType:      models.SourcePDF,
		Metadata:        landmarkMeta,
		ReplaceExisting: p.deps.DeleteExisting,
	})
	if err != nil {
		return Failed(lpNumber, models.SourcePDF, "store chunks: "+err.Error())
	}
	return Ok(lpNumber, models.SourcePDF, 1, len(ids))
}

// documentName extracts the report's file name for attribution
// metadata, falling back to the full URL when it has no path.
func documentName(reportURL string) string {
	u, err := url.Parse(reportURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return reportURL
	}
	return path.Base(u.Path)
}
