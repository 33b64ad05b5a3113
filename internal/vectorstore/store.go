package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metrics"
	"github.com/nyc-landmarks/vectordb/internal/models"
)

// StoreChunks assigns deterministic IDs to the chunks, merges their
// metadata with the shared landmark metadata, and upserts them in
// batches. It returns the assigned IDs in chunk order. Re-running the
// same landmark and source overwrites the same IDs in place.
//
// Every record is validated before anything is sent: a single bad
// chunk means no deletion and no partial batch.
func (c *Client) StoreChunks(ctx context.Context, chunks []models.Chunk, opts StoreOptions) ([]string, error) {
	if opts.LandmarkID == "" {
		return nil, errors.New("vectorstore: landmark id required")
	}
	if opts.SourceType != models.SourcePDF && opts.SourceType != models.SourceWikipedia {
		return nil, fmt.Errorf("vectorstore: unknown source type %q", opts.SourceType)
	}
	if opts.SourceType == models.SourceWikipedia && opts.ArticleTitle == "" {
		return nil, errors.New("vectorstore: article title required for wikipedia chunks")
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	processingDate := time.Now().UTC().Format("2006-01-02")
	records := make([]models.VectorRecord, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			return nil, fmt.Errorf("chunk %d has empty text", chunk.Index)
		}
		if len(chunk.Embedding) == 0 {
			return nil, fmt.Errorf("chunk %d has no embedding", chunk.Index)
		}
		if len(chunk.Embedding) != c.cfg.Dimension {
			return nil, &models.DimensionMismatchError{Got: len(chunk.Embedding), Want: c.cfg.Dimension}
		}

		var id string
		if opts.SourceType == models.SourceWikipedia {
			id = models.WikipediaVectorID(opts.ArticleTitle, opts.LandmarkID, chunk.Index)
		} else {
			id = models.PdfVectorID(opts.LandmarkID, chunk.Index)
		}
		if !models.ValidVectorID(id) {
			return nil, fmt.Errorf("vector id %q for chunk %d is malformed", id, chunk.Index)
		}

		meta := opts.Metadata.Clone()
		for k, v := range chunk.Metadata {
			meta[k] = v
		}
		meta[models.MetaLandmarkID] = opts.LandmarkID
		meta[models.MetaSourceType] = opts.SourceType
		meta[models.MetaChunkIndex] = chunk.Index
		meta[models.MetaTotalChunks] = chunk.Total
		meta[models.MetaProcessingDate] = processingDate
		meta[models.MetaText] = chunk.Text
		if opts.SourceType == models.SourceWikipedia {
			meta[models.MetaArticleTitle] = opts.ArticleTitle
		}

		normalized, err := normalizeMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunk.Index, err)
		}

		ids[i] = id
		records[i] = models.VectorRecord{ID: id, Values: chunk.Embedding, Metadata: normalized}
	}

	if opts.ReplaceExisting {
		filter := map[string]any{
			models.MetaLandmarkID: opts.LandmarkID,
			models.MetaSourceType: opts.SourceType,
		}
		if opts.ArticleTitle != "" {
			filter[models.MetaArticleTitle] = opts.ArticleTitle
		}
		if _, err := c.DeleteByFilter(ctx, filter); err != nil {
			return nil, fmt.Errorf("replace existing vectors: %w", err)
		}
	}

	batch := c.cfg.UpsertBatchSize
	for start := 0; start < len(records); start += batch {
		end := min(start+batch, len(records))
		if err := c.upsertWithSplit(ctx, records[start:end]); err != nil {
			return nil, fmt.Errorf("upsert batch %d-%d: %w", start, end-1, err)
		}
	}
	return ids, nil
}

// upsertWithSplit retries a failed batch once as two halves before
// giving up. Oversized metadata on a single vector then fails just that
// half instead of the whole batch.
func (c *Client) upsertWithSplit(ctx context.Context, records []models.VectorRecord) error {
	err := c.upsertBatch(ctx, records)
	if err == nil || len(records) == 1 {
		return err
	}

	c.logger.Warn("upsert batch failed, retrying as halves",
		zap.Int("batch_size", len(records)),
		zap.Error(err),
	)
	mid := len(records) / 2
	if err := c.upsertBatch(ctx, records[:mid]); err != nil {
		return err
	}
	return c.upsertBatch(ctx, records[mid:])
}

func (c *Client) upsertBatch(ctx context.Context, records []models.VectorRecord) error {
	started := time.Now()
	policy := c.cfg.Retry
	policy.MaxAttempts = c.cfg.UpsertMaxRetries + 1

	var resp upsertResponse
	err := c.doJSON(ctx, "upsert_batch", http.MethodPost, "/vectors/upsert", policy,
		upsertRequest{Vectors: records, Namespace: c.cfg.Namespace}, &resp)
	if err != nil {
		metrics.RecordUpsertBatch("error", 0)
		return err
	}

	metrics.RecordUpsertBatch("success", len(records))
	logging.WithCorrelation(ctx, c.logger).Info("upsert_batch",
		zap.String("operation", "upsert_batch"),
		zap.Int("batch_size", len(records)),
		zap.Int("upserted", resp.UpsertedCount),
		zap.Duration("duration", time.Since(started)),
	)
	return nil
}

// DeleteByFilter removes every vector whose metadata matches filter and
// reports how many were deleted. The scan is a zero-vector query capped
// at DeleteScanLimit; an empty match set is a no-op.
func (c *Client) DeleteByFilter(ctx context.Context, filter map[string]any) (int, error) {
	matches, err := c.Query(ctx, QueryRequest{TopK: c.cfg.DeleteScanLimit, Filter: filter})
	if err != nil {
		return 0, fmt.Errorf("scan for delete: %w", err)
	}
	if len(matches) == 0 {
		return 0, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return c.DeleteVectors(ctx, ids)
}

// DeleteVectors removes ids in batches and reports how many were sent
// for deletion before any failure.
func (c *Client) DeleteVectors(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	batch := c.cfg.UpsertBatchSize
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		err := c.doJSON(ctx, "delete_vectors", http.MethodPost, "/vectors/delete", c.cfg.Retry,
			deleteRequest{IDs: ids[start:end], Namespace: c.cfg.Namespace}, nil)
		if err != nil {
			return deleted, err
		}
		deleted += end - start
	}
	if deleted > 0 {
		metrics.VectorsDeleted.Add(float64(deleted))
		c.logger.Info("vectors deleted", zap.Int("count", deleted))
	}
	return deleted, nil
}
