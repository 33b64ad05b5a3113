package orchestrator

import (
	"context"
	"fmt"

	"github.com/nyc-landmarks/vectordb/internal/catalog"
)

// Feed streams LP numbers into a run. emit blocks while the work queue
// is full and fails once the run context ends; feeds must stop on the
// first emit error.
type Feed func(ctx context.Context, emit func(lpNumber string) error) error

// SliceFeed yields a fixed list of LP numbers.
func SliceFeed(ids []string) Feed {
	return func(ctx context.Context, emit func(string) error) error {
		for _, id := range ids {
			if err := emit(id); err != nil {
				return err
			}
		}
		return nil
	}
}

// CatalogFeed streams every landmark in the catalog, page by page, so
// a full run never holds the whole catalog in memory. limit > 0 caps
// how many LP numbers are emitted.
func CatalogFeed(client *catalog.Client, pageSize, limit int) Feed {
	return func(ctx context.Context, emit func(string) error) error {
		sent := 0
		for page := 1; ; page++ {
			landmarks, _, err := client.GetLandmarksPage(ctx, pageSize, page)
			if err != nil {
				return fmt.Errorf("landmarks page %d: %w", page, err)
			}
			if len(landmarks) == 0 {
				return nil
			}
			for _, lm := range landmarks {
				if lm.LpNumber == "" {
					continue
				}
				if limit > 0 && sent >= limit {
					return nil
				}
				if err := emit(lm.LpNumber); err != nil {
					return err
				}
				sent++
			}
			if pageSize > 0 && len(landmarks) < pageSize {
				return nil
			}
		}
	}
}
