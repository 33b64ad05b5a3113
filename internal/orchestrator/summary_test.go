package orchestrator

import (
	"testing"

	"github.com/nyc-landmarks/vectordb/internal/pipeline"
)

func TestSummaryExitCode(t *testing.T) {
	allFailed := newRunSummary("pdf")
	allFailed.add(pipeline.Failed("LP-00001", "pdf", "boom"))
	allFailed.add(pipeline.Failed("LP-00002", "pdf", "boom"))
	if got := allFailed.ExitCode(); got != 1 {
		t.Fatalf("all failed: exit %d, want 1", got)
	}

	// A landmark with nothing to ingest still counts as a success.
	noContent := newRunSummary("wikipedia")
	noContent.add(pipeline.Failed("LP-00001", "wikipedia", "boom"))
	noContent.add(pipeline.NoContent("LP-00002", "wikipedia"))
	if got := noContent.ExitCode(); got != 0 {
		t.Fatalf("mixed run: exit %d, want 0", got)
	}

	empty := newRunSummary("pdf")
	if got := empty.ExitCode(); got != 0 {
		t.Fatalf("empty run: exit %d, want 0", got)
	}
}

func TestSummaryCounts(t *testing.T) {
	s := newRunSummary("pdf")
	s.add(pipeline.Ok("LP-00001", "pdf", 1, 5))
	s.add(pipeline.NoContent("LP-00002", "pdf"))
	s.add(pipeline.Failed("LP-00003", "pdf", "boom"))
	s.finish()

	if s.Attempted != 3 || s.Succeeded != 2 || s.NoContent != 1 || s.Failed != 1 {
		t.Fatalf("summary: %+v", s)
	}
	if s.Chunks != 5 {
		t.Fatalf("chunks = %d", s.Chunks)
	}
	if s.Finished.Before(s.Started) {
		t.Fatal("finished before started")
	}
}
