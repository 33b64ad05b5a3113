package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nyc-landmarks/vectordb/internal/pipeline"
)

// RunSummary aggregates per-landmark results for one ingestion run.
// Succeeded counts ok and no-content landmarks both; a landmark with
// nothing to ingest is not a failure. Results are kept in completion
// order; input order carries no meaning once work is parallel.
type RunSummary struct {
	Source   string    `json:"source"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Attempted  int   `json:"attempted"`
	Succeeded  int   `json:"succeeded"`
	NoContent  int   `json:"no_content"`
	Failed     int   `json:"failed"`
	Chunks     int   `json:"chunks"`
	DurationMS int64 `json:"duration_ms"`

	Results []pipeline.Result `json:"results"`
}

func newRunSummary(source string) *RunSummary {
	return &RunSummary{Source: source, Started: time.Now().UTC()}
}

func (s *RunSummary) add(res pipeline.Result) {
	s.Attempted++
	switch res.Outcome {
	case pipeline.OutcomeOk:
		s.Succeeded++
	case pipeline.OutcomeNoContent:
		s.Succeeded++
		s.NoContent++
	default:
		s.Failed++
	}
	s.Chunks += res.Chunks
	s.Results = append(s.Results, res)
}

func (s *RunSummary) finish() {
	s.Finished = time.Now().UTC()
	s.DurationMS = s.Finished.Sub(s.Started).Milliseconds()
}

// ExitCode maps the summary onto the CLI contract: 0 when at least one
// landmark succeeded or there was nothing to do, 1 when every
// attempted landmark failed.
func (s *RunSummary) ExitCode() int {
	if s.Attempted > 0 && s.Succeeded == 0 {
		return 1
	}
	return 0
}

// WriteReport writes the summary as indented JSON into dir, creating
// it if needed, and returns the report path. The file name carries the
// source and the run's UTC start time.
func (s *RunSummary) WriteReport(dir string) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("ingest-%s-%s.json", s.Source, s.Started.Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
