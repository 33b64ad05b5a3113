package pipeline

import (
	"encoding/json"
	"time"
)

// Outcome classifies how processing one landmark ended.
type Outcome int

const (
	// OutcomeOk means at least one chunk was stored.
	OutcomeOk Outcome = iota
	// OutcomeNoContent means the landmark had nothing to ingest: no
	// report URL, no extractable text, or zero Wikipedia articles. It
	// is a terminal success, not an error.
	OutcomeNoContent
	// OutcomeFailed means nothing was stored and content was expected.
	// The landmark should be retried in a later run.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOk:
		return "ok"
	case OutcomeNoContent:
		return "no_content"
	default:
		return "failed"
	}
}

// Success reports whether the outcome counts as a successful landmark.
func (o Outcome) Success() bool { return o != OutcomeFailed }

// MarshalJSON writes the outcome as its string form so run reports stay
// readable.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Result is the per-landmark summary a Processor returns and the
// orchestrator aggregates.
type Result struct {
	LandmarkID string  `json:"landmark_id"`
	Source     string  `json:"source"`
	Outcome    Outcome `json:"outcome"`
	Success    bool    `json:"success"`

	// ArticlesOrPages counts ingested units: articles stored for
	// Wikipedia, 1 for a PDF with content, 0 for no content.
	ArticlesOrPages int `json:"articles_or_pages"`
	// Chunks counts vectors stored for this landmark.
	Chunks int `json:"chunks"`
	// Errors lists per-article failures on a partial success, or the
	// failure reasons when Outcome is failed.
	Errors []string `json:"errors,omitempty"`

	Duration time.Duration `json:"duration_ms"`
}

// MarshalJSON reports the duration in whole milliseconds.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		alias
		Duration int64 `json:"duration_ms"`
	}{alias(r), r.Duration.Milliseconds()})
}

// Ok builds a Result for a landmark with stored chunks.
func Ok(lpNumber, source string, articlesOrPages, chunks int) Result {
	return Result{
		LandmarkID:      lpNumber,
		Source:          source,
		Outcome:         OutcomeOk,
		Success:         true,
		ArticlesOrPages: articlesOrPages,
		Chunks:          chunks,
	}
}

// NoContent builds a Result for a landmark with nothing to ingest.
func NoContent(lpNumber, source string) Result {
	return Result{
		LandmarkID: lpNumber,
		Source:     source,
		Outcome:    OutcomeNoContent,
		Success:    true,
	}
}

// Failed builds a Result for a landmark that stored nothing although
// content was expected.
func Failed(lpNumber, source string, errs ...string) Result {
	return Result{
		LandmarkID: lpNumber,
		Source:     source,
		Outcome:    OutcomeFailed,
		Errors:     errs,
	}
}
