package pipeline

import (
	"encoding/json"
	"testing"
	"time"
)

func TestResultJSON(t *testing.T) {
	res := Ok("LP-00001", "pdf", 1, 4)
	res.Duration = 1500 * time.Millisecond

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded["outcome"] != "ok" {
		t.Fatalf("outcome = %v", decoded["outcome"])
	}
	if decoded["success"] != true {
		t.Fatalf("success = %v", decoded["success"])
	}
	if decoded["duration_ms"] != float64(1500) {
		t.Fatalf("duration_ms = %v", decoded["duration_ms"])
	}
	if _, ok := decoded["errors"]; ok {
		t.Fatal("empty errors should be omitted")
	}
}

func TestOutcomeSuccess(t *testing.T) {
	if !OutcomeOk.Success() || !OutcomeNoContent.Success() {
		t.Fatal("ok and no_content are successes")
	}
	if OutcomeFailed.Success() {
		t.Fatal("failed is not a success")
	}
	if got := Failed("LP-00001", "wikipedia", "timeout"); got.Success || got.Errors[0] != "timeout" {
		t.Fatalf("failed result: %+v", got)
	}
}
