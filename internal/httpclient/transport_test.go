package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nyc-landmarks/vectordb/internal/logging"
)

func TestRoundTripperInjectsCorrelationAndUserAgent(t *testing.T) {
	var gotCorrelation, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCorrelation = r.Header.Get("X-Correlation-ID")
		gotAgent = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewCorrelationRoundTripper(nil, "nyc-landmarks-vectordb/test")}
	ctx := logging.WithCorrelationID(context.Background(), "corr-123")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()

	if gotCorrelation != "corr-123" {
		t.Fatalf("correlation header = %q", gotCorrelation)
	}
	if gotAgent != "nyc-landmarks-vectordb/test" {
		t.Fatalf("user agent = %q", gotAgent)
	}
}

func TestRoundTripperKeepsExplicitHeaders(t *testing.T) {
	var gotCorrelation string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCorrelation = r.Header.Get("X-Correlation-ID")
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewCorrelationRoundTripper(nil, "")}
	ctx := logging.WithCorrelationID(context.Background(), "from-context")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Correlation-ID", "explicit")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()

	if gotCorrelation != "explicit" {
		t.Fatalf("explicit header overwritten: %q", gotCorrelation)
	}
}
