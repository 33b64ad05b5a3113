package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/nyc-landmarks/vectordb/internal/embeddings"
	"github.com/nyc-landmarks/vectordb/internal/health"
	"github.com/nyc-landmarks/vectordb/internal/query"
	"github.com/nyc-landmarks/vectordb/internal/retry"
	"github.com/nyc-landmarks/vectordb/internal/vectorstore"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxAttempts:     3,
		Multiplier:      1.5,
	}
}

// apiEnv drives the full middleware chain against one fake upstream
// that plays the embedding provider and the vector index.
type apiEnv struct {
	t       *testing.T
	srv     *httptest.Server
	server  *Server
	handler http.Handler

	mu      sync.Mutex
	queries []map[string]any

	// knobs set before a request is issued
	embedStatus int
	embedDelay  time.Duration
}

func newAPIEnv(t *testing.T, matches []map[string]any) *apiEnv {
	t.Helper()
	e := &apiEnv{t: t}

	mux := http.NewServeMux()
	e.srv = httptest.NewServer(mux)
	t.Cleanup(e.srv.Close)

	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if e.embedDelay > 0 {
			time.Sleep(e.embedDelay)
		}
		if e.embedStatus != 0 {
			http.Error(w, "embedding provider down", e.embedStatus)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode embed request: %v", err)
		}
		vectors := make([][]float64, len(req.Input))
		for i := range req.Input {
			vectors[i] = []float64{1, 0, 0, 0}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		var q map[string]any
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Errorf("decode query: %v", err)
		}
		e.mu.Lock()
		e.queries = append(e.queries, q)
		e.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"matches": matches})
	})

	logger := zaptest.NewLogger(t)
	embedder := embeddings.NewService(embeddings.Config{
		BaseURL:   e.srv.URL,
		Model:     "test-embed",
		Dimension: 4,
		BatchSize: 16,
		Retry:     fastPolicy(),
	}, nil, logger)
	store, err := vectorstore.NewClient(vectorstore.Config{
		IndexHost: e.srv.URL,
		APIKey:    "test-key",
		Namespace: "test",
		Dimension: 4,
		Retry:     fastPolicy(),
	}, logger)
	if err != nil {
		t.Fatalf("vectorstore.NewClient: %v", err)
	}
	svc := query.NewService(query.Config{MaxTopK: 25}, embedder, store, nil, logger)

	qh := NewQueryHandler(svc, 5, logger)
	hh := health.NewHTTPHandler(health.NewManager(logger), "test", logger)
	e.server = NewServer(Config{ListenAddr: ":0"}, NewMux(qh, hh), logger)
	e.handler = e.server.Handler()
	return e
}

func (e *apiEnv) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) lastQuery() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queries) == 0 {
		e.t.Fatal("no query reached the index")
	}
	return e.queries[len(e.queries)-1]
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestQueryEndpoint(t *testing.T) {
	e := newAPIEnv(t, []map[string]any{{
		"id":    "LP-00001-chunk-0",
		"score": 0.9,
		"metadata": map[string]any{
			"landmark_id": "LP-00001",
			"source_type": "pdf",
			"text":        "a designated landmark",
		},
	}})

	rec := e.do(http.MethodPost, "/api/query", `{"query_text":"oldest house","top_k":3}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Matches       []query.Match `json:"matches"`
		Count         int           `json:"count"`
		CorrelationID string        `json:"correlation_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Matches[0].LandmarkID != "LP-00001" {
		t.Fatalf("response = %+v", resp)
	}
	if _, err := uuid.Parse(resp.CorrelationID); err != nil {
		t.Fatalf("correlation_id %q is not a UUID: %v", resp.CorrelationID, err)
	}
	if rec.Header().Get("X-Correlation-ID") != resp.CorrelationID {
		t.Fatal("response header and body correlation IDs differ")
	}
	if e.lastQuery()["topK"] != float64(3) {
		t.Fatalf("topK = %v", e.lastQuery()["topK"])
	}
}

func TestCorrelationHeaderPrecedence(t *testing.T) {
	e := newAPIEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/query", `{"query_text":"x"}`, map[string]string{
		"X-Request-ID": "req-1",
		"Trace-ID":     "trace-9",
	})
	if got := rec.Header().Get("X-Correlation-ID"); got != "req-1" {
		t.Fatalf("correlation = %q, want req-1", got)
	}

	rec = e.do(http.MethodPost, "/api/query", `{"query_text":"x"}`, map[string]string{
		"X-Correlation-ID": "corr-7",
		"X-Request-ID":     "req-1",
	})
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-7" {
		t.Fatalf("correlation = %q, want corr-7", got)
	}
}

func TestQueryDefaultTopK(t *testing.T) {
	e := newAPIEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/query", `{"query_text":"nice"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if e.lastQuery()["topK"] != float64(5) {
		t.Fatalf("topK = %v, want server default 5", e.lastQuery()["topK"])
	}
}

func TestQueryValidationStatuses(t *testing.T) {
	e := newAPIEnv(t, nil)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"top_k zero", `{"query_text":"x","top_k":0}`, "validation_error"},
		{"top_k over max", `{"query_text":"x","top_k":26}`, "validation_error"},
		{"empty query", `{"query_text":"   "}`, "validation_error"},
		{"unknown source", `{"query_text":"x","source_type":"html"}`, "validation_error"},
		{"malformed body", `{not json`, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/api/query", tc.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			detail := decodeError(t, rec)
			if detail.Code != tc.code {
				t.Fatalf("code = %q, want %q", detail.Code, tc.code)
			}
			if detail.CorrelationID == "" {
				t.Fatal("error body missing correlation_id")
			}
		})
	}
}

func TestLandmarkQueryEndpoint(t *testing.T) {
	e := newAPIEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/query/landmark/LP-00042", `{"query_text":"bridge"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	filter, ok := e.lastQuery()["filter"].(map[string]any)
	if !ok {
		t.Fatalf("filter missing: %v", e.lastQuery())
	}
	if eq, _ := filter["landmark_id"].(map[string]any); eq["$eq"] != "LP-00042" {
		t.Fatalf("landmark filter = %v", filter)
	}

	rec = e.do(http.MethodPost, "/api/query/landmark/bogus", `{"query_text":"bridge"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status for malformed LP number = %d", rec.Code)
	}
}

func TestUpstreamFailureMapsToBadGateway(t *testing.T) {
	e := newAPIEnv(t, nil)
	e.embedStatus = http.StatusInternalServerError

	rec := e.do(http.MethodPost, "/api/query", `{"query_text":"x"}`, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != "upstream_error" {
		t.Fatalf("code = %q", detail.Code)
	}
}

func TestDeadlineMapsToGatewayTimeout(t *testing.T) {
	e := newAPIEnv(t, nil)
	e.embedDelay = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query_text":"x"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != "timeout" {
		t.Fatalf("code = %q", detail.Code)
	}
}

func TestPanicRecovered(t *testing.T) {
	logger := zaptest.NewLogger(t)
	chain := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}), Correlation, RequestLogger(logger), Recover(logger))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/query", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != "internal_error" {
		t.Fatalf("code = %q", detail.Code)
	}
}

func TestDrainGuardRejectsNewRequests(t *testing.T) {
	e := newAPIEnv(t, nil)
	e.server.draining.Store(true)

	rec := e.do(http.MethodPost, "/api/query", `{"query_text":"x"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != "shutting_down" {
		t.Fatalf("code = %q", detail.Code)
	}
}

func TestHealthThroughChain(t *testing.T) {
	e := newAPIEnv(t, nil)

	rec := e.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Version != "test" {
		t.Fatalf("body = %+v", body)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("health response missing correlation header")
	}
}
