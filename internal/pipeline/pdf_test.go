package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nyc-landmarks/vectordb/internal/catalog"
	"github.com/nyc-landmarks/vectordb/internal/chunker"
	"github.com/nyc-landmarks/vectordb/internal/embeddings"
	"github.com/nyc-landmarks/vectordb/internal/fetch"
	"github.com/nyc-landmarks/vectordb/internal/metadata"
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

// storedVector mirrors the index upsert wire shape.
type storedVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata"`
}

// fakeStore records index data plane traffic and serves canned query
// matches to the replace-existing scan.
type fakeStore struct {
	mu      sync.Mutex
	ops     []string
	upserts [][]storedVector
	deletes [][]string
	matches []map[string]any
}

func (f *fakeStore) register(t *testing.T, mux *http.ServeMux) {
	mux.HandleFunc("/vectors/upsert", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Vectors []storedVector `json:"vectors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode upsert: %v", err)
		}
		f.mu.Lock()
		f.ops = append(f.ops, "upsert")
		f.upserts = append(f.upserts, req.Vectors)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"upsertedCount":%d}`, len(req.Vectors))
	})
	mux.HandleFunc("/vectors/delete", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode delete: %v", err)
		}
		f.mu.Lock()
		f.ops = append(f.ops, "delete")
		f.deletes = append(f.deletes, req.IDs)
		f.mu.Unlock()
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		matches := f.matches
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"matches": matches})
	})
}

func (f *fakeStore) allVectors() []storedVector {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storedVector
	for _, batch := range f.upserts {
		out = append(out, batch...)
	}
	return out
}

func (f *fakeStore) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// env wires real pipeline dependencies against one test server playing
// catalog, document host, embedding provider, and vector index.
type env struct {
	t     *testing.T
	mux   *http.ServeMux
	srv   *httptest.Server
	index *fakeStore
	deps  Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	index := &fakeStore{}
	index.register(t, mux)

	// Deterministic embeddings: first component is the text length.
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode embed request: %v", err)
		}
		vectors := make([][]float64, len(req.Input))
		for i, text := range req.Input {
			vectors[i] = []float64{float64(len(text)), 0, 0, 1}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	})

	logger := zaptest.NewLogger(t)
	cat, err := catalog.NewClient(catalog.Config{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
		Retry:   fastPolicy(),
	}, nil, logger)
	if err != nil {
		t.Fatalf("catalog.NewClient: %v", err)
	}
	store, err := vectorstore.NewClient(vectorstore.Config{
		IndexHost:       srv.URL,
		APIKey:          "test-key",
		Namespace:       "test",
		Dimension:       4,
		UpsertBatchSize: 100,
		Retry:           fastPolicy(),
	}, logger)
	if err != nil {
		t.Fatalf("vectorstore.NewClient: %v", err)
	}

	deps := Deps{
		Catalog:   cat,
		Collector: metadata.NewCollector(metadata.Config{}, cat, logger),
		Chunker:   chunker.New(chunker.DefaultConfig()),
		Embedder: embeddings.NewService(embeddings.Config{
			BaseURL:   srv.URL,
			Model:     "test-embed",
			Dimension: 4,
			BatchSize: 100,
			Retry:     fastPolicy(),
		}, nil, logger),
		Store:     store,
		PDF:       fetch.NewPDFFetcher(fetch.PDFConfig{Retry: fastPolicy()}, nil, logger),
		Wikipedia: fetch.NewWikipediaFetcher(fetch.WikipediaConfig{Retry: fastPolicy()}, nil, logger),
	}
	return &env{t: t, mux: mux, srv: srv, index: index, deps: deps}
}

func (e *env) serveJSON(path string, body any) {
	e.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(body)
	})
}

// buildPDF assembles a minimal single-page PDF showing text, tracking
// object offsets so the xref table is correct by construction.
func buildPDF(text string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	obj("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	obj("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>\nendobj\n")
	content := "BT ET"
	if text != "" {
		content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	}
	obj(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content))
	obj("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPdfProcessorStoresChunks(t *testing.T) {
	e := newEnv(t)
	doc := buildPDF("The Wyckoff House designation report covers the oldest structure in the city.")
	e.mux.HandleFunc("/report.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write(doc)
	})
	e.serveJSON("/api/LpcReport/LP-00001", map[string]any{
		"lpNumber":     "LP-00001",
		"name":         "Wyckoff House",
		"borough":      "Brooklyn",
		"pdfReportUrl": e.srv.URL + "/report.pdf",
	})

	res := NewPdfProcessor(e.deps, zaptest.NewLogger(t)).Process(context.Background(), "lp-00001")

	if res.Outcome != OutcomeOk || !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ArticlesOrPages != 1 {
		t.Fatalf("articles_or_pages = %d, want 1", res.ArticlesOrPages)
	}
	vectors := e.index.allVectors()
	if len(vectors) == 0 || res.Chunks != len(vectors) {
		t.Fatalf("stored %d vectors, result reports %d", len(vectors), res.Chunks)
	}
	if vectors[0].ID != "LP-00001-chunk-0" {
		t.Fatalf("first vector ID %q", vectors[0].ID)
	}

	meta := vectors[0].Metadata
	for key, want := range map[string]string{
		"landmark_id":   "LP-00001",
		"source_type":   "pdf",
		"borough":       "Brooklyn",
		"document_name": "report.pdf",
		"document_url":  e.srv.URL + "/report.pdf",
	} {
		if meta[key] != want {
			t.Fatalf("metadata[%s] = %v, want %q", key, meta[key], want)
		}
	}
	if meta["text"] == nil || meta["processing_date"] == nil {
		t.Fatalf("metadata missing text or processing_date: %v", meta)
	}
}

func TestPdfProcessorNoReportURL(t *testing.T) {
	e := newEnv(t)
	e.serveJSON("/api/LpcReport/LP-00002", map[string]any{
		"lpNumber": "LP-00002",
		"name":     "Unreported Landmark",
	})

	res := NewPdfProcessor(e.deps, zaptest.NewLogger(t)).Process(context.Background(), "LP-00002")

	if res.Outcome != OutcomeNoContent || !res.Success {
		t.Fatalf("missing report URL should be a no-content success: %+v", res)
	}
	if len(e.index.allVectors()) != 0 {
		t.Fatal("no vectors should be written without a report")
	}
}

func TestPdfProcessorEmptyReport(t *testing.T) {
	e := newEnv(t)
	doc := buildPDF("")
	e.mux.HandleFunc("/empty.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write(doc)
	})
	e.serveJSON("/api/LpcReport/LP-00003", map[string]any{
		"lpNumber":     "LP-00003",
		"pdfReportUrl": e.srv.URL + "/empty.pdf",
	})

	res := NewPdfProcessor(e.deps, zaptest.NewLogger(t)).Process(context.Background(), "LP-00003")

	if res.Outcome != OutcomeNoContent || !res.Success {
		t.Fatalf("report without text should be a no-content success: %+v", res)
	}
}

func TestPdfProcessorLandmarkNotFound(t *testing.T) {
	e := newEnv(t)

	res := NewPdfProcessor(e.deps, zaptest.NewLogger(t)).Process(context.Background(), "LP-09999")

	if res.Outcome != OutcomeFailed || res.Success {
		t.Fatalf("unknown landmark should fail: %+v", res)
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "not found") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestPdfProcessorDegradedMetadataCollect(t *testing.T) {
	e := newEnv(t)
	doc := buildPDF("Designation text survives a broken metadata collect.")
	e.mux.HandleFunc("/degraded.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write(doc)
	})
	// First detail fetch resolves the landmark; everything after that
	// fails, so the enhanced collect cannot complete.
	var detailHits atomic.Int32
	e.mux.HandleFunc("/api/LpcReport/LP-00005", func(w http.ResponseWriter, r *http.Request) {
		if detailHits.Add(1) > 1 {
			http.Error(w, "catalog briefly down", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"lpNumber":     "LP-00005",
			"name":         "Degraded House",
			"borough":      "Queens",
			"pdfReportUrl": e.srv.URL + "/degraded.pdf",
		})
	})

	res := NewPdfProcessor(e.deps, zaptest.NewLogger(t)).Process(context.Background(), "LP-00005")

	if res.Outcome != OutcomeOk || !res.Success {
		t.Fatalf("collect failure should not fail the landmark: %+v", res)
	}
	vectors := e.index.allVectors()
	if len(vectors) == 0 {
		t.Fatal("chunks should still be stored")
	}
	meta := vectors[0].Metadata
	if meta["landmark_id"] != "LP-00005" || meta["source_type"] != "pdf" {
		t.Fatalf("required keys missing: %v", meta)
	}
	if meta["name"] != "Degraded House" || meta["borough"] != "Queens" {
		t.Fatalf("base landmark fields should survive the degraded collect: %v", meta)
	}
	if meta["text"] == nil {
		t.Fatalf("metadata missing text: %v", meta)
	}
}

func TestPdfProcessorReplaceExisting(t *testing.T) {
	e := newEnv(t)
	e.deps.DeleteExisting = true
	e.index.matches = []map[string]any{{"id": "LP-00004-chunk-7", "score": 0}}

	doc := buildPDF("A fresh run replaces every previously stored chunk.")
	e.mux.HandleFunc("/fresh.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write(doc)
	})
	e.serveJSON("/api/LpcReport/LP-00004", map[string]any{
		"lpNumber":     "LP-00004",
		"pdfReportUrl": e.srv.URL + "/fresh.pdf",
	})

	res := NewPdfProcessor(e.deps, zaptest.NewLogger(t)).Process(context.Background(), "LP-00004")
	if res.Outcome != OutcomeOk {
		t.Fatalf("unexpected result: %+v", res)
	}

	ops := e.index.operations()
	if len(ops) < 2 || ops[0] != "delete" {
		t.Fatalf("deletion must precede the first upsert, got %v", ops)
	}
	if len(e.index.deletes) != 1 || e.index.deletes[0][0] != "LP-00004-chunk-7" {
		t.Fatalf("deletes = %v", e.index.deletes)
	}
}
