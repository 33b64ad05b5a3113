package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxAttempts:     3,
		Multiplier:      1.5,
	}
}

// fakeIndex is an in-memory stand-in for the index data plane.
type fakeIndex struct {
	srv *httptest.Server

	mu      sync.Mutex
	upserts []upsertRequest
	deletes []deleteRequest
	queries []queryWireRequest
	apiKeys []string

	// failUpsertAtOrAbove fails upserts holding at least this many
	// vectors; zero disables failures.
	failUpsertAtOrAbove int
	matches             []wireMatch
	dimension           int

	// records backs /vectors/fetch when set; otherwise every requested
	// ID is fabricated.
	records map[string]models.VectorRecord
}

func newFakeIndex(t *testing.T) *fakeIndex {
	t.Helper()
	f := &fakeIndex{dimension: 4}

	mux := http.NewServeMux()
	mux.HandleFunc("/vectors/upsert", func(w http.ResponseWriter, r *http.Request) {
		var req upsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode upsert: %v", err)
		}
		f.mu.Lock()
		f.upserts = append(f.upserts, req)
		f.apiKeys = append(f.apiKeys, r.Header.Get("Api-Key"))
		fail := f.failUpsertAtOrAbove > 0 && len(req.Vectors) >= f.failUpsertAtOrAbove
		f.mu.Unlock()
		if fail {
			http.Error(w, "request too large", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(upsertResponse{UpsertedCount: len(req.Vectors)})
	})
	mux.HandleFunc("/vectors/delete", func(w http.ResponseWriter, r *http.Request) {
		var req deleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode delete: %v", err)
		}
		f.mu.Lock()
		f.deletes = append(f.deletes, req)
		f.mu.Unlock()
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		var req queryWireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode query: %v", err)
		}
		f.mu.Lock()
		f.queries = append(f.queries, req)
		matches := f.matches
		f.mu.Unlock()
		json.NewEncoder(w).Encode(queryWireResponse{Matches: matches})
	})
	mux.HandleFunc("/vectors/fetch", func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Query()["ids"]
		f.mu.Lock()
		known := f.records
		f.mu.Unlock()
		vectors := make(map[string]models.VectorRecord, len(ids))
		for _, id := range ids {
			if known != nil {
				if rec, ok := known[id]; ok {
					vectors[id] = rec
				}
				continue
			}
			vectors[id] = models.VectorRecord{
				ID:       id,
				Values:   []float32{1, 2, 3, 4},
				Metadata: models.FlatMetadata{"text": "stored text"},
			}
		}
		json.NewEncoder(w).Encode(fetchResponse{Vectors: vectors})
	})
	mux.HandleFunc("/describe_index_stats", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		dim := f.dimension
		f.mu.Unlock()
		json.NewEncoder(w).Encode(IndexStats{
			Dimension:        dim,
			TotalVectorCount: 42,
			Namespaces:       map[string]NamespaceStats{"test": {VectorCount: 42}},
		})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIndex) upsertSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.upserts))
	for i, u := range f.upserts {
		sizes[i] = len(u.Vectors)
	}
	return sizes
}

func testStoreClient(t *testing.T, f *fakeIndex, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		IndexHost:       f.srv.URL,
		APIKey:          "test-key",
		Namespace:       "test",
		Dimension:       4,
		UpsertBatchSize: 3,
		Retry:           fastPolicy(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewClient(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func testChunks(n, dim int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		emb := make([]float32, dim)
		emb[0] = float32(i + 1)
		chunks[i] = models.Chunk{
			Text:       fmt.Sprintf("chunk %d text", i),
			Index:      i,
			Total:      n,
			TokenCount: 3,
			Metadata:   models.FlatMetadata{"document_name": "Designation Report"},
			Embedding:  emb,
		}
	}
	return chunks
}

func TestStoreChunksAssignsDeterministicIDs(t *testing.T) {
	f := newFakeIndex(t)
	client := testStoreClient(t, f, nil)

	ids, err := client.StoreChunks(context.Background(), testChunks(5, 4), StoreOptions{
		LandmarkID: "LP-00001",
		SourceType: models.SourcePDF,
		Metadata:   models.FlatMetadata{"borough": "Brooklyn", "document_name": "enhanced value"},
	})
	if err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}

	for i, id := range ids {
		if want := fmt.Sprintf("LP-00001-chunk-%d", i); id != want {
			t.Errorf("id[%d] = %q, want %q", i, id, want)
		}
	}
	if got := f.upsertSizes(); !reflect.DeepEqual(got, []int{3, 2}) {
		t.Fatalf("expected batches [3 2], got %v", got)
	}

	first := f.upserts[0]
	if first.Namespace != "test" {
		t.Errorf("namespace not propagated: %q", first.Namespace)
	}
	if f.apiKeys[0] != "test-key" {
		t.Errorf("Api-Key header missing, got %q", f.apiKeys[0])
	}

	meta := first.Vectors[0].Metadata
	if meta[models.MetaLandmarkID] != "LP-00001" || meta[models.MetaSourceType] != "pdf" {
		t.Fatalf("required keys missing: %v", meta)
	}
	// Numeric scalars are stringified on write.
	if meta[models.MetaChunkIndex] != "0" || meta[models.MetaTotalChunks] != "5" {
		t.Fatalf("chunk accounting keys wrong: %v", meta)
	}
	if meta[models.MetaText] != "chunk 0 text" {
		t.Fatalf("text key wrong: %v", meta[models.MetaText])
	}
	if _, ok := meta[models.MetaProcessingDate].(string); !ok {
		t.Fatalf("processing_date missing: %v", meta)
	}
	if meta["borough"] != "Brooklyn" {
		t.Fatalf("enhanced metadata not merged: %v", meta)
	}
	// Per-chunk keys win over enhanced metadata on collision.
	if meta["document_name"] != "Designation Report" {
		t.Fatalf("chunk metadata should win collisions: %v", meta["document_name"])
	}
}

func TestStoreChunksWikipediaIDs(t *testing.T) {
	f := newFakeIndex(t)
	client := testStoreClient(t, f, nil)

	ids, err := client.StoreChunks(context.Background(), testChunks(2, 4), StoreOptions{
		LandmarkID:   "LP-00001",
		SourceType:   models.SourceWikipedia,
		ArticleTitle: "Wyckoff House",
	})
	if err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}
	want := []string{
		"wiki-Wyckoff_House-LP-00001-chunk-0",
		"wiki-Wyckoff_House-LP-00001-chunk-1",
	}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}

	meta := f.upserts[0].Vectors[0].Metadata
	if meta[models.MetaArticleTitle] != "Wyckoff House" {
		t.Fatalf("article title not stamped on metadata: %v", meta)
	}
	if meta[models.MetaSourceType] != "wikipedia" {
		t.Fatalf("source type wrong: %v", meta[models.MetaSourceType])
	}
}

func TestStoreChunksReplaceExisting(t *testing.T) {
	f := newFakeIndex(t)
	f.matches = []wireMatch{
		{ID: "LP-00001-chunk-0", Score: 0},
		{ID: "LP-00001-chunk-1", Score: 0},
	}
	client := testStoreClient(t, f, nil)

	_, err := client.StoreChunks(context.Background(), testChunks(1, 4), StoreOptions{
		LandmarkID:      "LP-00001",
		SourceType:      models.SourcePDF,
		ReplaceExisting: true,
	})
	if err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}

	if len(f.queries) != 1 {
		t.Fatalf("expected 1 scan query, got %d", len(f.queries))
	}
	scan := f.queries[0]
	if scan.TopK != 1000 {
		t.Errorf("scan should use the delete scan limit, got topK %d", scan.TopK)
	}
	for _, v := range scan.Vector {
		if v != 0 {
			t.Fatalf("scan must use the zero vector, got %v", scan.Vector)
		}
	}
	wantFilter := map[string]any{
		"landmark_id": map[string]any{"$eq": "LP-00001"},
		"source_type": map[string]any{"$eq": "pdf"},
	}
	if !reflect.DeepEqual(scan.Filter, wantFilter) {
		t.Fatalf("scan filter = %v, want %v", scan.Filter, wantFilter)
	}

	if len(f.deletes) != 1 {
		t.Fatalf("expected 1 delete, got %d", len(f.deletes))
	}
	if !reflect.DeepEqual(f.deletes[0].IDs, []string{"LP-00001-chunk-0", "LP-00001-chunk-1"}) {
		t.Fatalf("unexpected delete ids %v", f.deletes[0].IDs)
	}
	if len(f.upserts) != 1 {
		t.Fatalf("expected 1 upsert after replace, got %d", len(f.upserts))
	}
}

func TestStoreChunksSplitsFailedBatch(t *testing.T) {
	f := newFakeIndex(t)
	f.failUpsertAtOrAbove = 3
	client := testStoreClient(t, f, func(cfg *Config) {
		cfg.UpsertBatchSize = 4
		cfg.UpsertMaxRetries = 0
	})

	ids, err := client.StoreChunks(context.Background(), testChunks(4, 4), StoreOptions{
		LandmarkID: "LP-00002",
		SourceType: models.SourcePDF,
	})
	if err != nil {
		t.Fatalf("StoreChunks with split: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("expected 4 ids, got %d", len(ids))
	}
	if got := f.upsertSizes(); !reflect.DeepEqual(got, []int{4, 2, 2}) {
		t.Fatalf("expected sizes [4 2 2], got %v", got)
	}
}

func TestStoreChunksSingleVectorFailure(t *testing.T) {
	f := newFakeIndex(t)
	f.failUpsertAtOrAbove = 1
	client := testStoreClient(t, f, func(cfg *Config) {
		cfg.UpsertBatchSize = 1
		cfg.UpsertMaxRetries = 0
	})

	_, err := client.StoreChunks(context.Background(), testChunks(1, 4), StoreOptions{
		LandmarkID: "LP-00003",
		SourceType: models.SourcePDF,
	})
	if err == nil {
		t.Fatal("expected error for unsplittable failing batch")
	}
	if got := f.upsertSizes(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("single-vector batch must not split, got %v", got)
	}
}

func TestStoreChunksRejectsWrongDimension(t *testing.T) {
	f := newFakeIndex(t)
	client := testStoreClient(t, f, nil)

	_, err := client.StoreChunks(context.Background(), testChunks(1, 3), StoreOptions{
		LandmarkID: "LP-00004",
		SourceType: models.SourcePDF,
	})
	var mismatch *models.DimensionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if len(f.upserts) != 0 {
		t.Fatal("nothing should reach the index on dimension mismatch")
	}
}

func TestStoreChunksValidatesOptions(t *testing.T) {
	f := newFakeIndex(t)
	client := testStoreClient(t, f, nil)
	chunks := testChunks(1, 4)

	cases := map[string]StoreOptions{
		"missing landmark id": {SourceType: models.SourcePDF},
		"unknown source type": {LandmarkID: "LP-00001", SourceType: "carousel"},
		"wiki without title":  {LandmarkID: "LP-00001", SourceType: models.SourceWikipedia},
	}
	for name, opts := range cases {
		if _, err := client.StoreChunks(context.Background(), chunks, opts); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestStoreChunksRejectsNonFlatMetadata(t *testing.T) {
	f := newFakeIndex(t)
	client := testStoreClient(t, f, nil)

	chunks := testChunks(2, 4)
	chunks[1].Metadata = models.FlatMetadata{"buildings": map[string]any{"address": "nested"}}

	_, err := client.StoreChunks(context.Background(), chunks, StoreOptions{
		LandmarkID: "LP-00001",
		SourceType: models.SourcePDF,
	})
	if err == nil {
		t.Fatal("expected non-flat metadata to be rejected")
	}
	if len(f.upserts) != 0 {
		t.Fatal("no batch may be committed when any record is invalid")
	}
}

func TestStoreChunksRejectsEmptyText(t *testing.T) {
	f := newFakeIndex(t)
	client := testStoreClient(t, f, nil)

	chunks := testChunks(1, 4)
	chunks[0].Text = "   "

	if _, err := client.StoreChunks(context.Background(), chunks, StoreOptions{
		LandmarkID: "LP-00001",
		SourceType: models.SourcePDF,
	}); err == nil {
		t.Fatal("expected empty chunk text to be rejected")
	}
	if len(f.upserts) != 0 {
		t.Fatal("nothing should reach the index for empty text")
	}
}

func TestStoreChunksWriteRepresentation(t *testing.T) {
	f := newFakeIndex(t)
	client := testStoreClient(t, f, nil)

	_, err := client.StoreChunks(context.Background(), testChunks(1, 4), StoreOptions{
		LandmarkID: "LP-00001",
		SourceType: models.SourcePDF,
		Metadata: models.FlatMetadata{
			"has_photo":      true,
			"pluto_lot_area": 10512.5,
			"building_names": []string{"Wyckoff House"},
			"neighborhood":   "",
		},
	})
	if err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}

	meta := f.upserts[0].Vectors[0].Metadata
	if meta["has_photo"] != true {
		t.Errorf("booleans must be preserved, got %v (%T)", meta["has_photo"], meta["has_photo"])
	}
	if meta["pluto_lot_area"] != "10512.5" {
		t.Errorf("floats must be stringified, got %v (%T)", meta["pluto_lot_area"], meta["pluto_lot_area"])
	}
	if _, ok := meta["neighborhood"]; ok {
		t.Error("empty strings must be dropped")
	}
	names, ok := meta["building_names"].([]any)
	if !ok || len(names) != 1 || names[0] != "Wyckoff House" {
		t.Errorf("string lists must pass through, got %v", meta["building_names"])
	}
}
