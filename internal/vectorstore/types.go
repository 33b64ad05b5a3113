package vectorstore

import "github.com/nyc-landmarks/vectordb/internal/models"

// Wire types for the index data plane (Pinecone-style JSON).

type upsertRequest struct {
	Vectors   []models.VectorRecord `json:"vectors"`
	Namespace string                `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

type deleteRequest struct {
	IDs       []string `json:"ids,omitempty"`
	DeleteAll bool     `json:"deleteAll,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
}

type queryWireRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata"`
	IncludeValues   bool           `json:"includeValues"`
	Namespace       string         `json:"namespace,omitempty"`
}

type wireMatch struct {
	ID       string              `json:"id"`
	Score    float32             `json:"score"`
	Metadata models.FlatMetadata `json:"metadata"`
	Values   []float32           `json:"values,omitempty"`
}

type queryWireResponse struct {
	Matches []wireMatch `json:"matches"`
}

type fetchResponse struct {
	Vectors map[string]models.VectorRecord `json:"vectors"`
}

// StoreOptions qualifies one StoreChunks call. Metadata is the enhanced
// landmark metadata shared by every chunk; per-chunk keys win on
// collision.
type StoreOptions struct {
	LandmarkID      string
	SourceType      string
	ArticleTitle    string
	Metadata        models.FlatMetadata
	ReplaceExisting bool
}

// QueryRequest is one vector search. A nil Vector queries the zero
// vector, which turns the call into a metadata-filtered listing. Filter
// entries are exact-match equality on metadata keys. IDPrefix keeps
// only matches whose ID starts with the prefix, compared
// case-insensitively after the index has answered.
type QueryRequest struct {
	Vector        []float32
	TopK          int
	Filter        map[string]any
	IDPrefix      string
	IncludeValues bool
}

// ValidationReport is the outcome of checking one stored vector
// against the storage invariants.
type ValidationReport struct {
	ID       string   `json:"id"`
	Problems []string `json:"problems,omitempty"`
}

// Valid reports whether the vector passed every check.
func (r *ValidationReport) Valid() bool { return len(r.Problems) == 0 }

// IndexStats summarizes the remote index.
type IndexStats struct {
	Dimension        int                       `json:"dimension"`
	TotalVectorCount int                       `json:"totalVectorCount"`
	Namespaces       map[string]NamespaceStats `json:"namespaces"`
}

// NamespaceStats is the per-namespace vector count.
type NamespaceStats struct {
	VectorCount int `json:"vectorCount"`
}
