package models

import (
	"fmt"
	"regexp"
)

// Metadata keys present on every stored vector.
const (
	MetaLandmarkID     = "landmark_id"
	MetaSourceType     = "source_type"
	MetaChunkIndex     = "chunk_index"
	MetaTotalChunks    = "total_chunks"
	MetaProcessingDate = "processing_date"
	MetaText           = "text"
)

// Metadata keys present on Wikipedia-sourced vectors. The quality keys
// appear only when the classifier returned a prediction.
const (
	MetaArticleTitle       = "article_title"
	MetaArticleURL         = "article_url"
	MetaArticleRevisionID  = "article_revision_id"
	MetaArticleQuality     = "article_quality"
	MetaArticleQualScore   = "article_quality_score"
	MetaArticleQualityDesc = "article_quality_description"
)

// Metadata keys present on PDF-sourced vectors.
const (
	MetaDocumentName = "document_name"
	MetaDocumentURL  = "document_url"
)

// RequiredMetaKeys lists the keys every stored vector must carry.
var RequiredMetaKeys = []string{
	MetaLandmarkID,
	MetaSourceType,
	MetaChunkIndex,
	MetaTotalChunks,
	MetaProcessingDate,
	MetaText,
}

// Chunk is one token-bounded window of a source document.
type Chunk struct {
	Text       string
	Index      int
	Total      int
	TokenCount int
	Metadata   FlatMetadata
	Embedding  []float32
}

// FlatMetadata is a flattened key to scalar map stored alongside each
// vector. Values are limited to string, bool, float64, and []string.
type FlatMetadata map[string]any

// Clone returns a shallow copy safe for per-chunk mutation.
func (m FlatMetadata) Clone() FlatMetadata {
	out := make(FlatMetadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PdfVectorID builds the deterministic ID for a PDF-sourced chunk.
func PdfVectorID(lpNumber string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", lpNumber, index)
}

// WikipediaVectorID builds the deterministic ID for a Wikipedia-sourced
// chunk. The article title is slugged so the ID stays within the
// vector store's ASCII ID alphabet.
func WikipediaVectorID(articleTitle, lpNumber string, index int) string {
	return fmt.Sprintf("wiki-%s-%s-chunk-%d", ArticleTitleSlug(articleTitle), lpNumber, index)
}

// SourceTypeFromVectorID recovers the source type encoded in a
// deterministic vector ID.
func SourceTypeFromVectorID(id string) string {
	if len(id) >= 5 && id[:5] == "wiki-" {
		return SourceWikipedia
	}
	return SourcePDF
}

var (
	pdfVectorIDRe  = regexp.MustCompile(`^LP-\d{5}-chunk-\d+$`)
	wikiVectorIDRe = regexp.MustCompile(`^wiki-[A-Za-z0-9_-]+-LP-\d{5}-chunk-\d+$`)
)

// ValidVectorID reports whether id matches one of the deterministic ID
// shapes. Anything else never came out of this pipeline.
func ValidVectorID(id string) bool {
	return pdfVectorIDRe.MatchString(id) || wikiVectorIDRe.MatchString(id)
}

// DimensionMismatchError reports a vector whose dimension does not
// match the configured embedding dimension. It is never retryable.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// VectorRecord is one stored vector as returned by fetch operations.
type VectorRecord struct {
	ID       string       `json:"id"`
	Values   []float32    `json:"values"`
	Metadata FlatMetadata `json:"metadata"`
}

// QueryMatch is one scored result of a vector query. Values is set
// only when the caller asked for vector values.
type QueryMatch struct {
	ID       string       `json:"id"`
	Score    float32      `json:"score"`
	Text     string       `json:"text"`
	Metadata FlatMetadata `json:"metadata"`
	Values   []float32    `json:"values,omitempty"`
}
