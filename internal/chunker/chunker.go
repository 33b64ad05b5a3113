// Package chunker splits source text into overlapping token windows
// sized for the embedding model.
package chunker

import (
	"strings"

	"github.com/nyc-landmarks/vectordb/internal/models"
)

// Config controls window sizing.
type Config struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

// DefaultConfig matches the pipeline defaults: 500-token windows with
// 50 tokens of overlap.
func DefaultConfig() Config {
	return Config{MaxTokens: 500, OverlapTokens: 50}
}

// Chunker produces fixed-size overlapping chunks.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// New builds a chunker, falling back to defaults for non-positive or
// inconsistent values.
func New(cfg Config) *Chunker {
	d := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = d.OverlapTokens
	}
	if cfg.OverlapTokens >= cfg.MaxTokens {
		cfg.OverlapTokens = cfg.MaxTokens / 2
	}
	return &Chunker{maxTokens: cfg.MaxTokens, overlapTokens: cfg.OverlapTokens}
}

// Split cuts text into chunks of at most maxTokens tokens where
// consecutive chunks share overlapTokens tokens. Whitespace-only text
// yields no chunks; text within one window yields exactly one.
func (c *Chunker) Split(text string) []models.Chunk {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.maxTokens - c.overlapTokens

	var chunks []models.Chunk
	for start := 0; start < len(tokens); start += step {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		chunks = append(chunks, models.Chunk{
			Text:       detokenize(window),
			Index:      len(chunks),
			TokenCount: len(window),
		})
		if end == len(tokens) {
			break
		}
	}

	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}

// CountTokens reports how many tokens the chunker sees in text.
func (c *Chunker) CountTokens(text string) int {
	return len(tokenize(text))
}

// Tokens are whitespace-delimited words; rejoining with single spaces
// keeps chunk boundaries deterministic regardless of source formatting.
func tokenize(text string) []string {
	return strings.Fields(text)
}

func detokenize(tokens []string) string {
	return strings.Join(tokens, " ")
}
