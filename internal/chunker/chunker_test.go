package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestSplitEmptyText(t *testing.T) {
	c := New(Config{MaxTokens: 10, OverlapTokens: 2})
	if got := c.Split(""); got != nil {
		t.Fatalf("empty text produced %d chunks", len(got))
	}
	if got := c.Split("   \n\t  "); got != nil {
		t.Fatalf("whitespace text produced %d chunks", len(got))
	}
}

func TestSplitSingleChunk(t *testing.T) {
	c := New(Config{MaxTokens: 10, OverlapTokens: 2})
	chunks := c.Split(words(10))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[0].Total != 1 {
		t.Fatalf("chunk bookkeeping wrong: index %d total %d", chunks[0].Index, chunks[0].Total)
	}
	if chunks[0].TokenCount != 10 {
		t.Fatalf("token count = %d, want 10", chunks[0].TokenCount)
	}
}

func TestSplitWindowsAndOverlap(t *testing.T) {
	c := New(Config{MaxTokens: 10, OverlapTokens: 3})
	chunks := c.Split(words(25))

	// step 7: windows [0,10) [7,17) [14,24) [21,25)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if ch.Total != 4 {
			t.Errorf("chunk %d has total %d", i, ch.Total)
		}
	}
	for i := 0; i < len(chunks)-1; i++ {
		if chunks[i].TokenCount != 10 {
			t.Errorf("chunk %d token count = %d, want 10", i, chunks[i].TokenCount)
		}
	}
	if last := chunks[len(chunks)-1]; last.TokenCount != 4 {
		t.Errorf("final chunk token count = %d, want 4", last.TokenCount)
	}

	// Consecutive chunks share exactly the overlap tokens.
	prev := strings.Fields(chunks[0].Text)
	next := strings.Fields(chunks[1].Text)
	tail := strings.Join(prev[len(prev)-3:], " ")
	head := strings.Join(next[:3], " ")
	if tail != head {
		t.Fatalf("overlap mismatch: %q vs %q", tail, head)
	}
}

func TestSplitExactMultiple(t *testing.T) {
	// 20 tokens, window 10, overlap 0: exactly two windows, no empty tail.
	c := New(Config{MaxTokens: 10, OverlapTokens: 0})
	chunks := c.Split(words(20))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if ch.TokenCount != 10 {
			t.Fatalf("chunk token count = %d, want 10", ch.TokenCount)
		}
	}
}

func TestNewRepairsBadOverlap(t *testing.T) {
	c := New(Config{MaxTokens: 10, OverlapTokens: 10})
	chunks := c.Split(words(30))
	if len(chunks) == 0 {
		t.Fatal("chunker with repaired overlap produced nothing")
	}
	// Repaired overlap is half the window, so the walk advances.
	if chunks[0].Text == chunks[1].Text {
		t.Fatal("chunker did not advance between windows")
	}
}

func TestSplitNormalizesWhitespace(t *testing.T) {
	c := New(DefaultConfig())
	chunks := c.Split("one\n\ntwo\tthree   four")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "one two three four" {
		t.Fatalf("whitespace not normalized: %q", chunks[0].Text)
	}
}

func TestCountTokens(t *testing.T) {
	c := New(DefaultConfig())
	if n := c.CountTokens("a b  c"); n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
	if n := c.CountTokens(""); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}
