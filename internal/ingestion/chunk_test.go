package ingestion

import (
	"strings"
	"testing"
)

func TestChunkShortTextIsOneChunk(t *testing.T) {
	text := "  a short paragraph about refunds  "
	chunks, err := Chunk(text, 1000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != strings.TrimSpace(text) {
		t.Fatalf("expected trimmed input unchanged, got %q", chunks[0])
	}
}

func TestChunkEmptyTextFails(t *testing.T) {
	if _, err := Chunk("   ", 1000, 200); err != ErrEmptyText {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestChunkSplitsLongTextWithOverlap(t *testing.T) {
	para := strings.Repeat("refund policy details. ", 100)
	chunks, err := Chunk(para, 200, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) == 0 {
			t.Fatal("expected no empty chunks")
		}
	}
}

func TestChunkReseedsOverlapWithSeparator(t *testing.T) {
	para := strings.Repeat("refund policy details. ", 100)
	chunks, err := Chunk(para, 200, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(chunks); i++ {
		if strings.Contains(chunks[i], "details.refund") {
			t.Fatalf("chunk %d lost its separator between overlap tail and next part: %q", i, chunks[i])
		}
	}
}

func TestChunkRespectsSeparatorHierarchy(t *testing.T) {
	text := "first paragraph is long enough to matter.\n\nsecond paragraph is also long enough to matter here."
	chunks, err := Chunk(text, 40, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected split across paragraph boundary, got %d chunks: %v", len(chunks), chunks)
	}
}
