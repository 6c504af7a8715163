// Package ingestion extracts, chunks, embeds, and indexes knowledge sources.
package ingestion

import (
	"errors"
	"strings"
)

// DefaultChunkSize and DefaultChunkOverlap are the recursive splitter's
// documented defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators is tried in order; the first one present in the text governs
// how it is split.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// ErrEmptyText is returned when chunking is attempted on empty input.
var ErrEmptyText = errors.New("ingestion: cannot chunk empty text")

// Chunk splits text once, on the first separator of the hierarchy that it
// contains, accumulating parts into a running chunk until the next part
// would push it past chunkSize bytes, and seeding each subsequent chunk
// with the trailing chunkOverlap bytes of the previous one. Parts are not
// split further: a part longer than chunkSize becomes a chunk on its own,
// and a seeded chunk may exceed chunkSize. Text no longer than chunkSize
// is returned as a single trimmed chunk.
func Chunk(text string, chunkSize, chunkOverlap int) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyText
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	if len(trimmed) <= chunkSize {
		return []string{trimmed}, nil
	}

	parts, sep := splitOnFirstSeparator(trimmed)

	var chunks []string
	var current strings.Builder
	for _, part := range parts {
		if current.Len() > 0 && current.Len()+len(part) > chunkSize {
			emitted := strings.TrimSpace(current.String())
			if emitted != "" {
				chunks = append(chunks, emitted)
			}
			tail := overlapTail(emitted, chunkOverlap)
			current.Reset()
			current.WriteString(tail)
			if tail != "" && sep != "" {
				current.WriteString(sep)
			}
		}
		current.WriteString(part)
	}
	if remainder := strings.TrimSpace(current.String()); remainder != "" {
		chunks = append(chunks, remainder)
	}
	return chunks, nil
}

// splitOnFirstSeparator finds the first separator present in text and
// splits on it, keeping the separator attached to the preceding part so
// reassembly preserves the original text. It also returns that separator so
// callers can reinsert it when a chunk boundary strips it off an overlap
// tail.
func splitOnFirstSeparator(text string) ([]string, string) {
	for _, sep := range separators {
		if sep == "" {
			break
		}
		if strings.Contains(text, sep) {
			raw := strings.Split(text, sep)
			parts := make([]string, 0, len(raw))
			for i, p := range raw {
				if i < len(raw)-1 {
					parts = append(parts, p+sep)
				} else if p != "" {
					parts = append(parts, p)
				}
			}
			return parts, sep
		}
	}
	// No separator found: fall back to individual characters.
	parts := make([]string, 0, len(text))
	for _, r := range text {
		parts = append(parts, string(r))
	}
	return parts, ""
}

func overlapTail(s string, overlap int) string {
	if overlap <= 0 || len(s) == 0 {
		return ""
	}
	if len(s) <= overlap {
		return s
	}
	return s[len(s)-overlap:]
}
