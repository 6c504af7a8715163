package retrieval

import (
	"strings"
	"testing"
)

func TestCosine(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Cosine(tc.a, tc.b)
			if diff := got - tc.want; diff > 1e-4 || diff < -1e-4 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestChunkID(t *testing.T) {
	t.Run("short id passes through", func(t *testing.T) {
		id := ChunkID("src-1", 2, 3)
		want := "src-1#v2#chunk-3"
		if id != want {
			t.Errorf("ChunkID() = %q, want %q", id, want)
		}
	})

	t.Run("long id truncated to max length", func(t *testing.T) {
		longSource := strings.Repeat("x", 80)
		id := ChunkID(longSource, 1, 42)
		if len(id) > maxChunkIDLen {
			t.Errorf("ChunkID() len = %d, want <= %d", len(id), maxChunkIDLen)
		}
		if !strings.HasSuffix(id, "#v1#chunk-42") {
			t.Errorf("ChunkID() = %q, want suffix #v1#chunk-42", id)
		}
	})
}
