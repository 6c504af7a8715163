package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// maxChunkIDLen bounds deterministic chunk ids for storage engines (e.g. as
// Qdrant payload values or fixed-width columns) that cap identifier length.
const maxChunkIDLen = 36

// ChunkID builds the deterministic id "{sourceId}#v{version}#chunk-{index}",
// truncated to maxChunkIDLen when the source id is long.
func ChunkID(sourceID string, version, index int) string {
	suffix := fmt.Sprintf("#v%d#chunk-%d", version, index)
	id := sourceID + suffix
	if len(id) <= maxChunkIDLen {
		return id
	}
	keep := maxChunkIDLen - len(suffix)
	if keep < 0 {
		keep = 0
	}
	return strings.TrimRight(sourceID[:keep], "#") + suffix
}

// VectorStore is the tenant-scoped store of embedded chunks. Implementations
// back either the reference (linear-scan) semantics or an ANN index; both
// satisfy the same contract.
type VectorStore interface {
	// Upsert writes or replaces chunks, scoped to chunk.TenantID.
	Upsert(ctx context.Context, chunks []model.ChunkVector) error
	// DeleteSource removes every chunk of a source, scoped to tenantID.
	DeleteSource(ctx context.Context, tenantID, sourceID string) error
	// TopK returns the k nearest chunks to query within tenantID, ordered by
	// descending cosine similarity.
	TopK(ctx context.Context, tenantID string, query []float32, k int) ([]Scored, error)
}

// Scored pairs a ChunkVector with its similarity to a query.
type Scored struct {
	Chunk model.ChunkVector
	Score float32
}

// Cosine computes cosine similarity between two equal-length vectors. It
// returns 0 if either vector has zero magnitude.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
