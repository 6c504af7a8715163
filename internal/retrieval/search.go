package retrieval

import (
	"context"
	"fmt"
	"time"
)

// Diagnostics carries retrieval timings for observability.
type Diagnostics struct {
	EmbedLatency time.Duration
	SearchLatency time.Duration
	Count         int
}

// Retriever embeds a query and searches a VectorStore for the top-K most
// similar chunks within a tenant.
type Retriever struct {
	Embedder Embedder
	Store    VectorStore
}

// Search embeds query and returns the top-K scored chunks for tenantID.
func (r *Retriever) Search(ctx context.Context, tenantID, query string, k int) ([]Scored, Diagnostics, error) {
	t0 := time.Now()
	vecs, err := r.Embedder.EmbedBatch(ctx, []string{query})
	embedLatency := time.Since(t0)
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, Diagnostics{}, fmt.Errorf("embed query: no vector returned")
	}

	t1 := time.Now()
	results, err := r.Store.TopK(ctx, tenantID, vecs[0], k)
	searchLatency := time.Since(t1)
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("vector search: %w", err)
	}
	return results, Diagnostics{EmbedLatency: embedLatency, SearchLatency: searchLatency, Count: len(results)}, nil
}
