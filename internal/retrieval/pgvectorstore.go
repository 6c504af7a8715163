package retrieval

import (
	"container/heap"
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// pgScanPageSize bounds each keyset-paginated scan page.
const pgScanPageSize = 100

// PGVectorStore is the plain-Postgres VectorStore: chunks are stored as
// ordinary rows and TopK performs a tenant-scoped, keyset-paginated linear
// scan, computing cosine similarity in Go rather than pushing the
// comparison into SQL. It never uses a pgvector-extension ANN operator —
// deployments needing that reach for the Qdrant-backed VectorStore instead.
type PGVectorStore struct {
	pool *pgxpool.Pool
}

// NewPGVectorStore wraps an already-connected pool.
func NewPGVectorStore(pool *pgxpool.Pool) *PGVectorStore {
	return &PGVectorStore{pool: pool}
}

// Init creates the chunk_vectors table if it does not already exist.
func (s *PGVectorStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS chunk_vectors (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    text TEXT NOT NULL,
    embedding JSONB NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS chunk_vectors_tenant_id_idx ON chunk_vectors(tenant_id, id);
CREATE INDEX IF NOT EXISTS chunk_vectors_tenant_source_idx ON chunk_vectors(tenant_id, source_id);
`)
	return err
}

// Upsert writes or replaces chunks, scoped to each chunk's TenantID.
func (s *PGVectorStore) Upsert(ctx context.Context, chunks []model.ChunkVector) error {
	for _, c := range chunks {
		emb, err := json.Marshal(c.Embedding)
		if err != nil {
			return err
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, `
INSERT INTO chunk_vectors (id, tenant_id, source_id, version, idx, text, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    text = EXCLUDED.text, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata,
    version = EXCLUDED.version, idx = EXCLUDED.idx`,
			c.ID, c.TenantID, c.SourceID, c.Version, c.Index, c.Text, emb, meta, c.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSource removes every chunk of a source, scoped to tenantID.
func (s *PGVectorStore) DeleteSource(ctx context.Context, tenantID, sourceID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE tenant_id = $1 AND source_id = $2`, tenantID, sourceID)
	return err
}

// topKHeap is a min-heap over Scored by Score, used to keep the current top-k
// while streaming pages.
type topKHeap []Scored

func (h topKHeap) Len() int            { return len(h) }
func (h topKHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h topKHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *topKHeap) Push(x any)         { *h = append(*h, x.(Scored)) }
func (h *topKHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// TopK scans chunk_vectors for tenantID in keyset-paginated pages ordered by
// id, computing cosine similarity in Go and keeping a bounded min-heap of the
// best k candidates seen so far.
func (s *PGVectorStore) TopK(ctx context.Context, tenantID string, query []float32, k int) ([]Scored, error) {
	if k <= 0 {
		return nil, nil
	}
	h := &topKHeap{}
	heap.Init(h)

	lastID := ""
	for {
		rows, err := s.scanPage(ctx, tenantID, lastID)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		for _, c := range rows {
			score := Cosine(query, c.Embedding)
			if h.Len() < k {
				heap.Push(h, Scored{Chunk: c, Score: score})
			} else if score > (*h)[0].Score {
				heap.Pop(h)
				heap.Push(h, Scored{Chunk: c, Score: score})
			}
		}
		lastID = rows[len(rows)-1].ID
		if len(rows) < pgScanPageSize {
			break
		}
	}

	out := make([]Scored, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Scored)
	}
	return out, nil
}

func (s *PGVectorStore) scanPage(ctx context.Context, tenantID, afterID string) ([]model.ChunkVector, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, tenant_id, source_id, version, idx, text, embedding, metadata, created_at
FROM chunk_vectors
WHERE tenant_id = $1 AND id > $2
ORDER BY id ASC
LIMIT $3`, tenantID, afterID, pgScanPageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChunkVector
	for rows.Next() {
		var c model.ChunkVector
		var emb, meta []byte
		if err := rows.Scan(&c.ID, &c.TenantID, &c.SourceID, &c.Version, &c.Index, &c.Text, &emb, &meta, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(emb, &c.Embedding); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &c.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
