package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// payloadIDField stores the original (non-UUID) chunk id in the point
// payload; Qdrant point ids must be UUIDs or positive integers.
const payloadIDField = "_original_id"

// QdrantVectorStore is an ANN VectorStore backend, offered as an explicit
// substitution for PGVectorStore's reference linear scan once a tenant's
// corpus outgrows it.
type QdrantVectorStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantVectorStore connects to host:port and ensures the collection
// exists with a cosine-distance config of the given dimension.
func NewQdrantVectorStore(ctx context.Context, host string, port, dimension int) (*QdrantVectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant vector store requires dimension > 0")
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	s := &QdrantVectorStore{client: client, collection: "chunk_vectors", dimension: dimension}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantVectorStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointID(chunkID string) *qdrant.PointId {
	if _, err := uuid.Parse(chunkID); err == nil {
		return qdrant.NewIDUUID(chunkID)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String())
}

// Upsert writes points tagged with tenant_id, source_id, and the original
// chunk id so TopK can filter by tenant and results can be mapped back.
func (s *QdrantVectorStore) Upsert(ctx context.Context, chunks []model.ChunkVector) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload := map[string]any{
			payloadIDField: c.ID,
			"tenant_id":    c.TenantID,
			"source_id":    c.SourceID,
			"version":      c.Version,
			"idx":          c.Index,
			"text":         c.Text,
		}
		vec := make([]float32, len(c.Embedding))
		copy(vec, c.Embedding)
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(c.ID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: s.collection, Points: points})
	return err
}

// DeleteSource removes every point for a source within tenantID.
func (s *QdrantVectorStore) DeleteSource(ctx context.Context, tenantID, sourceID string) error {
	filter := &qdrant.Filter{Must: []*qdrant.Condition{
		qdrant.NewMatch("tenant_id", tenantID),
		qdrant.NewMatch("source_id", sourceID),
	}}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	return err
}

// TopK queries the collection filtered to tenantID and returns the k nearest
// chunks by cosine similarity, as computed by Qdrant itself.
func (s *QdrantVectorStore) TopK(ctx context.Context, tenantID string, query []float32, k int) ([]Scored, error) {
	if k <= 0 {
		return nil, nil
	}
	vec := make([]float32, len(query))
	copy(vec, query)
	limit := uint64(k)
	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("tenant_id", tenantID)}}
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(hits))
	for _, hit := range hits {
		c := model.ChunkVector{TenantID: tenantID}
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadIDField]; ok {
				c.ID = v.GetStringValue()
			}
			if v, ok := hit.Payload["source_id"]; ok {
				c.SourceID = v.GetStringValue()
			}
			if v, ok := hit.Payload["text"]; ok {
				c.Text = v.GetStringValue()
			}
			if v, ok := hit.Payload["version"]; ok {
				c.Version = int(v.GetIntegerValue())
			}
			if v, ok := hit.Payload["idx"]; ok {
				c.Index = int(v.GetIntegerValue())
			}
		}
		out = append(out, Scored{Chunk: c, Score: hit.Score})
	}
	return out, nil
}

// Close releases the underlying gRPC connection.
func (s *QdrantVectorStore) Close() error {
	return s.client.Close()
}
