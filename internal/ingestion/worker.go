package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nextlevelbuilder/convoy/internal/model"
	"github.com/nextlevelbuilder/convoy/internal/retrieval"
)

// embedBatchSize bounds the number of chunks embedded per embeddings call.
const embedBatchSize = 20

// Event is the durable trigger for one source's ingestion, matching the
// payload a workflow scheduler (or a direct API call) enqueues.
type Event struct {
	SourceID string             `json:"sourceId"`
	TenantID string             `json:"tenantId"`
	Type     model.KnowledgeKind `json:"type"`
	URL      string             `json:"url,omitempty"`
	FileID   string             `json:"fileId,omitempty"`
	Content  string             `json:"content,omitempty"`
	Title    string             `json:"title,omitempty"`
	Version  int                `json:"version,omitempty"`
}

// SourceStore is the subset of the persistence gateway the pipeline needs
// to track a KnowledgeSource's status across steps.
type SourceStore interface {
	GetKnowledgeSource(ctx context.Context, tenantID, id string) (model.KnowledgeSource, error)
	UpsertKnowledgeSource(ctx context.Context, ks model.KnowledgeSource) error
	UpdateKnowledgeStatus(ctx context.Context, tenantID, id string, status model.KnowledgeStatus, version int, metadata map[string]string) error
}

// CacheInvalidator is the tenant-wide semantic cache invalidation hook
// invoked after a source is published.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// Auditor records ingestion outcomes. Best-effort; failures are logged, not
// propagated.
type Auditor interface {
	Record(ev model.AuditEvent)
}

// Processor runs one Event through extract -> chunk -> delete-old-vectors ->
// embed-and-upsert -> publish -> invalidate-cache.
type Processor struct {
	Sources      SourceStore
	Extractor    *Extractor
	VectorStore  retrieval.VectorStore
	Embedder     retrieval.Embedder
	Cache        CacheInvalidator
	Audit        Auditor
	ChunkSize    int
	ChunkOverlap int
}

// Process runs one ingestion event to completion, transitioning the source
// to ready or failed. Every run deletes the source's prior vectors before
// upserting new ones so retrieval never observes a mix of two versions; the
// event's Version is not compared with the last processed one.
func (p *Processor) Process(ctx context.Context, ev Event) error {
	version := ev.Version
	if version == 0 {
		version = 1
	}

	src := model.KnowledgeSource{
		ID:       ev.SourceID,
		TenantID: ev.TenantID,
		Kind:     ev.Type,
		URI:      firstNonEmpty(ev.URL, ev.FileID),
		Text:     ev.Content,
		Status:   model.KnowledgeStatusProcessing,
		Version:  version,
	}
	if err := p.Sources.UpsertKnowledgeSource(ctx, src); err != nil {
		return fmt.Errorf("ingestion: record source: %w", err)
	}

	text, err := p.Extractor.Extract(ctx, src)
	if err != nil {
		p.fail(ctx, ev.TenantID, ev.SourceID, version, "extract", err)
		return err
	}

	chunks, err := Chunk(text, p.chunkSize(), p.chunkOverlap())
	if err != nil {
		p.fail(ctx, ev.TenantID, ev.SourceID, version, "chunk", err)
		return err
	}

	if err := p.VectorStore.DeleteSource(ctx, ev.TenantID, ev.SourceID); err != nil {
		p.fail(ctx, ev.TenantID, ev.SourceID, version, "delete_old_vectors", err)
		return err
	}

	vectorsCount, err := p.embedAndUpsert(ctx, ev.TenantID, ev.SourceID, version, chunks)
	if err != nil {
		p.fail(ctx, ev.TenantID, ev.SourceID, version, "embed_and_upsert", err)
		return err
	}

	meta := map[string]string{
		"title":        ev.Title,
		"chunksCount":  fmt.Sprintf("%d", len(chunks)),
		"vectorsCount": fmt.Sprintf("%d", vectorsCount),
		"processedAt":  time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.Sources.UpdateKnowledgeStatus(ctx, ev.TenantID, ev.SourceID, model.KnowledgeStatusReady, version, meta); err != nil {
		return fmt.Errorf("ingestion: update status ready: %w", err)
	}
	p.emit(ev.TenantID, "knowledge.processed", map[string]any{"sourceId": ev.SourceID, "chunksCount": len(chunks), "vectorsCount": vectorsCount})

	if p.Cache != nil {
		if err := p.Cache.Invalidate(ctx, ev.TenantID); err != nil {
			log.Warn().Err(err).Str("tenantId", ev.TenantID).Msg("ingestion: cache invalidation failed")
		}
	}
	return nil
}

func (p *Processor) embedAndUpsert(ctx context.Context, tenantID, sourceID string, version int, chunks []string) (int, error) {
	total := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vecs, err := p.Embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return total, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return total, fmt.Errorf("embed batch [%d:%d]: got %d vectors for %d chunks", start, end, len(vecs), len(batch))
		}

		out := make([]model.ChunkVector, len(batch))
		for i, text := range batch {
			idx := start + i
			out[i] = model.ChunkVector{
				ID:        retrieval.ChunkID(sourceID, version, idx),
				TenantID:  tenantID,
				SourceID:  sourceID,
				Version:   version,
				Index:     idx,
				Text:      text,
				Embedding: vecs[i],
				CreatedAt: time.Now(),
			}
		}
		if err := p.VectorStore.Upsert(ctx, out); err != nil {
			return total, fmt.Errorf("upsert batch [%d:%d]: %w", start, end, err)
		}
		total += len(out)
	}
	return total, nil
}

func (p *Processor) fail(ctx context.Context, tenantID, sourceID string, version int, step string, cause error) {
	meta := map[string]string{"failedStep": step, "error": cause.Error()}
	if err := p.Sources.UpdateKnowledgeStatus(ctx, tenantID, sourceID, model.KnowledgeStatusFailed, version, meta); err != nil {
		log.Error().Err(err).Str("sourceId", sourceID).Msg("ingestion: failed to record failure status")
	}
	p.emit(tenantID, "ingestion.failed", map[string]any{"sourceId": sourceID, "step": step, "error": cause.Error()})
}

func (p *Processor) emit(tenantID, kind string, detail map[string]any) {
	if p.Audit == nil {
		return
	}
	p.Audit.Record(model.AuditEvent{ID: uuid.NewString(), TenantID: tenantID, Kind: kind, Detail: detail, CreatedAt: time.Now()})
}

func (p *Processor) chunkSize() int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return DefaultChunkSize
}

func (p *Processor) chunkOverlap() int {
	if p.ChunkOverlap > 0 {
		return p.ChunkOverlap
	}
	return DefaultChunkOverlap
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DecodeEvent parses a raw Kafka message payload into an Event.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("ingestion: decode event: %w", err)
	}
	if ev.SourceID == "" || ev.TenantID == "" {
		return Event{}, fmt.Errorf("ingestion: event missing sourceId/tenantId")
	}
	return ev, nil
}
