package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/convoy/internal/model"
	"github.com/nextlevelbuilder/convoy/internal/retrieval"
)

type fakeSourceStore struct {
	mu      sync.Mutex
	sources map[string]model.KnowledgeSource
}

func newFakeSourceStore() *fakeSourceStore {
	return &fakeSourceStore{sources: map[string]model.KnowledgeSource{}}
}

func (f *fakeSourceStore) GetKnowledgeSource(ctx context.Context, tenantID, id string) (model.KnowledgeSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ks, ok := f.sources[id]
	if !ok || ks.TenantID != tenantID {
		return model.KnowledgeSource{}, errors.New("not found")
	}
	return ks, nil
}

func (f *fakeSourceStore) UpsertKnowledgeSource(ctx context.Context, ks model.KnowledgeSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[ks.ID] = ks
	return nil
}

func (f *fakeSourceStore) UpdateKnowledgeStatus(ctx context.Context, tenantID, id string, status model.KnowledgeStatus, version int, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ks, ok := f.sources[id]
	if !ok || ks.TenantID != tenantID {
		return errors.New("not found")
	}
	ks.Status = status
	ks.Version = version
	ks.Metadata = metadata
	f.sources[id] = ks
	return nil
}

type fakeVectorStore struct {
	mu         sync.Mutex
	upserted   []model.ChunkVector
	deleted    []string
	failUpsert bool
}

func (f *fakeVectorStore) Upsert(ctx context.Context, chunks []model.ChunkVector) error {
	if f.failUpsert {
		return errors.New("upsert failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeVectorStore) DeleteSource(ctx context.Context, tenantID, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sourceID)
	return nil
}

func (f *fakeVectorStore) TopK(ctx context.Context, tenantID string, query []float32, k int) ([]retrieval.Scored, error) {
	return nil, nil
}

type fakeEmbedder struct {
	failBatch bool
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failBatch {
		return nil, errors.New("embedding provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }
func (f *fakeEmbedder) Model() string  { return "fake-embed" }

type fakeCacheInvalidator struct {
	calls []string
}

func (f *fakeCacheInvalidator) Invalidate(ctx context.Context, tenantID string) error {
	f.calls = append(f.calls, tenantID)
	return nil
}

type fakeAuditor struct {
	events []model.AuditEvent
}

func (f *fakeAuditor) Record(ev model.AuditEvent) {
	f.events = append(f.events, ev)
}

func newTestProcessor() (*Processor, *fakeSourceStore, *fakeVectorStore, *fakeCacheInvalidator, *fakeAuditor) {
	sources := newFakeSourceStore()
	vectors := &fakeVectorStore{}
	cache := &fakeCacheInvalidator{}
	auditor := &fakeAuditor{}
	p := &Processor{
		Sources:     sources,
		Extractor:   NewExtractor(nil, nil),
		VectorStore: vectors,
		Embedder:    &fakeEmbedder{},
		Cache:       cache,
		Audit:       auditor,
	}
	return p, sources, vectors, cache, auditor
}

func TestProcessorProcessManualSourceSucceeds(t *testing.T) {
	p, sources, vectors, cache, auditor := newTestProcessor()

	ev := Event{
		SourceID: "src-1",
		TenantID: "tenant-a",
		Type:     model.KnowledgeKindManual,
		Content:  "refund policy details that are long enough to matter here and there.",
		Title:    "Refund Policy",
		Version:  1,
	}

	err := p.Process(context.Background(), ev)
	require.NoError(t, err)

	ks, err := sources.GetKnowledgeSource(context.Background(), "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Equal(t, model.KnowledgeStatusReady, ks.Status)
	assert.Equal(t, 1, ks.Version)
	assert.Equal(t, "Refund Policy", ks.Metadata["title"])

	assert.Len(t, vectors.deleted, 1)
	assert.NotEmpty(t, vectors.upserted)
	assert.Equal(t, []string{"tenant-a"}, cache.calls)
	assert.NotEmpty(t, auditor.events)
	assert.Equal(t, "knowledge.processed", auditor.events[len(auditor.events)-1].Kind)
}

func TestProcessorProcessEmptyContentFailsAtChunkStep(t *testing.T) {
	p, sources, _, _, auditor := newTestProcessor()

	ev := Event{SourceID: "src-2", TenantID: "tenant-a", Type: model.KnowledgeKindManual, Content: "   ", Version: 1}

	err := p.Process(context.Background(), ev)
	require.Error(t, err)

	ks, gerr := sources.GetKnowledgeSource(context.Background(), "tenant-a", "src-2")
	require.NoError(t, gerr)
	assert.Equal(t, model.KnowledgeStatusFailed, ks.Status)
	assert.Equal(t, "chunk", ks.Metadata["failedStep"])

	require.NotEmpty(t, auditor.events)
	assert.Equal(t, "ingestion.failed", auditor.events[len(auditor.events)-1].Kind)
}

func TestProcessorProcessEmbeddingFailureMarksSourceFailed(t *testing.T) {
	p, sources, _, _, _ := newTestProcessor()
	p.Embedder = &fakeEmbedder{failBatch: true}

	ev := Event{SourceID: "src-3", TenantID: "tenant-a", Type: model.KnowledgeKindManual, Content: "some real content to embed.", Version: 1}

	err := p.Process(context.Background(), ev)
	require.Error(t, err)

	ks, gerr := sources.GetKnowledgeSource(context.Background(), "tenant-a", "src-3")
	require.NoError(t, gerr)
	assert.Equal(t, model.KnowledgeStatusFailed, ks.Status)
	assert.Equal(t, "embed_and_upsert", ks.Metadata["failedStep"])
}

func TestProcessorProcessUnknownKindFailsAtExtractStep(t *testing.T) {
	p, sources, _, _, _ := newTestProcessor()

	ev := Event{SourceID: "src-4", TenantID: "tenant-a", Type: model.KnowledgeKind("unknown"), Version: 1}

	err := p.Process(context.Background(), ev)
	require.Error(t, err)

	ks, gerr := sources.GetKnowledgeSource(context.Background(), "tenant-a", "src-4")
	require.NoError(t, gerr)
	assert.Equal(t, model.KnowledgeStatusFailed, ks.Status)
	assert.Equal(t, "extract", ks.Metadata["failedStep"])
}

func TestDecodeEventRejectsMissingIDs(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"sourceId":"","tenantId":""}`))
	require.Error(t, err)

	ev, err := DecodeEvent([]byte(`{"sourceId":"s1","tenantId":"t1","type":"manual","content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "s1", ev.SourceID)
	assert.Equal(t, "t1", ev.TenantID)
}
