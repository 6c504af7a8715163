package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/convoy/internal/convo"
	"github.com/nextlevelbuilder/convoy/internal/model"
	"github.com/nextlevelbuilder/convoy/internal/procedure"
	"github.com/nextlevelbuilder/convoy/internal/retrieval"
)

type fakeTenants struct{}

func (fakeTenants) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	return model.DefaultTenant(id), nil
}

type fakeConversations struct{}

func (fakeConversations) CreateConversation(ctx context.Context, c model.Conversation) error {
	return nil
}
func (fakeConversations) GetConversation(ctx context.Context, tenantID, id string) (model.Conversation, error) {
	return model.Conversation{}, errNotFound
}
func (fakeConversations) UpdateConversationStatus(ctx context.Context, tenantID, id string, status model.ConversationState) error {
	return nil
}
func (fakeConversations) AppendMessage(ctx context.Context, m model.Message) error { return nil }
func (fakeConversations) ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error) {
	return nil, nil
}

var errNotFound = errors.New("not found")

type fakePolicies struct{}

func (fakePolicies) ListPolicies(ctx context.Context, tenantID string, stage model.PolicyStage) ([]model.Policy, error) {
	return nil, nil
}

type fakeProcedures struct{}

func (fakeProcedures) ListProcedures(ctx context.Context, tenantID string) ([]model.Procedure, error) {
	return nil, nil
}

type fakeCache struct{}

func (fakeCache) Lookup(ctx context.Context, tenantID string, queryEmbedding []float32) (model.CacheEntry, bool, error) {
	return model.CacheEntry{}, false, nil
}
func (fakeCache) Put(ctx context.Context, entry model.CacheEntry, ttl time.Duration) error {
	return nil
}

type fakeRetriever struct{}

func (fakeRetriever) Search(ctx context.Context, tenantID, query string, k int) ([]retrieval.Scored, retrieval.Diagnostics, error) {
	return nil, retrieval.Diagnostics{}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func newTestOrchestrator() *convo.Orchestrator {
	return &convo.Orchestrator{
		Tenants:       fakeTenants{},
		Conversations: fakeConversations{},
		Policies:      fakePolicies{},
		Procedures:    fakeProcedures{},
		ProcedureExec: &procedure.Executor{},
		Cache:         fakeCache{},
		Retriever:     fakeRetriever{},
		Embedder:      fakeEmbedder{},
		DefaultTopK:   5,
	}
}

func TestHandleChatStreamEscalatesOnLowConfidence(t *testing.T) {
	srv := NewServer(newTestOrchestrator())

	body, err := json.Marshal(chatRequest{TenantID: "tenant-a", Message: "help me with my order"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "\"type\":\"escalated\"")
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))
}

func TestHandleChatStreamRejectsMissingFields(t *testing.T) {
	srv := NewServer(newTestOrchestrator())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(newTestOrchestrator())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHandleVersion(t *testing.T) {
	srv := NewServer(newTestOrchestrator())

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["version"])
}
