package pg_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nextlevelbuilder/convoy/internal/gateway/pg"
	"github.com/nextlevelbuilder/convoy/internal/model"
)

func newTestStore(t *testing.T) *pg.Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("convoy"),
		postgres.WithUsername("convoy"),
		postgres.WithPassword("convoy"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pg.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := pg.NewStore(pool)
	require.NoError(t, store.Init(ctx))
	// Tenant-owned tables reference tenants(id); seed the tenants the tests use.
	for _, id := range []string{"tenant-a", "tenant-b"} {
		tenant := model.DefaultTenant(id)
		tenant.CreatedAt = time.Now().UTC()
		require.NoError(t, store.UpsertTenant(ctx, tenant))
	}
	return store
}

func TestTenantRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tenant := model.Tenant{
		ID:                  "tenant-a",
		Name:                "Acme",
		ConfidenceThreshold: 0.8,
		MaxHistoryMessages:  20,
		CacheTTLSeconds:     1800,
		CreatedAt:           time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.UpsertTenant(ctx, tenant))

	got, err := store.GetTenant(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, tenant.Name, got.Name)
	assert.Equal(t, tenant.ConfidenceThreshold, got.ConfidenceThreshold)
}

func TestConversationAndMessageLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := model.Conversation{
		ID:        "conv-1",
		TenantID:  "tenant-a",
		UserID:    "user-1",
		Channel:   "web",
		Status:    model.ConversationActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateConversation(ctx, conv))

	got, err := store.GetConversation(ctx, "tenant-a", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, model.ConversationActive, got.Status)

	require.NoError(t, store.UpdateConversationStatus(ctx, "tenant-a", "conv-1", model.ConversationResolved))
	got, err = store.GetConversation(ctx, "tenant-a", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, model.ConversationResolved, got.Status)

	msg := model.Message{
		ID:             "msg-1",
		TenantID:       "tenant-a",
		ConversationID: "conv-1",
		Role:           model.MessageRoleUser,
		Content:        "hello",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.AppendMessage(ctx, msg))

	msgs, err := store.ListMessages(ctx, "tenant-a", "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)

	// A second tenant must never see the first tenant's conversation.
	_, err = store.GetConversation(ctx, "tenant-b", "conv-1")
	assert.Error(t, err)
}

func TestPolicyListingIsScopedAndOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low := model.Policy{ID: "p-low", TenantID: "tenant-a", Stage: model.PolicyStagePre, Priority: 1, Enabled: true,
		Rules: []model.PolicyRule{{Kind: model.PolicyRuleKindTopic, Params: map[string]any{"blockedTopics": []string{"low"}}}}}
	high := model.Policy{ID: "p-high", TenantID: "tenant-a", Stage: model.PolicyStagePre, Priority: 10, Enabled: true,
		Rules: []model.PolicyRule{{Kind: model.PolicyRuleKindTopic, Params: map[string]any{"blockedTopics": []string{"high"}}}}}
	other := model.Policy{ID: "p-other", TenantID: "tenant-b", Stage: model.PolicyStagePre, Priority: 5, Enabled: true}

	require.NoError(t, store.UpsertPolicy(ctx, low))
	require.NoError(t, store.UpsertPolicy(ctx, high))
	require.NoError(t, store.UpsertPolicy(ctx, other))

	got, err := store.ListPolicies(ctx, "tenant-a", model.PolicyStagePre)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p-low", got[0].ID, "lower priority value sorts first")
	assert.Equal(t, "p-high", got[1].ID)
}

func TestKnowledgeSourceStatusLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ks := model.KnowledgeSource{
		ID:        "src-1",
		TenantID:  "tenant-a",
		Kind:      model.KnowledgeKindManual,
		Text:      "refund policy",
		Status:    model.KnowledgeStatusProcessing,
		Version:   1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertKnowledgeSource(ctx, ks))

	got, err := store.GetKnowledgeSource(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Equal(t, model.KnowledgeStatusProcessing, got.Status)

	require.NoError(t, store.UpdateKnowledgeStatus(ctx, "tenant-a", "src-1", model.KnowledgeStatusReady, 1, map[string]string{"chunksCount": "3"}))
	got, err = store.GetKnowledgeSource(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Equal(t, model.KnowledgeStatusReady, got.Status)
	assert.Equal(t, "3", got.Metadata["chunksCount"])

	require.NoError(t, store.DeleteKnowledgeSource(ctx, "tenant-a", "src-1"))
	_, err = store.GetKnowledgeSource(ctx, "tenant-a", "src-1")
	assert.Error(t, err)
}

func TestProcedureAndConnectorAreTenantScoped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conn := model.DataConnector{ID: "conn-1", TenantID: "tenant-a", Name: "orders-api", Provider: model.ConnectorProviderHTTP, BaseURL: "https://orders.internal", AuthMode: model.ConnectorAuthAPIKey, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.UpsertConnector(ctx, conn))

	got, err := store.GetConnector(ctx, "tenant-a", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "orders-api", got.Name)

	_, err = store.GetConnector(ctx, "tenant-b", "conn-1")
	assert.Error(t, err, "connectors must not be readable across tenants")

	proc := model.Procedure{ID: "proc-1", TenantID: "tenant-a", Name: "refund-flow", Enabled: true, Version: 1, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.UpsertProcedure(ctx, proc))

	procs, err := store.ListProcedures(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, "refund-flow", procs[0].Name)

	procs, err = store.ListProcedures(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Empty(t, procs)
}
