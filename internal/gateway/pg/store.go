package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// ErrNotFound is returned when a tenant-scoped lookup finds no row.
var ErrNotFound = errors.New("pg: not found")

// Store is the tenant-scoped Postgres persistence gateway: conversations,
// messages, policies, procedures, and data connectors. Every method takes
// a tenantId and every query is scoped by it; there is no cross-tenant
// read path.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool. Use NewPool to build one.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init creates all tables used by the gateway if they do not already exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    confidence_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.7,
    max_history_messages INTEGER NOT NULL DEFAULT 10,
    cache_ttl_seconds INTEGER NOT NULL DEFAULT 3600,
    llm_model TEXT NOT NULL DEFAULT '',
    system_prompt_prefix TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL REFERENCES tenants(id),
    user_id TEXT NOT NULL DEFAULT '',
    channel TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS conversations_tenant_updated_idx ON conversations(tenant_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    confidence DOUBLE PRECISION,
    citations JSONB NOT NULL DEFAULT '[]',
    cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
    blocked BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS messages_tenant_conv_created_idx ON messages(tenant_id, conversation_id, created_at);

CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL REFERENCES tenants(id),
    name TEXT NOT NULL,
    stage TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    rules JSONB NOT NULL DEFAULT '[]',
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS policies_tenant_stage_idx ON policies(tenant_id, stage, priority);

CREATE TABLE IF NOT EXISTS procedures (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL REFERENCES tenants(id),
    name TEXT NOT NULL,
    trigger_type TEXT NOT NULL DEFAULT 'manual',
    trigger_condition TEXT NOT NULL DEFAULT '',
    steps JSONB NOT NULL DEFAULT '[]',
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS procedures_tenant_idx ON procedures(tenant_id);

CREATE TABLE IF NOT EXISTS data_connectors (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL REFERENCES tenants(id),
    name TEXT NOT NULL,
    provider TEXT NOT NULL,
    base_url TEXT NOT NULL DEFAULT '',
    auth_mode TEXT NOT NULL,
    auth_params JSONB NOT NULL DEFAULT '{}',
    response_mapping JSONB NOT NULL DEFAULT '{}',
    mcp_tool_name TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS data_connectors_tenant_idx ON data_connectors(tenant_id);

CREATE TABLE IF NOT EXISTS knowledge_sources (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL REFERENCES tenants(id),
    kind TEXT NOT NULL,
    uri TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'processing',
    version INTEGER NOT NULL DEFAULT 1,
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS knowledge_sources_tenant_idx ON knowledge_sources(tenant_id);
`)
	return err
}

// GetTenant fetches a Tenant's config by id, returning ErrNotFound when
// absent. Callers should fall back to model.DefaultTenant on error per the
// orchestrator's tenant-load step.
func (s *Store) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, name, confidence_threshold, max_history_messages, cache_ttl_seconds, llm_model, system_prompt_prefix, created_at
FROM tenants WHERE id = $1`, id)
	var t model.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.ConfidenceThreshold, &t.MaxHistoryMessages, &t.CacheTTLSeconds, &t.LLMModel, &t.SystemPromptPrefix, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Tenant{}, ErrNotFound
		}
		return model.Tenant{}, err
	}
	return t, nil
}

// UpsertTenant inserts or updates a Tenant's config.
func (s *Store) UpsertTenant(ctx context.Context, t model.Tenant) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO tenants (id, name, confidence_threshold, max_history_messages, cache_ttl_seconds, llm_model, system_prompt_prefix, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    confidence_threshold = EXCLUDED.confidence_threshold,
    max_history_messages = EXCLUDED.max_history_messages,
    cache_ttl_seconds = EXCLUDED.cache_ttl_seconds,
    llm_model = EXCLUDED.llm_model,
    system_prompt_prefix = EXCLUDED.system_prompt_prefix`,
		t.ID, t.Name, t.ConfidenceThreshold, t.MaxHistoryMessages, t.CacheTTLSeconds, t.LLMModel, t.SystemPromptPrefix, t.CreatedAt)
	return err
}

// CreateConversation inserts a new Conversation row.
func (s *Store) CreateConversation(ctx context.Context, c model.Conversation) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO conversations (id, tenant_id, user_id, channel, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.TenantID, c.UserID, c.Channel, c.Status, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetConversation fetches a Conversation scoped to tenantID; returns
// ErrNotFound if it does not exist or belongs to a different tenant.
func (s *Store) GetConversation(ctx context.Context, tenantID, id string) (model.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, tenant_id, user_id, channel, status, created_at, updated_at
FROM conversations WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	var c model.Conversation
	if err := row.Scan(&c.ID, &c.TenantID, &c.UserID, &c.Channel, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Conversation{}, ErrNotFound
		}
		return model.Conversation{}, err
	}
	return c, nil
}

// UpdateConversationStatus sets status and bumps updated_at, scoped to tenantID.
func (s *Store) UpdateConversationStatus(ctx context.Context, tenantID, id string, status model.ConversationState) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE conversations SET status = $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3`,
		status, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage inserts one Message row.
func (s *Store) AppendMessage(ctx context.Context, m model.Message) error {
	citations, err := json.Marshal(m.Citations)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO messages (id, tenant_id, conversation_id, role, content, confidence, citations, cache_hit, blocked, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.TenantID, m.ConversationID, m.Role, m.Content, m.Confidence, citations, m.CacheHit, m.Blocked, m.CreatedAt)
	return err
}

// ListMessages returns the last limit messages of a conversation in
// chronological order, scoped to tenantID.
func (s *Store) ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, tenant_id, conversation_id, role, content, confidence, citations, cache_hit, blocked, created_at
FROM messages WHERE tenant_id = $1 AND conversation_id = $2
ORDER BY created_at DESC LIMIT $3`, tenantID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var citations []byte
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ConversationID, &m.Role, &m.Content, &m.Confidence, &citations, &m.CacheHit, &m.Blocked, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(citations) > 0 {
			_ = json.Unmarshal(citations, &m.Citations)
		}
		out = append(out, m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}
