// Package model defines the tenant-scoped data types shared across the
// orchestration pipeline, retrieval, caching, policy, procedure, and
// ingestion packages.
package model

import "time"

// Tenant is the top-level isolation boundary. Every other record in the
// system carries a TenantID that must match the caller's tenant scope.
type Tenant struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	ConfidenceThreshold float64   `json:"confidenceThreshold"`
	MaxHistoryMessages  int       `json:"maxHistoryMessages"`
	MaxContextTokens    int       `json:"maxContextTokens,omitempty"`
	CacheTTLSeconds     int       `json:"cacheTtlSeconds"`
	LLMModel            string    `json:"llmModel,omitempty"`
	SystemPromptPrefix  string    `json:"systemPromptPrefix,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
}

// DefaultTenant fills in the documented defaults for a Tenant whose config
// could not be loaded (see the orchestrator's tenant-load fallback).
func DefaultTenant(id string) Tenant {
	return Tenant{
		ID:                  id,
		ConfidenceThreshold: 0.7,
		MaxHistoryMessages:  10,
		MaxContextTokens:    6000,
		CacheTTLSeconds:     3600,
	}
}

// KnowledgeSource describes an ingestible document: a URL, an uploaded file,
// or manually supplied text.
type KnowledgeSource struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Kind      KnowledgeKind     `json:"kind"`
	URI       string            `json:"uri,omitempty"`
	Text      string            `json:"text,omitempty"`
	Status    KnowledgeStatus   `json:"status"`
	Version   int               `json:"version"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// KnowledgeKind enumerates how a KnowledgeSource's content is obtained.
type KnowledgeKind string

const (
	KnowledgeKindURL    KnowledgeKind = "url"
	KnowledgeKindFile   KnowledgeKind = "file"
	KnowledgeKindManual KnowledgeKind = "manual"
)

// KnowledgeStatus tracks a KnowledgeSource's progress through ingestion.
type KnowledgeStatus string

const (
	KnowledgeStatusProcessing KnowledgeStatus = "processing"
	KnowledgeStatusReady      KnowledgeStatus = "ready"
	KnowledgeStatusFailed     KnowledgeStatus = "failed"
)

// ChunkVector is one embedded chunk of a KnowledgeSource.
//
// ID follows the deterministic form "{sourceId}#v{version}#chunk-{index}",
// with the source id truncated to fit storage constraints (see
// retrieval.ChunkID).
type ChunkVector struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	SourceID  string            `json:"sourceId"`
	Version   int               `json:"version"`
	Index     int               `json:"index"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Conversation is a single customer-support session.
type Conversation struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	UserID    string            `json:"userId"`
	Channel   string            `json:"channel"`
	Status    ConversationState `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ConversationState tracks the lifecycle of a Conversation.
type ConversationState string

const (
	ConversationActive    ConversationState = "active"
	ConversationEscalated ConversationState = "escalated"
	ConversationResolved  ConversationState = "resolved"
)

// Message is one turn within a Conversation.
type Message struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenantId"`
	ConversationID string      `json:"conversationId"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	Confidence     *float64    `json:"confidence,omitempty"`
	Citations      []string    `json:"citations,omitempty"`
	CacheHit       bool        `json:"cacheHit,omitempty"`
	Blocked        bool        `json:"blocked,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// MessageRole distinguishes the speaker of a Message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// Policy is a tenant-configured content gate, evaluated pre- or
// post-generation depending on Stage.
type Policy struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenantId"`
	Name      string       `json:"name"`
	Stage     PolicyStage  `json:"stage"`
	Priority  int          `json:"priority"`
	Rules     []PolicyRule `json:"rules"`
	Enabled   bool         `json:"enabled"`
	CreatedAt time.Time    `json:"createdAt"`
}

// PolicyStage selects whether a Policy runs before or after generation.
type PolicyStage string

const (
	PolicyStagePre  PolicyStage = "pre"
	PolicyStagePost PolicyStage = "post"
)

// PolicyRule is one check within a Policy: PII redaction, topic denial,
// tone enforcement, or length capping.
type PolicyRule struct {
	Kind      PolicyRuleKind `json:"kind"`
	Action    PolicyAction   `json:"action"`
	Pattern   string         `json:"pattern,omitempty"`
	MaxLength int            `json:"maxLength,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// PolicyRuleKind enumerates the built-in rule evaluators.
type PolicyRuleKind string

const (
	PolicyRuleKindPII      PolicyRuleKind = "pii"
	PolicyRuleKindTopic    PolicyRuleKind = "topic"
	PolicyRuleKindTone     PolicyRuleKind = "tone"
	PolicyRuleKindLength   PolicyRuleKind = "length"
)

// PolicyAction is the effect a triggered PolicyRule has on the pipeline.
type PolicyAction string

const (
	PolicyActionRedact    PolicyAction = "redact"
	PolicyActionBlock     PolicyAction = "block"
	PolicyActionEscalate  PolicyAction = "escalate"
	PolicyActionTruncate  PolicyAction = "truncate"
)

// Procedure is a tenant-defined multi-step workflow triggered by an intent
// match, executed by the Procedure Executor.
type Procedure struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	Name      string          `json:"name"`
	Trigger   Trigger         `json:"trigger"`
	Steps     []ProcedureStep `json:"steps"`
	Enabled   bool            `json:"enabled"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Trigger selects when a Procedure auto-matches an inbound message.
type Trigger struct {
	Type      TriggerType `json:"type"`
	Condition string      `json:"condition"`
}

// TriggerType enumerates how a Trigger's Condition is interpreted.
type TriggerType string

const (
	TriggerKeyword TriggerType = "keyword"
	TriggerIntent  TriggerType = "intent"
	TriggerManual  TriggerType = "manual"
)

// ProcedureStep is one unit of execution within a Procedure.
type ProcedureStep struct {
	ID         string         `json:"id"`
	Kind       StepKind       `json:"kind"`
	ConnectorID string        `json:"connectorId,omitempty"`
	Operation  string         `json:"operation,omitempty"`
	Condition  string         `json:"condition,omitempty"`
	Template   string         `json:"template,omitempty"`
	OnSuccess  string         `json:"onSuccess,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// StepKind enumerates the kinds of ProcedureStep.
type StepKind string

const (
	StepKindAPICall     StepKind = "api_call"
	StepKindDataLookup  StepKind = "data_lookup"
	StepKindApproval    StepKind = "approval"
	StepKindMessage     StepKind = "message"
	StepKindConditional StepKind = "conditional"
)

// DataConnector is a tenant-configured integration target a ProcedureStep
// can call.
type DataConnector struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenantId"`
	Name            string            `json:"name"`
	Provider        ConnectorProvider `json:"provider"`
	BaseURL         string            `json:"baseUrl,omitempty"`
	AuthMode        ConnectorAuthMode `json:"authMode"`
	AuthParams      map[string]string `json:"authParams,omitempty"`
	ResponseMapping map[string]string `json:"responseMapping,omitempty"`
	MCPToolName     string            `json:"mcpToolName,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// ConnectorProvider selects the transport a DataConnector uses.
type ConnectorProvider string

const (
	ConnectorProviderHTTP ConnectorProvider = "http"
	ConnectorProviderMCP  ConnectorProvider = "mcp"
)

// ConnectorAuthMode enumerates the supported DataConnector auth schemes.
type ConnectorAuthMode string

const (
	ConnectorAuthAPIKey ConnectorAuthMode = "api_key"
	ConnectorAuthBasic  ConnectorAuthMode = "basic"
	ConnectorAuthOAuth  ConnectorAuthMode = "oauth"
)

// CacheEntry is one semantic-cache record: a previously generated response
// keyed by a tenant and an embedding fingerprint.
type CacheEntry struct {
	TenantID    string    `json:"tenantId"`
	Fingerprint string    `json:"fingerprint"`
	Embedding   []float32 `json:"embedding"`
	Content     string    `json:"content"`
	Confidence  float64   `json:"confidence"`
	Citations   []string  `json:"citations,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AuditEvent is an append-only record of a pipeline decision, written
// asynchronously and best-effort.
type AuditEvent struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenantId"`
	ConversationID string         `json:"conversationId,omitempty"`
	Kind           string         `json:"kind"`
	Detail         map[string]any `json:"detail,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}
