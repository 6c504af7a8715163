// Package convo implements the orchestrator: the single entry point that
// drives an inbound message through policy gates, procedure matching,
// semantic cache lookup, vector retrieval, generation, and persistence.
package convo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/convoy/internal/generation"
	"github.com/nextlevelbuilder/convoy/internal/model"
	"github.com/nextlevelbuilder/convoy/internal/obs"
	"github.com/nextlevelbuilder/convoy/internal/policy"
	"github.com/nextlevelbuilder/convoy/internal/procedure"
	"github.com/nextlevelbuilder/convoy/internal/retrieval"
	"github.com/nextlevelbuilder/convoy/internal/util"
)

// Channel enumerates the inbound surfaces the orchestrator accepts.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelVoice    Channel = "voice"
)

// Options tunes a single Handle call.
type Options struct {
	DryRun bool
	// OnDelta, when set, receives each incremental generation chunk as it
	// streams from the provider (step 12 only — every other step produces
	// already-complete content). Used by HTTP handlers to forward deltas
	// onto an SSE connection while Handle is still running.
	OnDelta func(string)
}

// Result is the outcome of one Handle call.
type Result struct {
	Resolved      bool
	Content       string
	ConversationID string
	MessageID     string
	Confidence    float64
	Citations     []string
	BlockedReason string
	Escalated     bool
	Debug         map[string]any
}

// TenantLoader reads a tenant's pipeline configuration.
type TenantLoader interface {
	GetTenant(ctx context.Context, id string) (model.Tenant, error)
}

// ConversationStore is the subset of the persistence gateway the
// orchestrator needs for conversations and messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, c model.Conversation) error
	GetConversation(ctx context.Context, tenantID, id string) (model.Conversation, error)
	UpdateConversationStatus(ctx context.Context, tenantID, id string, status model.ConversationState) error
	AppendMessage(ctx context.Context, m model.Message) error
	ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error)
}

// PolicyLoader reads a tenant's enabled policies for a stage.
type PolicyLoader interface {
	ListPolicies(ctx context.Context, tenantID string, stage model.PolicyStage) ([]model.Policy, error)
}

// ProcedureLoader reads a tenant's enabled procedures.
type ProcedureLoader interface {
	ListProcedures(ctx context.Context, tenantID string) ([]model.Procedure, error)
}

// Cache is the semantic cache surface the orchestrator needs.
type Cache interface {
	Lookup(ctx context.Context, tenantID string, queryEmbedding []float32) (model.CacheEntry, bool, error)
	Put(ctx context.Context, entry model.CacheEntry, ttl time.Duration) error
}

// Retriever embeds a query and returns tenant-scoped top-K chunks.
type Retriever interface {
	Search(ctx context.Context, tenantID, query string, k int) ([]retrieval.Scored, retrieval.Diagnostics, error)
}

// Embedder produces the fingerprint embedding used for semantic cache keys.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Auditor records pipeline decisions. Failures are swallowed by the
// implementation; the orchestrator never blocks on it.
type Auditor interface {
	Record(ev model.AuditEvent)
}

// Orchestrator wires every pipeline stage together.
type Orchestrator struct {
	Tenants        TenantLoader
	Conversations  ConversationStore
	Policies       PolicyLoader
	Procedures     ProcedureLoader
	ProcedureExec  *procedure.Executor
	Cache          Cache
	Retriever      Retriever
	Embedder       Embedder
	Generation     generation.Provider
	Audit          Auditor
	DefaultTopK    int
	CacheSimilarity float64
}

func (o *Orchestrator) emit(ev model.AuditEvent) {
	if o.Audit != nil {
		ev.CreatedAt = time.Now()
		o.Audit.Record(ev)
	}
}

// Handle runs the full pipeline for one inbound message. conversationID may
// be empty, in which case a new conversation is created.
func (o *Orchestrator) Handle(ctx context.Context, tenantID, conversationID, userMessage string, channel Channel, userID string, opts Options) Result {
	log := obs.WithTrace(ctx)

	// 1. Load tenant config.
	tenant, err := o.Tenants.GetTenant(ctx, tenantID)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("tenant config load failed, using defaults")
		tenant = model.DefaultTenant(tenantID)
	}

	// 2. Load policies.
	prePolicies, err := o.Policies.ListPolicies(ctx, tenantID, model.PolicyStagePre)
	if err != nil {
		log.Warn().Err(err).Msg("pre-policy load failed, continuing with empty set")
		prePolicies = nil
	}

	// 3. Pre-policy gate.
	preOutcome := policy.Evaluate(userMessage, prePolicies, model.PolicyStagePre)
	conv, convErr := o.ensureConversation(ctx, tenantID, conversationID, channel, userID)
	if convErr != nil {
		log.Error().Err(convErr).Msg("ensure conversation failed")
	}
	o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "message.received"})

	if !preOutcome.Passed {
		o.persistUserMessage(ctx, tenant, conv.ID, userMessage, opts.DryRun)
		o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "policy.violated", Detail: map[string]any{"phase": "pre", "violations": preOutcome.Violations}})
		return Result{
			Resolved:       false,
			Content:        PolicyBlockedMessage,
			ConversationID: conv.ID,
			BlockedReason:  strings.Join(preOutcome.Violations, "; "),
			Escalated:      false,
		}
	}

	// 4. PII redaction.
	cleanedMessage := policy.RedactPII(userMessage, prePolicies, model.PolicyStagePre)

	// 6. Persist user message (skipped if dryRun).
	userMsgID := o.persistUserMessage(ctx, tenant, conv.ID, userMessage, opts.DryRun)

	// 7. Procedure match.
	procedures, err := o.Procedures.ListProcedures(ctx, tenantID)
	if err != nil {
		log.Warn().Err(err).Msg("procedure load failed, continuing with empty set")
		procedures = nil
	}
	if proc, ok := procedure.FindMatching(procedures, cleanedMessage); ok {
		o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "procedure.triggered", Detail: map[string]any{"procedure": proc.ID}})
		execResult := o.ProcedureExec.Execute(ctx, proc, procedure.Context{
			TenantID:       tenantID,
			ConversationID: conv.ID,
			UserID:         userID,
			Variables:      map[string]any{"message": cleanedMessage},
			DryRun:         opts.DryRun,
		})
		if execResult.Success && strings.TrimSpace(execResult.FinalMessage) != "" {
			confidence := 1.0
			msgID := o.persistAssistantMessage(ctx, tenantID, conv.ID, execResult.FinalMessage, &confidence, nil, opts.DryRun)
			o.setStatus(ctx, tenantID, conv.ID, model.ConversationResolved)
			return Result{
				Resolved:       true,
				Content:        execResult.FinalMessage,
				ConversationID: conv.ID,
				MessageID:      msgID,
				Confidence:     confidence,
				Debug:          map[string]any{"procedure": proc.ID, "userMessageId": userMsgID},
			}
		}
		// Procedure failure (or no final message) falls through to cache/retrieval.
	}

	// Embed the cleaned message once; reused for cache lookup and retrieval.
	embeddings, err := o.Embedder.EmbedBatch(ctx, []string{cleanedMessage})
	var queryEmbedding []float32
	if err == nil && len(embeddings) == 1 {
		queryEmbedding = embeddings[0]
	} else if err != nil {
		log.Warn().Err(err).Msg("query embedding failed")
	}

	// 8. Semantic cache lookup.
	if queryEmbedding != nil {
		if entry, hit, cacheErr := o.cacheLookup(ctx, tenantID, queryEmbedding); cacheErr == nil && hit {
			o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "cache.hit"})
			resolved := entry.Confidence >= tenant.ConfidenceThreshold
			confidence := entry.Confidence
			msgID := o.persistAssistantMessage(ctx, tenantID, conv.ID, entry.Content, &confidence, entry.Citations, opts.DryRun)
			if resolved {
				o.setStatus(ctx, tenantID, conv.ID, model.ConversationResolved)
			}
			return Result{
				Resolved:       resolved,
				Content:        entry.Content,
				ConversationID: conv.ID,
				MessageID:      msgID,
				Confidence:     confidence,
				Citations:      entry.Citations,
			}
		}
		o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "cache.miss"})
	}

	// 9. Vector retrieval.
	topK := o.DefaultTopK
	if topK <= 0 {
		topK = 5
	}
	results, _, retrErr := o.Retriever.Search(ctx, tenantID, cleanedMessage, topK)
	if retrErr != nil {
		log.Warn().Err(retrErr).Msg("retrieval failed, degrading to zero results")
		results = nil
	}
	confidence := meanScore(results)

	// 10. Confidence gate.
	if len(results) == 0 || confidence < tenant.ConfidenceThreshold {
		msgID := o.persistAssistantMessage(ctx, tenantID, conv.ID, LowConfidenceMessage, &confidence, nil, opts.DryRun)
		o.setStatus(ctx, tenantID, conv.ID, model.ConversationEscalated)
		o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "conversation.escalated", Detail: map[string]any{"reason": "low_confidence"}})
		return Result{
			Resolved:       false,
			Content:        LowConfidenceMessage,
			ConversationID: conv.ID,
			MessageID:      msgID,
			Confidence:     confidence,
			Escalated:      true,
		}
	}

	citations := citationsFromResults(results)

	// 11. Build LLM context.
	history, histErr := o.Conversations.ListMessages(ctx, tenantID, conv.ID, tenant.MaxHistoryMessages+1)
	if histErr != nil {
		log.Warn().Err(histErr).Msg("history load failed, continuing without it")
	}
	messages := buildLLMMessages(tenant, results, history, userMsgID, cleanedMessage)

	// 12. LLM generation.
	genModel := tenant.LLMModel
	var replyBuilder strings.Builder
	reply, genErr := o.Generation.ChatStream(ctx, messages, genModel, generation.FuncHandler(func(delta string) {
		replyBuilder.WriteString(delta)
		if opts.OnDelta != nil {
			opts.OnDelta(delta)
		}
	}))
	if genErr != nil {
		log.Error().Err(genErr).Msg("llm generation failed")
		msgID := o.persistAssistantMessage(ctx, tenantID, conv.ID, GenerationFailMessage, nil, nil, opts.DryRun)
		return Result{
			Resolved:       false,
			Content:        GenerationFailMessage,
			ConversationID: conv.ID,
			MessageID:      msgID,
			Escalated:      false,
		}
	}
	if reply == "" {
		reply = replyBuilder.String()
	}

	// 13. Post-policy gate.
	postPolicies, err := o.Policies.ListPolicies(ctx, tenantID, model.PolicyStagePost)
	if err != nil {
		log.Warn().Err(err).Msg("post-policy load failed, continuing with empty set")
		postPolicies = nil
	}
	postOutcome := policy.Evaluate(reply, postPolicies, model.PolicyStagePost)
	if !postOutcome.Passed {
		msgID := o.persistAssistantMessage(ctx, tenantID, conv.ID, PostPolicyFallback, nil, nil, opts.DryRun)
		o.setStatus(ctx, tenantID, conv.ID, model.ConversationEscalated)
		o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "policy.violated", Detail: map[string]any{"phase": "post", "violations": postOutcome.Violations}})
		o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "conversation.escalated", Detail: map[string]any{"reason": "post_policy"}})
		return Result{
			Resolved:       false,
			Content:        PostPolicyFallback,
			ConversationID: conv.ID,
			MessageID:      msgID,
			BlockedReason:  strings.Join(postOutcome.Violations, "; "),
			Escalated:      true,
		}
	}

	// 14. Persist assistant message.
	resolved := confidence >= tenant.ConfidenceThreshold
	msgID := o.persistAssistantMessage(ctx, tenantID, conv.ID, reply, &confidence, citations, opts.DryRun)
	o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "message.sent"})
	if resolved {
		o.setStatus(ctx, tenantID, conv.ID, model.ConversationResolved)
		o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: conv.ID, Kind: "conversation.resolved"})
	}

	// 15. Populate cache (best-effort, non-fatal).
	if queryEmbedding != nil {
		ttl := time.Duration(tenant.CacheTTLSeconds) * time.Second
		entry := model.CacheEntry{
			TenantID:   tenantID,
			Fingerprint: fingerprint(queryEmbedding),
			Embedding:  queryEmbedding,
			Content:    reply,
			Confidence: confidence,
			Citations:  citations,
		}
		if err := o.Cache.Put(ctx, entry, ttl); err != nil {
			log.Warn().Err(err).Msg("cache populate failed")
		}
	}

	return Result{
		Resolved:       resolved,
		Content:        reply,
		ConversationID: conv.ID,
		MessageID:      msgID,
		Confidence:     confidence,
		Citations:      citations,
	}
}

func (o *Orchestrator) ensureConversation(ctx context.Context, tenantID, conversationID string, channel Channel, userID string) (model.Conversation, error) {
	if conversationID != "" {
		if c, err := o.Conversations.GetConversation(ctx, tenantID, conversationID); err == nil {
			return c, nil
		}
	}
	now := time.Now()
	c := model.Conversation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Channel:   string(channel),
		Status:    model.ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.Conversations.CreateConversation(ctx, c); err != nil {
		return c, fmt.Errorf("create conversation: %w", err)
	}
	o.emit(model.AuditEvent{TenantID: tenantID, ConversationID: c.ID, Kind: "conversation.created"})
	return c, nil
}

func (o *Orchestrator) persistUserMessage(ctx context.Context, tenant model.Tenant, conversationID, content string, dryRun bool) string {
	id := uuid.NewString()
	if dryRun {
		return id
	}
	m := model.Message{
		ID:             id,
		TenantID:       tenant.ID,
		ConversationID: conversationID,
		Role:           model.MessageRoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := o.Conversations.AppendMessage(ctx, m); err != nil {
		obs.WithTrace(ctx).Warn().Err(err).Msg("persist user message failed")
	}
	return id
}

func (o *Orchestrator) persistAssistantMessage(ctx context.Context, tenantID, conversationID, content string, confidence *float64, citations []string, dryRun bool) string {
	id := uuid.NewString()
	if dryRun {
		return id
	}
	m := model.Message{
		ID:             id,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Role:           model.MessageRoleAssistant,
		Content:        content,
		Confidence:     confidence,
		Citations:      citations,
		CreatedAt:      time.Now(),
	}
	if err := o.Conversations.AppendMessage(ctx, m); err != nil {
		obs.WithTrace(ctx).Warn().Err(err).Msg("persist assistant message failed")
	}
	return id
}

func (o *Orchestrator) setStatus(ctx context.Context, tenantID, conversationID string, status model.ConversationState) {
	if err := o.Conversations.UpdateConversationStatus(ctx, tenantID, conversationID, status); err != nil {
		obs.WithTrace(ctx).Warn().Err(err).Msg("update conversation status failed")
	}
}

func (o *Orchestrator) cacheLookup(ctx context.Context, tenantID string, queryEmbedding []float32) (model.CacheEntry, bool, error) {
	entry, hit, err := o.Cache.Lookup(ctx, tenantID, queryEmbedding)
	if err != nil {
		obs.WithTrace(ctx).Warn().Err(err).Msg("cache lookup failed, treating as miss")
		return model.CacheEntry{}, false, nil
	}
	return entry, hit, nil
}

func meanScore(results []retrieval.Scored) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += float64(r.Score)
	}
	return sum / float64(len(results))
}

func citationsFromResults(results []retrieval.Scored) []string {
	seen := make(map[string]bool, len(results))
	var out []string
	for _, r := range results {
		if seen[r.Chunk.SourceID] {
			continue
		}
		seen[r.Chunk.SourceID] = true
		out = append(out, r.Chunk.SourceID)
	}
	return out
}

// defaultMaxContextTokens bounds the prompt when a tenant has not set its
// own budget.
const defaultMaxContextTokens = 6000

// contextTokenShare is the fraction of the token budget reserved for
// retrieved chunks; the remainder goes to conversation history.
const contextTokenShare = 0.6

func buildLLMMessages(tenant model.Tenant, results []retrieval.Scored, history []model.Message, justPersistedUserMsgID, userQuery string) []generation.Message {
	system := "You are a helpful customer support assistant. Answer using only the retrieved context below; if it does not cover the question, say so plainly."
	if tenant.SystemPromptPrefix != "" {
		system = tenant.SystemPromptPrefix + "\n\n" + system
	}

	budget := tenant.MaxContextTokens
	if budget <= 0 {
		budget = defaultMaxContextTokens
	}
	contextBudget := int(float64(budget) * contextTokenShare)

	var context strings.Builder
	context.WriteString("Retrieved Context:\n")
	contextTokens := 0
	for i, r := range results {
		chunk := fmt.Sprintf("[%d] (%.0f%% relevant) %s\n", i+1, r.Score*100, r.Chunk.Text)
		if n := util.CountTokens(chunk); contextTokens+n > contextBudget && contextTokens > 0 {
			break
		} else {
			contextTokens += n
		}
		context.WriteString(chunk)
	}

	msgs := []generation.Message{{Role: "system", Content: system + "\n\n" + context.String()}}

	historyBudget := budget - contextBudget
	msgs = append(msgs, trimHistoryToBudget(history, justPersistedUserMsgID, historyBudget)...)
	msgs = append(msgs, generation.Message{Role: "user", Content: userQuery})
	return msgs
}

// trimHistoryToBudget keeps as much of the most recent conversation history
// as fits within tokenBudget, dropping the oldest turns first, and returns
// the kept turns back in chronological order.
func trimHistoryToBudget(history []model.Message, justPersistedUserMsgID string, tokenBudget int) []generation.Message {
	var kept []generation.Message
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.ID == justPersistedUserMsgID {
			continue
		}
		n := util.CountTokens(h.Content)
		if used+n > tokenBudget && len(kept) > 0 {
			break
		}
		used += n
		role := "user"
		if h.Role == model.MessageRoleAssistant {
			role = "assistant"
		}
		kept = append(kept, generation.Message{Role: role, Content: h.Content})
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func fingerprint(embedding []float32) string {
	// The fingerprint is the embedding itself (per the cache's key model);
	// a stable string form only matters for logging, so a short digest of
	// the vector's rounded components is sufficient here.
	var b strings.Builder
	for i, v := range embedding {
		if i > 8 {
			break
		}
		fmt.Fprintf(&b, "%.4f:", v)
	}
	return b.String()
}
