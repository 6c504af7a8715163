// Package generation adapts the three chat-completion providers wired
// into the orchestration engine behind a single streaming interface.
package generation

import "context"

// Message is one turn of conversation passed to a provider.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// StreamHandler receives incremental generation output.
type StreamHandler interface {
	OnDelta(content string)
}

// Provider generates a reply from a message history, optionally streaming
// incremental deltas to h.
type Provider interface {
	ChatStream(ctx context.Context, msgs []Message, model string, h StreamHandler) (string, error)
}

// FuncHandler adapts a plain func into a StreamHandler.
type FuncHandler func(delta string)

func (f FuncHandler) OnDelta(delta string) { f(delta) }
