package generation

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"
)

// GoogleProvider streams chat completions via the Gemini API.
type GoogleProvider struct {
	client *genai.Client
	model  string
}

func NewGoogleProvider(ctx context.Context, apiKey, model string) (*GoogleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &GoogleProvider{client: client, model: model}, nil
}

func (p *GoogleProvider) ChatStream(ctx context.Context, msgs []Message, model string, h StreamHandler) (string, error) {
	if model == "" {
		model = p.model
	}
	contents := toContents(msgs)

	stream := p.client.Models.GenerateContentStream(ctx, model, contents, nil)
	var full string
	for resp, err := range stream {
		if err != nil {
			return full, fmt.Errorf("google stream: %w", err)
		}
		text := textFromResponse(resp)
		if text == "" {
			continue
		}
		full += text
		if h != nil {
			h.OnDelta(text)
		}
	}
	return full, nil
}

func toContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	var systemPrefix string
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if systemPrefix != "" {
				systemPrefix += "\n\n"
			}
			systemPrefix += m.Content
		case "assistant":
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{{Text: m.Content}}, genai.RoleModel))
		default:
			text := m.Content
			if systemPrefix != "" {
				text = systemPrefix + "\n\n" + text
				systemPrefix = ""
			}
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{{Text: text}}, genai.RoleUser))
		}
	}
	return contents
}

func textFromResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		out += part.Text
	}
	return out
}
