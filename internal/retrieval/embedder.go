// Package retrieval implements the vector retriever: embedding, tenant-scoped
// vector storage, and cosine top-K search.
package retrieval

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Embedder converts text into embedding vectors for a fixed model and
// dimensionality.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client sdk.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder builds an embedder against apiKey/baseURL (baseURL empty
// uses the default OpenAI endpoint; set it to point at a self-hosted,
// OpenAI-compatible embeddings server).
func NewOpenAIEmbedder(apiKey, baseURL, model string, dim int) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{client: sdk.NewClient(opts...), model: model, dim: dim}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }
func (e *OpenAIEmbedder) Model() string  { return e.model }

// EmbedBatch calls the embeddings endpoint once per text to stay compatible
// with self-hosted servers that mis-handle batched embedding requests.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		resp, err := e.client.Embeddings.New(ctx, sdk.EmbeddingNewParams{
			Model: e.model,
			Input: sdk.EmbeddingNewParamsInputUnion{OfString: sdk.String(t)},
		})
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("embed: empty response for input")
		}
		vec := make([]float32, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			vec[i] = float32(v)
		}
		out = append(out, vec)
	}
	return out, nil
}
