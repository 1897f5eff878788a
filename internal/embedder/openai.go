package embedder

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider resolves models through an OpenAI-compatible embeddings
// API. With a custom base URL this covers local inference servers hosting
// sentence-transformers models as well as the hosted API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider builds a provider for the given API key and base URL.
// An empty baseURL means the default OpenAI endpoint.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

// Construct verifies the model by encoding a probe text and records the
// dimension the server reports. A name the server rejects fails here, not
// at encode time.
func (p *OpenAIProvider) Construct(ctx context.Context, name string) (Model, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{"dimension probe"},
		Model: openai.EmbeddingModel(name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct model %q: %w", name, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("failed to construct model %q: empty probe response", name)
	}

	return &openaiModel{
		client:    p.client,
		name:      name,
		dimension: len(resp.Data[0].Embedding),
	}, nil
}

type openaiModel struct {
	client    *openai.Client
	name      string
	dimension int
}

func (m *openaiModel) Name() string   { return m.name }
func (m *openaiModel) Dimension() int { return m.dimension }

func (m *openaiModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(m.name),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// The API may return entries out of order; Index restores input order.
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	return embeddings, nil
}
