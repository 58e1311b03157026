// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"

	goopenai "github.com/sashabaranov/go-openai"

	"ai-doll-conversation-service/internal/service/capability"
	"ai-doll-conversation-service/internal/service/clients"
)

// DefaultModel produces 1536-dimensional vectors.
const DefaultModel = string(goopenai.SmallEmbedding3)

type embeddingsClient interface {
	CreateEmbeddings(ctx context.Context, conv goopenai.EmbeddingRequestConverter) (goopenai.EmbeddingResponse, error)
}

// Embedder implements embedding.Embedder.
type Embedder struct {
	client     embeddingsClient
	model      string
	dimensions int
}

// New creates an OpenAI embedder.
func New(client *goopenai.Client, model string, dimensions int) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{client: client, model: model, dimensions: dimensions}
}

// Embed generates a vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input:      []string{text},
		Model:      goopenai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, clients.OpenAIError(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, capability.ErrEmptyResponse
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the vector dimension.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
