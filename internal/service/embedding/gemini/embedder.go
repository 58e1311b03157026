// Package gemini embeds text with the Gemini embeddings API.
package gemini

import (
	"context"

	"google.golang.org/genai"

	"ai-doll-conversation-service/internal/service/capability"
	"ai-doll-conversation-service/internal/service/clients"
)

// DefaultModel supports a configurable output dimensionality.
const DefaultModel = "gemini-embedding-001"

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder implements embedding.Embedder.
type Embedder struct {
	models     contentEmbedder
	model      string
	dimensions int
}

// New creates a Gemini embedder from an existing client.
func New(client *genai.Client, model string, dimensions int) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{models: client.Models, model: model, dimensions: dimensions}
}

// Embed generates a vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: genai.Ptr(int32(e.dimensions)),
	})
	if err != nil {
		return nil, clients.GeminiError(err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, capability.ErrEmptyResponse
	}
	return resp.Embeddings[0].Values, nil
}

// Dimensions returns the vector dimension.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
