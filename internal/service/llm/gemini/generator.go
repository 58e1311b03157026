// Package gemini generates replies with Google Gemini.
package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"ai-doll-conversation-service/internal/service/capability"
	"ai-doll-conversation-service/internal/service/clients"
	"ai-doll-conversation-service/internal/service/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator implements llm.Generator.
type Generator struct {
	models contentGenerator
	opts   llm.Options
}

// New creates a Gemini generator from an existing client.
func New(client *genai.Client, opts llm.Options) *Generator {
	return &Generator{models: client.Models, opts: opts.WithDefaultModel(DefaultModel)}
}

// Generate sends prompt as a single user turn.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.opts.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.opts.Temperature)),
		MaxOutputTokens: int32(g.opts.MaxTokens),
		CandidateCount:  1,
	})
	if err != nil {
		return "", clients.GeminiError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", capability.ErrEmptyResponse
	}
	return text, nil
}
