// Package openai generates replies with the OpenAI chat completions API.
package openai

import (
	"context"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"ai-doll-conversation-service/internal/service/capability"
	"ai-doll-conversation-service/internal/service/clients"
	"ai-doll-conversation-service/internal/service/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = goopenai.GPT4oMini

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Generator implements llm.Generator.
type Generator struct {
	client chatClient
	opts   llm.Options
}

// New creates an OpenAI generator.
func New(client *goopenai.Client, opts llm.Options) *Generator {
	return &Generator{client: client, opts: opts.WithDefaultModel(DefaultModel)}
}

// Generate sends prompt as a single user message.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.opts.MaxTokens,
		Temperature: float32(g.opts.Temperature),
	})
	if err != nil {
		return "", clients.OpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", capability.ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", capability.ErrEmptyResponse
	}
	return text, nil
}
