// Package anthropic generates replies with Claude.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ai-doll-conversation-service/internal/service/capability"
	"ai-doll-conversation-service/internal/service/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-5-haiku-latest"

type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Generator implements llm.Generator.
type Generator struct {
	messages messageCreator
	opts     llm.Options
}

// New creates a Claude generator.
func New(apiKey string, opts llm.Options) *Generator {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Generator{messages: &client.Messages, opts: opts.WithDefaultModel(DefaultModel)}
}

// Generate sends prompt as a single user message and concatenates the text blocks.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.opts.Model),
		MaxTokens:   int64(g.opts.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(g.opts.Temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", capability.FromHTTPStatus(apiErr.StatusCode, err)
		}
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", capability.ErrEmptyResponse
	}
	return text, nil
}
