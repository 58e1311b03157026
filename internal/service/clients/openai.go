// Package clients constructs the vendor SDK clients shared by several
// capability backends and maps their errors onto the capability taxonomy.
package clients

import (
	"errors"

	"github.com/sashabaranov/go-openai"

	"ai-doll-conversation-service/internal/service/capability"
)

// NewOpenAI creates an OpenAI client. baseURL may point at any
// OpenAI-compatible endpoint; empty keeps the default.
func NewOpenAI(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAIError classifies an OpenAI SDK error by its HTTP status.
func OpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return capability.FromHTTPStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return capability.FromHTTPStatus(reqErr.HTTPStatusCode, err)
	}
	return err
}
