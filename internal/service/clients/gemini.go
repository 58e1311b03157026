package clients

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"ai-doll-conversation-service/internal/service/capability"
)

// NewGemini creates a genai client. An API key selects the Gemini API backend;
// otherwise project and location select Vertex AI.
func NewGemini(ctx context.Context, apiKey, project, location string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}
	if apiKey != "" {
		cfg = &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.V("project", project))
	}
	return client, nil
}

// GeminiError classifies a genai error by its HTTP status.
func GeminiError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return capability.FromHTTPStatus(apiErr.Code, err)
	}
	return err
}
