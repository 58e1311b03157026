// Package llm defines the interface for generative text backends.
package llm

import "context"

// Generator turns one prompt into one reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options are the sampling settings shared by every backend.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// WithDefaultModel returns o with Model set to model when empty.
func (o Options) WithDefaultModel(model string) Options {
	if o.Model == "" {
		o.Model = model
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	return o
}
