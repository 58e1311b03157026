// Package mock provides a canned reply generator for local runs and tests.
package mock

import (
	"context"
	"sync"
)

// DefaultReplies are returned in order, cycling.
var DefaultReplies = []string{
	"سلام دوست من! من آبنک هستم، ربات آبی تو. امروز چی کار کردی؟",
	"چه جالب! بیشتر برام تعریف کن.",
	"آفرین! تو خیلی باهوشی.",
}

// Generator implements llm.Generator.
type Generator struct {
	mu      sync.Mutex
	replies []string
	next    int
	prompts []string
}

// New creates a mock generator. With no replies DefaultReplies is used.
func New(replies ...string) *Generator {
	if len(replies) == 0 {
		replies = DefaultReplies
	}
	return &Generator{replies: replies}
}

// Generate records prompt and returns the next reply.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	r := g.replies[g.next%len(g.replies)]
	g.next++
	return r, nil
}

// Prompts returns every prompt received so far.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
