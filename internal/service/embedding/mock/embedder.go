// Package mock provides a deterministic embedder for tests and local runs.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
)

// Embedder builds a bag-of-words vector: each lower-cased token contributes a
// pseudo-random direction seeded by its hash, so texts sharing words score
// closer than unrelated texts.
type Embedder struct {
	dimensions int
	calls      atomic.Int64
}

// New creates a new mock embedder.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &Embedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)

	embedding := make([]float32, m.dimensions)
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		tokens = []string{""}
	}
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		seed := h.Sum64()
		for i := range embedding {
			// Simple LCG (Linear Congruential Generator)
			seed = seed*6364136223846793005 + 1442695040888963407
			embedding[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// Calls returns how many embeddings were computed.
func (m *Embedder) Calls() int {
	return int(m.calls.Load())
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
