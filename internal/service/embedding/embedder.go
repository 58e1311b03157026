// Package embedding defines the interface for text embedding backends.
package embedding

import "context"

// DefaultDimensions is the vector size the memory collection is created with.
const DefaultDimensions = 1536

// Embedder maps text to a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
