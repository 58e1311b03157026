package memory

import (
	"context"
	"errors"
)

// Distance is the similarity metric a collection is created with.
type Distance string

const Cosine Distance = "cosine"

// Payload keys written with every conversation turn.
const (
	FieldChildID   = "child_id"
	FieldUserText  = "user_text"
	FieldAIText    = "ai_text"
	FieldCreatedAt = "created_at"
)

// ErrUnfilteredQuery is returned by stores asked to search without a filter.
// Every recall must be scoped to one child.
var ErrUnfilteredQuery = errors.New("vector query requires at least one filter condition")

// Point is one vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// Match is an exact keyword equality condition.
type Match struct {
	Field string
	Value string
}

// Filter is a conjunction of conditions.
type Filter struct {
	Must []Match
}

// Empty reports whether the filter has no conditions.
func (f Filter) Empty() bool { return len(f.Must) == 0 }

// Hit is one ranked query result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Store is a vector database collection holding every child's turns.
// Implementations must be safe for concurrent use.
type Store interface {
	// EnsureCollection creates the collection if it is absent and reports
	// whether it did.
	EnsureCollection(ctx context.Context, name string, dimensions int, distance Distance) (bool, error)
	// EnsureIndex creates a keyword index on field if it is absent.
	EnsureIndex(ctx context.Context, collection, field string) error
	Upsert(ctx context.Context, collection string, point Point) error
	// Query returns at most limit hits ordered by descending score.
	Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]Hit, error)
	Close() error
}

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
