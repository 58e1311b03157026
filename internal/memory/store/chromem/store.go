// Package chromem implements memory.Store on chromem-go, a pure Go embedded
// vector database. It backs local runs and tests; with a path it persists
// documents to disk.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"ai-doll-conversation-service/internal/memory"
	"ai-doll-conversation-service/internal/observability/logging"
)

const (
	metaDimensions = "dimensions"
	metaDistance   = "distance"
)

var errNoEmbeddingFunc = errors.New("chromem store only accepts precomputed embeddings")

// Config holds chromem configuration.
type Config struct {
	Path     string // empty keeps everything in memory
	Compress bool
}

// Store implements memory.Store.
type Store struct {
	db     *chromem.DB
	mu     sync.Mutex // guards collection creation and index bookkeeping
	dims   map[string]int
	index  map[string]map[string]bool
	logger zerolog.Logger
}

// New creates a chromem-based store.
func New(cfg Config) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %q: %w", cfg.Path, err)
		}
	}
	return &Store{
		db:     db,
		dims:   make(map[string]int),
		index:  make(map[string]map[string]bool),
		logger: logging.WithComponent("chromem"),
	}, nil
}

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// EnsureCollection creates the collection if it is absent.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimensions int, distance memory.Distance) (bool, error) {
	if distance != memory.Cosine {
		return false, fmt.Errorf("chromem supports only cosine distance, got %q", distance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col := s.db.GetCollection(name, noEmbedding); col != nil {
		s.dims[name] = dimensions
		return false, nil
	}

	_, err := s.db.CreateCollection(name, map[string]string{
		metaDimensions: strconv.Itoa(dimensions),
		metaDistance:   string(distance),
	}, noEmbedding)
	if err != nil {
		return false, fmt.Errorf("create collection: %w", err)
	}
	s.dims[name] = dimensions
	s.logger.Info().Str("collection", name).Int("dimensions", dimensions).Msg("Created collection")
	return true, nil
}

// EnsureIndex records field as filterable. chromem filters by exact metadata
// match without a separate index structure.
func (s *Store) EnsureIndex(ctx context.Context, collection, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.GetCollection(collection, noEmbedding) == nil {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	if s.index[collection] == nil {
		s.index[collection] = make(map[string]bool)
	}
	s.index[collection][field] = true
	return nil
}

// Indexed reports whether EnsureIndex ran for field.
func (s *Store) Indexed(collection, field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index[collection][field]
}

// Upsert stores point as a document; Content mirrors the user text.
func (s *Store) Upsert(ctx context.Context, collection string, point memory.Point) error {
	col, err := s.collection(collection, len(point.Vector))
	if err != nil {
		return err
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:        point.ID,
		Metadata:  point.Payload,
		Embedding: point.Vector,
		Content:   point.Payload[memory.FieldUserText],
	})
}

// Query performs an exhaustive cosine search restricted by filter.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, filter memory.Filter, limit int) ([]memory.Hit, error) {
	if filter.Empty() {
		return nil, memory.ErrUnfilteredQuery
	}
	col, err := s.collection(collection, len(vector))
	if err != nil {
		return nil, err
	}

	where := make(map[string]string, len(filter.Must))
	for _, m := range filter.Must {
		where[m.Field] = m.Value
	}

	// chromem-go requires nResults <= collection size. The collection only
	// grows, so clamping to the current count is safe.
	n := limit
	if c := col.Count(); c < n {
		n = c
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]memory.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, memory.Hit{ID: r.ID, Score: r.Similarity, Payload: r.Metadata})
	}
	return hits, nil
}

// Close releases resources. chromem keeps everything in memory or flushes
// on every write, so there is nothing to close.
func (s *Store) Close() error {
	return nil
}

func (s *Store) collection(name string, vectorLen int) (*chromem.Collection, error) {
	col := s.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("collection %q does not exist", name)
	}

	s.mu.Lock()
	dims, ok := s.dims[name]
	s.mu.Unlock()
	if ok && dims != vectorLen {
		return nil, fmt.Errorf("vector has %d dimensions, collection %q expects %d", vectorLen, name, dims)
	}
	return col, nil
}
