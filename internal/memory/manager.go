// Package memory provides per-child conversational memory: semantic recall of
// past turns and durable, append-only persistence of new ones.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"ai-doll-conversation-service/internal/models"
	"ai-doll-conversation-service/internal/observability/logging"
	"ai-doll-conversation-service/internal/service/capability"
)

var (
	// ErrNotReady is returned when Recall or Remember run before EnsureReady succeeded.
	ErrNotReady = errors.New("memory collection is not initialised")
	// ErrEmptyChildID is returned for operations without a child scope.
	ErrEmptyChildID = errors.New("child id is empty")
	// ErrDimensionMismatch is returned when the embedder disagrees with the collection size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Config holds memory configuration.
type Config struct {
	Collection  string
	Dimensions  int
	RecallLimit int
}

// DefaultConfig returns the production collection layout.
func DefaultConfig() Config {
	return Config{
		Collection:  "toy_conversations_v2",
		Dimensions:  1536,
		RecallLimit: 3,
	}
}

// Recorder receives memory observations.
type Recorder interface {
	RecordRecall(hits int)
	RecordMemoryWrite()
}

// Manager orchestrates the embedder and the vector store.
type Manager struct {
	store    Store
	embedder Embedder
	config   Config
	runner   *capability.Runner
	recorder Recorder
	logger   zerolog.Logger

	ready     atomic.Bool
	initGroup singleflight.Group

	now   func() time.Time
	newID func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithRunner runs embedder and store calls inside capability boundaries.
func WithRunner(r *capability.Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a Manager. EnsureReady must succeed before use.
func NewManager(store Store, embedder Embedder, cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.Collection == "" {
		cfg.Collection = def.Collection
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = def.Dimensions
	}
	if cfg.RecallLimit <= 0 {
		cfg.RecallLimit = def.RecallLimit
	}

	m := &Manager{
		store:    store,
		embedder: embedder,
		config:   cfg,
		logger:   logging.WithComponent("memory"),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Ready reports whether the collection and its child index exist.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

// EnsureReady creates the collection and the child_id keyword index if they
// are absent. Concurrent callers share one initialisation; once it succeeded
// later calls return immediately. Errors are returned as-is, not retried.
func (m *Manager) EnsureReady(ctx context.Context) error {
	if m.ready.Load() {
		return nil
	}

	_, err, _ := m.initGroup.Do("ensure", func() (any, error) {
		if m.ready.Load() {
			return nil, nil
		}

		created, err := m.store.EnsureCollection(ctx, m.config.Collection, m.config.Dimensions, Cosine)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to ensure memory collection",
				goerr.V("collection", m.config.Collection))
		}
		if err := m.store.EnsureIndex(ctx, m.config.Collection, FieldChildID); err != nil {
			return nil, goerr.Wrap(err, "failed to ensure child index",
				goerr.V("collection", m.config.Collection), goerr.V("field", FieldChildID))
		}

		m.ready.Store(true)
		m.logger.Info().
			Str("collection", m.config.Collection).
			Int("dimensions", m.config.Dimensions).
			Bool("created", created).
			Msg("Memory collection ready")
		return nil, nil
	})
	return err
}

// Recall returns the child's most similar past turns formatted for a prompt,
// or an empty string when the child has no history.
func (m *Manager) Recall(ctx context.Context, childID, query string) (string, error) {
	records, err := m.RecallRecords(ctx, childID, query)
	if err != nil {
		return "", err
	}
	return FormatHistory(records), nil
}

// RecallRecords returns at most RecallLimit turns for childID ordered by
// descending similarity to query.
func (m *Manager) RecallRecords(ctx context.Context, childID, query string) ([]models.MemoryRecord, error) {
	if err := m.check(childID); err != nil {
		return nil, err
	}

	vector, err := m.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	filter := Filter{Must: []Match{{Field: FieldChildID, Value: childID}}}
	hits, err := capability.Do(ctx, m.runner, capability.VectorStore, func(ctx context.Context) ([]Hit, error) {
		return m.store.Query(ctx, m.config.Collection, vector, filter, m.config.RecallLimit)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	records := make([]models.MemoryRecord, 0, len(hits))
	for _, h := range hits {
		// The store already filters; a mismatch here means a misbehaving backend.
		if h.Payload[FieldChildID] != childID {
			m.logger.Warn().Str("pointId", h.ID).Msg("Dropping recalled point of another child")
			continue
		}
		records = append(records, recordFromHit(h))
		if len(records) == m.config.RecallLimit {
			break
		}
	}

	if m.recorder != nil {
		m.recorder.RecordRecall(len(records))
	}
	m.logger.Debug().Str("childId", childID).Int("hits", len(records)).Msg("Recalled memories")
	return records, nil
}

// Remember embeds userText and appends a new record for the turn.
func (m *Manager) Remember(ctx context.Context, childID, userText, aiText string) (models.MemoryRecord, error) {
	if err := m.check(childID); err != nil {
		return models.MemoryRecord{}, err
	}

	vector, err := m.embed(ctx, userText)
	if err != nil {
		return models.MemoryRecord{}, err
	}

	rec := models.MemoryRecord{
		ID:        m.newID(),
		ChildID:   childID,
		Embedding: vector,
		UserText:  userText,
		AIText:    aiText,
		CreatedAt: m.now().UTC(),
	}

	point := Point{
		ID:     rec.ID,
		Vector: rec.Embedding,
		Payload: map[string]string{
			FieldChildID:   rec.ChildID,
			FieldUserText:  rec.UserText,
			FieldAIText:    rec.AIText,
			FieldCreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if _, err := capability.Do(ctx, m.runner, capability.VectorStore, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.store.Upsert(ctx, m.config.Collection, point)
	}); err != nil {
		return models.MemoryRecord{}, err
	}

	if m.recorder != nil {
		m.recorder.RecordMemoryWrite()
	}
	m.logger.Debug().Str("childId", childID).Str("memoryId", rec.ID).Msg("Saved conversation turn")
	return rec, nil
}

func (m *Manager) check(childID string) error {
	if !m.ready.Load() {
		return ErrNotReady
	}
	if childID == "" {
		return ErrEmptyChildID
	}
	return nil
}

func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	return capability.Do(ctx, m.runner, capability.Embedding, func(ctx context.Context) ([]float32, error) {
		v, err := m.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(v) != m.config.Dimensions {
			return nil, capability.Permanent(goerr.Wrap(ErrDimensionMismatch, "embedder returned wrong vector size",
				goerr.V("got", len(v)), goerr.V("want", m.config.Dimensions)))
		}
		return v, nil
	})
}

func recordFromHit(h Hit) models.MemoryRecord {
	rec := models.MemoryRecord{
		ID:       h.ID,
		ChildID:  h.Payload[FieldChildID],
		UserText: h.Payload[FieldUserText],
		AIText:   h.Payload[FieldAIText],
	}
	if ts, err := time.Parse(time.RFC3339Nano, h.Payload[FieldCreatedAt]); err == nil {
		rec.CreatedAt = ts
	}
	return rec
}
