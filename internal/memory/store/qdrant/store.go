// Package qdrant implements memory.Store on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"ai-doll-conversation-service/internal/memory"
	"ai-doll-conversation-service/internal/observability/logging"
	"ai-doll-conversation-service/internal/service/capability"
)

// Config holds Qdrant connection settings.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// client is the subset of *qdrant.Client the store uses.
type client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Store implements memory.Store.
type Store struct {
	client client
	logger zerolog.Logger
}

// New connects to Qdrant.
func New(cfg Config) (*Store, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return newStore(c), nil
}

func newStore(c client) *Store {
	return &Store{client: c, logger: logging.WithComponent("qdrant")}
}

// EnsureCollection creates the collection if it is absent.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimensions int, distance memory.Distance) (bool, error) {
	d, err := qdrantDistance(distance)
	if err != nil {
		return false, err
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, capability.FromGRPC(fmt.Errorf("check collection: %w", err))
	}
	if exists {
		return false, nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: d,
		}),
	})
	if err != nil {
		return false, capability.FromGRPC(fmt.Errorf("create collection: %w", err))
	}
	s.logger.Info().Str("collection", name).Int("dimensions", dimensions).Msg("Created collection")
	return true, nil
}

// EnsureIndex creates a keyword payload index on field if it is absent.
func (s *Store) EnsureIndex(ctx context.Context, collection, field string) error {
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return capability.FromGRPC(fmt.Errorf("collection info: %w", err))
	}
	if _, ok := info.GetPayloadSchema()[field]; ok {
		return nil
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      field,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return capability.FromGRPC(fmt.Errorf("create index on %s: %w", field, err))
	}
	s.logger.Info().Str("collection", collection).Str("field", field).Msg("Created payload index")
	return nil
}

// Upsert writes point and waits until it is applied.
func (s *Store) Upsert(ctx context.Context, collection string, point memory.Point) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{pointStruct(point)},
	})
	if err != nil {
		return capability.FromGRPC(fmt.Errorf("upsert: %w", err))
	}
	return nil
}

// Query runs a nearest-neighbour search restricted by filter.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, filter memory.Filter, limit int) ([]memory.Hit, error) {
	if filter.Empty() {
		return nil, memory.ErrUnfilteredQuery
	}
	if limit <= 0 {
		return nil, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, capability.FromGRPC(fmt.Errorf("query: %w", err))
	}

	hits := make([]memory.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, hitFromPoint(p))
	}
	return hits, nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func qdrantDistance(d memory.Distance) (qdrant.Distance, error) {
	switch d {
	case memory.Cosine:
		return qdrant.Distance_Cosine, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("unsupported distance %q", d)
	}
}

func qdrantFilter(f memory.Filter) *qdrant.Filter {
	conds := make([]*qdrant.Condition, 0, len(f.Must))
	for _, m := range f.Must {
		conds = append(conds, qdrant.NewMatch(m.Field, m.Value))
	}
	return &qdrant.Filter{Must: conds}
}

func pointStruct(p memory.Point) *qdrant.PointStruct {
	payload := make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = v
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: qdrant.NewValueMap(payload),
	}
}

func hitFromPoint(p *qdrant.ScoredPoint) memory.Hit {
	payload := make(map[string]string, len(p.GetPayload()))
	for k, v := range p.GetPayload() {
		payload[k] = v.GetStringValue()
	}
	return memory.Hit{
		ID:      p.GetId().GetUuid(),
		Score:   p.GetScore(),
		Payload: payload,
	}
}
