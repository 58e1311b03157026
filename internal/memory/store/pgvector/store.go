// Package pgvector implements memory.Store on PostgreSQL with the pgvector
// extension. Each collection is one table holding an id, a vector column and
// a jsonb payload.
package pgvector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/rs/zerolog"

	"ai-doll-conversation-service/internal/memory"
	"ai-doll-conversation-service/internal/observability/logging"
)

// Store implements memory.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New opens a connection pool and registers the vector types on every
// connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	// The extension must exist before AfterConnect can resolve the type.
	conn, err := pgx.ConnectConfig(ctx, cfg.ConnConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	_ = conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("create vector extension: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &Store{pool: pool, logger: logging.WithComponent("pgvector")}, nil
}

// EnsureCollection creates the collection table if it is absent.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimensions int, distance memory.Distance) (bool, error) {
	if distance != memory.Cosine {
		return false, fmt.Errorf("pgvector store supports only cosine distance, got %q", distance)
	}

	var exists bool
	query, args := existsQuery(name)
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := s.pool.Exec(ctx, createTableSQL(name, dimensions)); err != nil {
		return false, fmt.Errorf("create table: %w", err)
	}
	s.logger.Info().Str("collection", name).Int("dimensions", dimensions).Msg("Created collection")
	return true, nil
}

// EnsureIndex creates an expression index on payload->>field.
func (s *Store) EnsureIndex(ctx context.Context, collection, field string) error {
	if _, err := s.pool.Exec(ctx, createIndexSQL(collection, field)); err != nil {
		return fmt.Errorf("create index on %s: %w", field, err)
	}
	return nil
}

// Upsert inserts point. Records are append-only: a row that already holds
// the id is left untouched.
func (s *Store) Upsert(ctx context.Context, collection string, point memory.Point) error {
	_, err := s.pool.Exec(ctx, upsertSQL(collection), point.ID, pgvector.NewVector(point.Vector), point.Payload)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Query orders rows by cosine distance. Score is 1 - distance so higher is
// closer, matching the other stores.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, filter memory.Filter, limit int) ([]memory.Hit, error) {
	if filter.Empty() {
		return nil, memory.ErrUnfilteredQuery
	}
	if limit <= 0 {
		return nil, nil
	}

	query, args := querySQL(collection, filter)
	args = append([]any{pgvector.NewVector(vector)}, args...)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var hits []memory.Hit
	for rows.Next() {
		var (
			h        memory.Hit
			distance float64
		)
		if err := rows.Scan(&h.ID, &h.Payload, &distance); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		h.Score = float32(1 - distance)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func table(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// literal quotes s as a SQL string literal. Index expressions cannot take
// bind parameters.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// existsQuery passes the quoted table name, the same form createTableSQL
// uses, so mixed-case collections resolve to the table that was created.
func existsQuery(name string) (string, []any) {
	return "SELECT to_regclass($1) IS NOT NULL", []any{table(name)}
}

func createTableSQL(name string, dimensions int) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  embedding VECTOR(%d) NOT NULL,
  payload JSONB NOT NULL DEFAULT '{}'::jsonb
)`, table(name), dimensions)
}

func createIndexSQL(collection, field string) string {
	index := pgx.Identifier{collection + "_" + field + "_idx"}.Sanitize()
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s ((payload->>%s))", index, table(collection), literal(field))
}

func upsertSQL(collection string) string {
	return fmt.Sprintf(`INSERT INTO %s (id, embedding, payload) VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`, table(collection))
}

// querySQL builds the search statement. $1 is the query vector and the last
// placeholder the limit; the returned args fill the filter placeholders.
// Field names are inlined so the planner can match the expression index.
func querySQL(collection string, filter memory.Filter) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT id, payload, (embedding <=> $1) AS distance FROM %s WHERE ", table(collection))
	for i, m := range filter.Must {
		if i > 0 {
			b.WriteString(" AND ")
		}
		args = append(args, m.Value)
		b.WriteString("payload->>" + literal(m.Field) + " = $" + strconv.Itoa(len(args)+1))
	}
	b.WriteString(" ORDER BY embedding <=> $1 LIMIT $" + strconv.Itoa(len(args)+2))
	return b.String(), args
}
