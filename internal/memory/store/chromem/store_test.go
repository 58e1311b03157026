package chromem

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-doll-conversation-service/internal/memory"
)

const testCollection = "turns"

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func point(id, child string, vec ...float32) memory.Point {
	return memory.Point{ID: id, Vector: vec, Payload: map[string]string{
		memory.FieldChildID:  child,
		memory.FieldUserText: "said " + id,
		memory.FieldAIText:   "answered " + id,
	}}
}

func childFilter(child string) memory.Filter {
	return memory.Filter{Must: []memory.Match{{Field: memory.FieldChildID, Value: child}}}
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	created, err := s.EnsureCollection(ctx, testCollection, 3, memory.Cosine)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureCollection(ctx, testCollection, 3, memory.Cosine)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.EnsureIndex(ctx, testCollection, memory.FieldChildID))
	require.NoError(t, s.EnsureIndex(ctx, testCollection, memory.FieldChildID))
	assert.True(t, s.Indexed(testCollection, memory.FieldChildID))
}

func TestEnsureCollection_RejectsOtherDistances(t *testing.T) {
	_, err := newStore(t).EnsureCollection(context.Background(), testCollection, 3, memory.Distance("dot"))
	assert.Error(t, err)
}

func TestEnsureIndex_MissingCollection(t *testing.T) {
	assert.Error(t, newStore(t).EnsureIndex(context.Background(), "missing", memory.FieldChildID))
}

func TestQuery_EmptyCollection(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.EnsureCollection(ctx, testCollection, 3, memory.Cosine)
	require.NoError(t, err)

	hits, err := s.Query(ctx, testCollection, []float32{1, 0, 0}, childFilter("c1"), 3)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQuery_FiltersAndOrders(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.EnsureCollection(ctx, testCollection, 3, memory.Cosine)
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, testCollection, point("far", "c1", 0, 1, 0)))
	require.NoError(t, s.Upsert(ctx, testCollection, point("near", "c1", 1, 0.1, 0)))
	require.NoError(t, s.Upsert(ctx, testCollection, point("other", "c2", 1, 0, 0)))

	hits, err := s.Query(ctx, testCollection, []float32{1, 0, 0}, childFilter("c1"), 3)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ID)
	assert.Equal(t, "far", hits[1].ID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	for _, h := range hits {
		assert.Equal(t, "c1", h.Payload[memory.FieldChildID])
	}
}

func TestQuery_LimitLargerThanCollection(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.EnsureCollection(ctx, testCollection, 2, memory.Cosine)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, testCollection, point("only", "c1", 1, 0)))

	hits, err := s.Query(ctx, testCollection, []float32{1, 0}, childFilter("c1"), 10)

	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestQuery_RequiresFilter(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.EnsureCollection(ctx, testCollection, 2, memory.Cosine)
	require.NoError(t, err)

	_, err = s.Query(ctx, testCollection, []float32{1, 0}, memory.Filter{}, 3)

	assert.ErrorIs(t, err, memory.ErrUnfilteredQuery)
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.EnsureCollection(ctx, testCollection, 3, memory.Cosine)
	require.NoError(t, err)

	assert.Error(t, s.Upsert(ctx, testCollection, point("bad", "c1", 1, 0)))
}

func TestPersistentStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(Config{Path: dir})
	require.NoError(t, err)
	_, err = s.EnsureCollection(ctx, testCollection, 2, memory.Cosine)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Upsert(ctx, testCollection, point(fmt.Sprintf("p%d", i), "c1", 1, float32(i))))
	}

	reopened, err := New(Config{Path: dir})
	require.NoError(t, err)
	created, err := reopened.EnsureCollection(ctx, testCollection, 2, memory.Cosine)
	require.NoError(t, err)
	assert.False(t, created)

	hits, err := reopened.Query(ctx, testCollection, []float32{1, 0}, childFilter("c1"), 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}
