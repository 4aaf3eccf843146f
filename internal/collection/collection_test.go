package collection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/hnsw"
	"github.com/vectorizer-project/vectorizer/internal/sparse"
	"github.com/vectorizer-project/vectorizer/internal/vector"
)

func newTestCollection(t *testing.T, dim int, opts ...Option) *Collection {
	t.Helper()
	cfg := Config{
		Name:   "test",
		Dim:    dim,
		Metric: config.MetricCosine,
		HNSW:   hnsw.Config{M: 8, EfConstruction: 32, EfSearch: 32, Seed: 7, Metric: config.MetricCosine},
	}
	store := vector.NewMemoryStore(dim, config.MetricCosine)
	graph := hnsw.New(cfg.HNSW)
	return New(cfg, store, graph, opts...)
}

func vec(id string, d []float32) Vector {
	return Vector{ID: id, Dense: d}
}

func TestCollection_Insert_RejectsDimensionMismatch(t *testing.T) {
	c := newTestCollection(t, 4)
	err := c.Insert(context.Background(), vec("a", []float32{1, 2, 3}))
	require.Error(t, err)
}

func TestCollection_Insert_RejectsDuplicateID(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, vec("a", []float32{1, 0, 0})))
	err := c.Insert(ctx, vec("a", []float32{0, 1, 0}))
	assert.Error(t, err)
}

func TestCollection_Insert_Get_RoundTrip(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, Vector{ID: "a", Dense: []float32{1, 0, 0}, Payload: map[string]any{"k": "v"}}))

	got, err := c.Get(ctx, "a", true, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, got.Dense)
	assert.Equal(t, "v", got.Payload["k"])
}

func TestCollection_Get_UnknownID_ReturnsNotFound(t *testing.T) {
	c := newTestCollection(t, 3)
	_, err := c.Get(context.Background(), "missing", true, true)
	assert.Error(t, err)
}

func TestCollection_SearchDense_FindsExactMatch(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, vec("a", []float32{1, 0, 0})))
	require.NoError(t, c.Insert(ctx, vec("b", []float32{0, 1, 0})))
	require.NoError(t, c.Insert(ctx, vec("c", []float32{0, 0, 1})))

	results, err := c.SearchDense(ctx, []float32{1, 0, 0}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestCollection_SearchDense_RejectsDimensionMismatch(t *testing.T) {
	c := newTestCollection(t, 3)
	_, err := c.SearchDense(context.Background(), []float32{1, 0}, 1, 0, nil)
	assert.Error(t, err)
}

func TestCollection_SearchDense_BeforeAnyInsert_ReturnsEmptyNotError(t *testing.T) {
	c := newTestCollection(t, 3)
	results, err := c.SearchDense(context.Background(), []float32{1, 0, 0}, 1, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCollection_SearchDense_WithPayloadFilter(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, Vector{ID: "a", Dense: []float32{1, 0, 0}, Payload: map[string]any{"tag": "keep"}}))
	require.NoError(t, c.Insert(ctx, Vector{ID: "b", Dense: []float32{0.99, 0.01, 0}, Payload: map[string]any{"tag": "drop"}}))

	filter := &Filter{Predicates: []Predicate{{Path: "tag", Op: OpEq, Value: "keep"}}}
	results, err := c.SearchDense(ctx, []float32{1, 0, 0}, 5, 0, filter)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "a", r.ID)
	}
}

func TestCollection_Delete_RemovesFromFutureSearchAndGet(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, vec("a", []float32{1, 0, 0})))
	require.NoError(t, c.Delete(ctx, "a"))

	_, err := c.Get(ctx, "a", false, false)
	assert.Error(t, err)

	stats := c.Stats()
	assert.Equal(t, 0, stats.VectorCount)
	assert.Equal(t, 1, stats.Tombstones)
}

func TestCollection_Delete_UnknownID_ReturnsNotFound(t *testing.T) {
	c := newTestCollection(t, 3)
	err := c.Delete(context.Background(), "missing")
	assert.Error(t, err)
}

func TestCollection_Update_PayloadOnly_LeavesDenseUnchanged(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, Vector{ID: "a", Dense: []float32{1, 0, 0}, Payload: map[string]any{"k": "v1"}}))

	require.NoError(t, c.Update(ctx, "a", nil, map[string]any{"k": "v2"}))

	got, err := c.Get(ctx, "a", true, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, got.Dense)
	assert.Equal(t, "v2", got.Payload["k"])
}

func TestCollection_Update_DenseReplacement_IsFindableAtNewLocation(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, vec("a", []float32{1, 0, 0})))
	require.NoError(t, c.Insert(ctx, vec("b", []float32{0, 1, 0})))

	require.NoError(t, c.Update(ctx, "a", []float32{0, 0, 1}, nil))

	results, err := c.SearchDense(ctx, []float32{0, 0, 1}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestCollection_BatchInsert_PartialFailureReportsPerItemStatus(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()

	statuses := c.BatchInsert(ctx, []Vector{
		vec("a", []float32{1, 0, 0}),
		vec("b", []float32{1, 2}), // wrong dim
		vec("c", []float32{0, 0, 1}),
	})

	require.Len(t, statuses, 3)
	assert.NoError(t, statuses[0].Err)
	assert.Error(t, statuses[1].Err)
	assert.NoError(t, statuses[2].Err)

	stats := c.Stats()
	assert.Equal(t, 2, stats.VectorCount)
}

func TestCollection_List_AppliesLimitOffsetAndFilter(t *testing.T) {
	c := newTestCollection(t, 2)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, Vector{ID: "a", Dense: []float32{1, 0}, Payload: map[string]any{"keep": true}}))
	require.NoError(t, c.Insert(ctx, Vector{ID: "b", Dense: []float32{0, 1}, Payload: map[string]any{"keep": false}}))
	require.NoError(t, c.Insert(ctx, Vector{ID: "c", Dense: []float32{1, 1}, Payload: map[string]any{"keep": true}}))

	filter := &Filter{Predicates: []Predicate{{Path: "keep", Op: OpEq, Value: true}}}
	out, err := c.List(ctx, 0, 0, filter)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestCollection_SearchSparse_WithSparseIndexConfigured(t *testing.T) {
	idx := sparse.NewNativeIndex(sparse.DefaultConfig())
	c := newTestCollection(t, 3, WithSparseIndex(idx))
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, Vector{ID: "a", Dense: []float32{1, 0, 0}, Payload: map[string]any{"content": "the quick brown fox"}}))
	require.NoError(t, c.Insert(ctx, Vector{ID: "b", Dense: []float32{0, 1, 0}, Payload: map[string]any{"content": "an unrelated gardening note"}}))

	results, err := c.SearchSparse(ctx, "quick fox", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
}

func TestCollection_SearchSparse_WithoutIndexConfigured_ReturnsEmpty(t *testing.T) {
	c := newTestCollection(t, 3)
	results, err := c.SearchSparse(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
