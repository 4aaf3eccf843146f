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

func TestSections_Restore_RoundTrip_PreservesLiveVectors(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, Vector{ID: "a", Dense: []float32{1, 0, 0}, Payload: map[string]any{"k": "a"}}))
	require.NoError(t, c.Insert(ctx, Vector{ID: "b", Dense: []float32{0, 1, 0}, Payload: map[string]any{"k": "b"}}))
	require.NoError(t, c.Insert(ctx, Vector{ID: "c", Dense: []float32{0, 0, 1}}))
	require.NoError(t, c.Delete(ctx, "b"))

	sections, err := c.Sections(ctx, 42)
	require.NoError(t, err)

	restoredStore := vector.NewMemoryStore(3, config.MetricCosine)
	restored, sealedLSN, err := Restore(ctx, restoredStore, sections)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sealedLSN)

	got, err := restored.Get(ctx, "a", true, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, got.Dense)
	assert.Equal(t, "a", got.Payload["k"])

	_, err = restored.Get(ctx, "b", true, true)
	assert.Error(t, err, "deleted vector must stay deleted across a seal/restore cycle")

	got, err = restored.Get(ctx, "c", true, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1}, got.Dense)

	assert.Equal(t, 1, restored.Stats().Tombstones)
}

func TestSections_Restore_RoundTrip_PreservesHNSWSearch(t *testing.T) {
	c := newTestCollection(t, 3)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, vec("a", []float32{1, 0, 0})))
	require.NoError(t, c.Insert(ctx, vec("b", []float32{0, 1, 0})))
	require.NoError(t, c.Insert(ctx, vec("c", []float32{0, 0, 1})))

	sections, err := c.Sections(ctx, 7)
	require.NoError(t, err)

	restoredStore := vector.NewMemoryStore(3, config.MetricCosine)
	restored, _, err := Restore(ctx, restoredStore, sections)
	require.NoError(t, err)

	results, err := restored.SearchDense(ctx, []float32{1, 0, 0}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSections_Restore_RoundTrip_PreservesSparseIndex(t *testing.T) {
	cfg := Config{
		Name:   "test",
		Dim:    2,
		Metric: config.MetricCosine,
		HNSW:   hnsw.Config{M: 8, EfConstruction: 32, EfSearch: 32, Seed: 1, Metric: config.MetricCosine},
	}
	store := vector.NewMemoryStore(2, config.MetricCosine)
	graph := hnsw.New(cfg.HNSW)
	sp := sparse.NewNativeIndex(sparse.DefaultConfig())
	c := New(cfg, store, graph, WithSparseIndex(sp))
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, Vector{ID: "a", Dense: []float32{1, 0}, Payload: map[string]any{"content": "the quick brown fox"}}))
	require.NoError(t, c.Insert(ctx, Vector{ID: "b", Dense: []float32{0, 1}, Payload: map[string]any{"content": "lazy dog sleeps"}}))

	sections, err := c.Sections(ctx, 3)
	require.NoError(t, err)
	require.NotEmpty(t, sections["tokenizer_state"])

	restoredStore := vector.NewMemoryStore(2, config.MetricCosine)
	restoredSparse := sparse.NewNativeIndex(sparse.DefaultConfig())
	restored, _, err := Restore(ctx, restoredStore, sections, WithSparseIndex(restoredSparse))
	require.NoError(t, err)

	results, err := restored.SearchSparse(ctx, "quick fox", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSealedConfig_DecodesConfigWithoutFullRestore(t *testing.T) {
	c := newTestCollection(t, 5)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, vec("a", []float32{1, 2, 3, 4, 5})))

	sections, err := c.Sections(ctx, 11)
	require.NoError(t, err)

	cfg, sealedLSN, err := SealedConfig(sections)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Name)
	assert.Equal(t, 5, cfg.Dim)
	assert.Equal(t, uint64(11), sealedLSN)
}
