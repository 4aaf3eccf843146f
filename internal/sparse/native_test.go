package sparse

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeIndex_AddAndQuery_RanksMoreRelevantDocHigher(t *testing.T) {
	idx := NewNativeIndex(DefaultConfig())
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, 1, "the quick brown fox jumps over the lazy dog"))
	require.NoError(t, idx.Add(ctx, 2, "foxes are quick and clever quick quick"))
	require.NoError(t, idx.Add(ctx, 3, "a completely unrelated document about gardening"))

	results, err := idx.Query(ctx, "quick fox", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.NotEqual(t, uint32(3), results[0].DocID)
}

func TestNativeIndex_Query_EmptyText_ReturnsNoResults(t *testing.T) {
	idx := NewNativeIndex(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, 1, "some content"))

	results, err := idx.Query(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNativeIndex_Remove_ExcludesDocFromFutureQueries(t *testing.T) {
	idx := NewNativeIndex(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, 1, "alpha beta gamma"))
	require.NoError(t, idx.Add(ctx, 2, "alpha beta gamma"))

	require.NoError(t, idx.Remove(ctx, 1))

	results, err := idx.Query(ctx, "alpha", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, uint32(1), r.DocID)
	}
}

func TestNativeIndex_Add_ReplacesExistingDoc(t *testing.T) {
	idx := NewNativeIndex(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, 1, "alpha"))
	require.NoError(t, idx.Add(ctx, 1, "beta"))

	resultsAlpha, err := idx.Query(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, resultsAlpha)

	resultsBeta, err := idx.Query(ctx, "beta", 10)
	require.NoError(t, err)
	require.Len(t, resultsBeta, 1)
}

func TestNativeIndex_Stats_ReflectsDocCountAndAvgLength(t *testing.T) {
	idx := NewNativeIndex(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, 1, "one two"))
	require.NoError(t, idx.Add(ctx, 2, "one two three four"))

	stats := idx.Stats()
	assert.Equal(t, 2, stats.DocCount)
	assert.InDelta(t, 3.0, stats.AvgDocLength, 0.001)
}

func TestNativeIndex_EmbedQuery_MapsTermsToStableIDs(t *testing.T) {
	idx := NewNativeIndex(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, 1, "alpha beta"))

	first := idx.EmbedQuery("alpha")
	second := idx.EmbedQuery("alpha")
	require.Len(t, first.Indices, 1)
	require.Len(t, second.Indices, 1)
	assert.Equal(t, first.Indices[0], second.Indices[0])
}

func TestNativeIndex_SaveLoad_RoundTrip(t *testing.T) {
	idx := NewNativeIndex(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, 1, "quick brown fox"))
	require.NoError(t, idx.Add(ctx, 2, "lazy dog"))

	path := fmt.Sprintf("%s/bm25.idx", t.TempDir())
	require.NoError(t, idx.Save(path))

	loaded := NewNativeIndex(DefaultConfig())
	require.NoError(t, loaded.Load(path))

	want, err := idx.Query(ctx, "quick", 10)
	require.NoError(t, err)
	got, err := loaded.Query(ctx, "quick", 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNativeIndex_Close_RejectsFurtherWrites(t *testing.T) {
	idx := NewNativeIndex(DefaultConfig())
	require.NoError(t, idx.Close())
	err := idx.Add(context.Background(), 1, "text")
	assert.Error(t, err)
}
