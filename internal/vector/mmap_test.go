package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

func TestMmapStore_AppendAndGet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.dat")

	s, err := OpenMmapStore(path, 4, config.MetricCosine)
	require.NoError(t, err)
	defer s.Close()

	idx, err := s.Append(ctx, []float32{1, 0, 0, 0}, nil, Payload{"src": "x"})
	require.NoError(t, err)

	e, err := s.Get(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, e.Dense)
	assert.Equal(t, "x", e.Payload["src"])
}

func TestMmapStore_Append_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.dat")

	s, err := OpenMmapStore(path, 4, config.MetricCosine)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(ctx, []float32{1, 2}, nil, nil)
	assert.Error(t, err)
}

func TestMmapStore_GrowsBeyondInitialCapacity(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.dat")

	s, err := OpenMmapStore(path, 2, config.MetricCosine)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < mmapInitialEntries+10; i++ {
		_, err := s.Append(ctx, []float32{float32(i), 0}, nil, nil)
		require.NoError(t, err)
	}

	stats := s.Stats()
	assert.Equal(t, mmapInitialEntries+10, stats.LiveCount)

	e, err := s.Get(ctx, Index(mmapInitialEntries+5))
	require.NoError(t, err)
	assert.Equal(t, float32(mmapInitialEntries+5), e.Dense[0])
}

func TestMmapStore_MarkDeleted_Tombstones(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.dat")

	s, err := OpenMmapStore(path, 2, config.MetricCosine)
	require.NoError(t, err)
	defer s.Close()

	idx, _ := s.Append(ctx, []float32{1, 0}, nil, nil)
	require.NoError(t, s.MarkDeleted(ctx, idx))

	_, err = s.Get(ctx, idx)
	assert.ErrorAs(t, err, &ErrTombstoned{})
}

func TestMmapStore_ReplaceDense_PersistsInPlace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.dat")

	s, err := OpenMmapStore(path, 2, config.MetricCosine)
	require.NoError(t, err)
	defer s.Close()

	idx, _ := s.Append(ctx, []float32{1, 0}, nil, nil)
	require.NoError(t, s.ReplaceDense(ctx, idx, []float32{0, 1}))

	e, err := s.Get(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, e.Dense)
}

func TestMmapStore_Restore_RebuildsLivenessAndPayloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.dat")

	s, err := OpenMmapStore(path, 2, config.MetricCosine)
	require.NoError(t, err)

	idx1, _ := s.Append(ctx, []float32{1, 0}, nil, Payload{"a": 1})
	idx2, _ := s.Append(ctx, []float32{0, 1}, nil, Payload{"b": 2})
	require.NoError(t, s.Close())

	s2, err := OpenMmapStore(path, 2, config.MetricCosine)
	require.NoError(t, err)
	defer s2.Close()

	err = s2.Restore(
		[]bool{false, false},
		[]Payload{{"a": 1}, {"b": 2}},
		[]*SparseVector{nil, nil},
	)
	require.NoError(t, err)

	e1, err := s2.Get(ctx, idx1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, e1.Dense)
	assert.Equal(t, 1, e1.Payload["a"])

	e2, err := s2.Get(ctx, idx2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, e2.Dense)
}

func TestMmapStore_Restore_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.dat")

	s, err := OpenMmapStore(path, 2, config.MetricCosine)
	require.NoError(t, err)
	s.Append(ctx, []float32{1, 0}, nil, nil)

	// Corrupt the first byte of the record in place.
	s.data[0] ^= 0xFF
	require.NoError(t, s.Close())

	s2, err := OpenMmapStore(path, 2, config.MetricCosine)
	require.NoError(t, err)
	defer s2.Close()

	err = s2.Restore([]bool{false}, []Payload{nil}, []*SparseVector{nil})
	assert.ErrorAs(t, err, &ErrCorrupted{})
}

func TestMmapStore_Stats(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.dat")

	s, err := OpenMmapStore(path, 2, config.MetricCosine)
	require.NoError(t, err)
	defer s.Close()

	idx, _ := s.Append(ctx, []float32{1, 0}, nil, nil)
	s.Append(ctx, []float32{0, 1}, nil, nil)
	require.NoError(t, s.MarkDeleted(ctx, idx))

	stats := s.Stats()
	assert.Equal(t, 1, stats.LiveCount)
	assert.Equal(t, 1, stats.Tombstoned)
}
