package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMMRSelect_PrefersDiverseOverRedundant(t *testing.T) {
	candidates := []rankedCandidate{
		{id: "a", relevance: 1.0, dense: []float32{1, 0, 0}},
		{id: "b", relevance: 0.95, dense: []float32{1, 0, 0.01}}, // near-duplicate of a
		{id: "c", relevance: 0.8, dense: []float32{0, 1, 0}},     // orthogonal
	}

	out := mmrSelect(candidates, 2, 0.5)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].id)
	assert.Equal(t, "c", out[1].id, "c is more diverse than the near-duplicate b despite lower relevance")
}

func TestMMRSelect_KLargerThanInput_ReturnsAll(t *testing.T) {
	candidates := []rankedCandidate{{id: "a", relevance: 1}}
	out := mmrSelect(candidates, 10, 0.5)
	assert.Len(t, out, 1)
}

func TestCosineSim_OrthogonalVectors_IsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSim([]float32{1, 0}, []float32{0, 1}))
}

func TestCosineSim_IdenticalVectors_IsOne(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSim([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
}

func TestDedup_DropsNearDuplicate(t *testing.T) {
	candidates := []rankedCandidate{
		{id: "a", relevance: 1.0, dense: []float32{1, 0, 0}},
		{id: "b", relevance: 0.9, dense: []float32{1, 0, 0.001}},
		{id: "c", relevance: 0.5, dense: []float32{0, 1, 0}},
	}
	out := dedup(candidates, 0.99)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].id)
	assert.Equal(t, "c", out[1].id)
}

func TestDedup_KeepsCandidatesWithoutDenseVectors(t *testing.T) {
	candidates := []rankedCandidate{
		{id: "a", relevance: 1.0},
		{id: "b", relevance: 0.9},
	}
	out := dedup(candidates, 0.97)
	assert.Len(t, out, 2)
}
