// Package hnsw implements the C3 ANN index: an arena-indexed,
// multi-layer Hierarchical Navigable Small World graph. Unlike
// pointer-linked HNSW implementations, every node lives in a flat
// []node arena and is referenced purely by its uint32 internal_index —
// the same index C1 (internal/vector) assigns on Append — so the graph
// carries no pointers between nodes, only index slices.
package hnsw

import (
	"fmt"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// ErrIndexNotBuilt is returned by Search when called before any Insert.
var ErrIndexNotBuilt = fmt.Errorf("hnsw: index not built, insert at least one vector first")

// ErrNodeNotFound is returned by MarkDeleted for an index never inserted.
type ErrNodeNotFound struct {
	Index uint32
}

func (e ErrNodeNotFound) Error() string {
	return fmt.Sprintf("hnsw: no node at index %d", e.Index)
}

// Result is one ranked hit from Search.
type Result struct {
	Index uint32
	Score float32
}

// Filter is a traversal-time predicate over internal_index. It is
// consulted while expanding the candidate frontier, not after the fact,
// so that tombstoned or filtered-out nodes still serve as stepping
// stones for connectivity instead of producing empty result sets.
type Filter func(idx uint32) bool

// Stats reports graph-level node accounting.
type Stats struct {
	ValidNodes int
	TotalNodes int
	Orphans    int
	MaxLevel   int
}

// Config parameterizes a new Graph, mirroring the collection's
// hnsw.{m,ef_construction,ef_search,seed} settings.
type Config struct {
	M              int
	EfConstruction int
	EfSearch       int
	Seed           uint64
	Metric         config.Metric
}

// DefaultConfig returns the spec's default HNSW parameters.
func DefaultConfig() Config {
	return Config{
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
		Seed:           42,
		Metric:         config.MetricCosine,
	}
}
