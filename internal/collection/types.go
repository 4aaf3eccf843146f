// Package collection implements C6: the bundle of dense store, sparse
// index, and HNSW graph that forms the unit of locking for one named
// vector collection.
package collection

import (
	"time"

	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/hnsw"
)

// NormalizationLevel controls how aggressively ingested text is
// normalized before embedding/tokenization.
type NormalizationLevel string

const (
	NormalizationConservative NormalizationLevel = "conservative"
	NormalizationModerate     NormalizationLevel = "moderate"
	NormalizationAggressive   NormalizationLevel = "aggressive"
)

// Normalization is optional per-collection text normalization policy.
type Normalization struct {
	Level        NormalizationLevel
	LineEndings  string
	Whitespace   string
}

// Config is the per-collection configuration (spec §3 CollectionConfig).
type Config struct {
	Name          string
	Dim           int
	Metric        config.Metric
	HNSW          hnsw.Config
	Quantization  config.QuantizationKind
	Storage       config.StorageBackend
	Normalization *Normalization
}

// Stats mirrors the spec's Collection.stats block.
type Stats struct {
	VectorCount   int
	Tombstones    int
	LastModified  time.Time
	LastSavedLSN  uint64
}

// Vector is the data-model Vector (spec §3), as returned by Get/List.
type Vector struct {
	ID      string
	Dense   []float32
	Sparse  *SparseVector
	Payload map[string]any
}

// SparseVector parallels internal/vector.SparseVector at the collection's
// public API boundary (string ids instead of internal indices upstream).
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// ScoredResult is one ranked hit from search_dense/search_sparse.
type ScoredResult struct {
	ID    string
	Score float32
}

// ItemStatus reports the per-item outcome of a batch operation, since a
// partially failing batch returns a per-item status rather than
// aborting (spec §4.6).
type ItemStatus struct {
	ID    string
	Err   error
}
