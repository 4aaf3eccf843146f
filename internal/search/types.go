// Package search implements C11: the multi-stage query pipeline that
// turns a text query into ranked hits across one or more collections
// (spec §4.11).
package search

import (
	"time"

	"github.com/vectorizer-project/vectorizer/internal/collection"
)

// Weights configures the relative importance of sparse vs dense
// retrieval during fusion.
type Weights struct {
	Sparse float64 // weight for BM25/sparse search (default: 0.35)
	Dense  float64 // weight for dense/vector search (default: 0.65)
}

// DefaultWeights returns the default fusion weights.
func DefaultWeights() Weights {
	return Weights{Sparse: 0.35, Dense: 0.65}
}

// FusionAlgorithm selects the stage-5 fusion strategy.
type FusionAlgorithm string

const (
	FusionRRF          FusionAlgorithm = "rrf"
	FusionWeightedSum   FusionAlgorithm = "weighted_sum"
)

// Query describes one search request (spec §4.11).
type Query struct {
	Text string

	// Collections to fan out across. A single entry is the common case;
	// more than one triggers the cross-collection fusion described at
	// the end of §4.11.
	Collections []string

	K       int // results requested after truncation (stage 10)
	EfSearch int

	Filter *collection.Filter

	Weights         Weights
	Fusion          FusionAlgorithm
	RRFConstant     int // default 60

	// Stage toggles. Every stage defaults to enabled; set the
	// corresponding Disable* field to skip it.
	DisableNormalization bool
	DisableExpansion     bool
	DisableSparse        bool
	DisableDense         bool
	DisableRerank        bool
	DisableMMR           bool
	DisableDedup         bool

	Lowercase      bool
	MaxExpansions  int     // stage 2, default 3
	MMRLambda      float64 // stage 8, default 0.5
	DedupThreshold float64 // stage 9 cosine threshold, default 0.97

	Rerank RerankWeights

	// CollectionPriority lets callers bias fan-out fusion toward
	// specific collections (e.g. a "docs" collection outranking
	// "scratch" on ties). Missing entries default to 1.0.
	CollectionPriority map[string]float64
}

// RerankWeights configures stage 7's weighted re-scoring factors (spec
// §4.11 "weighted re-scoring using multiple factors").
type RerankWeights struct {
	Similarity       float64
	TermOverlap      float64
	RankPosition     float64
	CollectionPrio   float64
	ContentLength    float64
	Freshness        float64
}

// DefaultRerankWeights weighs the fused score and term overlap most
// heavily, with the remaining factors acting as tie-breaking nudges.
func DefaultRerankWeights() RerankWeights {
	return RerankWeights{
		Similarity:     0.55,
		TermOverlap:    0.20,
		RankPosition:   0.10,
		CollectionPrio: 0.05,
		ContentLength:  0.05,
		Freshness:      0.05,
	}
}

// Hit is one ranked result returned to the caller. Score is only
// comparable against other Hits in the same response (spec §4.11
// contract).
type Hit struct {
	ID         string
	Collection string
	Score      float64
	Payload    map[string]any
	Dense      []float32

	SparseRank int
	DenseRank  int
	InBothLists bool
}

// Result is the pipeline's final output.
type Result struct {
	Hits  []Hit
	Stats Stats
}

// Stats reports how many candidates survived each stage, useful for
// debugging why a query returned fewer results than requested.
type Stats struct {
	ExpandedQueries int
	SparseCandidates int
	DenseCandidates  int
	FusedCandidates  int
	AfterFilter      int
	AfterRerank      int
	AfterMMR         int
	AfterDedup       int
}

func freshnessScore(modifiedAt time.Time, now time.Time) float64 {
	if modifiedAt.IsZero() {
		return 0
	}
	age := now.Sub(modifiedAt)
	if age < 0 {
		age = 0
	}
	const halfLife = 30 * 24 * time.Hour
	// exponential decay halving every halfLife; clamp to [0,1]
	decay := 1.0
	for age > 0 {
		if age < halfLife {
			decay *= 1 - 0.5*float64(age)/float64(halfLife)
			break
		}
		decay *= 0.5
		age -= halfLife
	}
	if decay < 0 {
		decay = 0
	}
	return decay
}
