// Package sparse implements the C4 vocabulary-based keyword retriever:
// tokenization, df/doc_count/avg_doc_len bookkeeping, and BM25 scoring,
// behind three interchangeable backends (native, bleve, sqlite FTS5).
package sparse

import (
	"context"
)

// Config tunes tokenization and BM25 scoring.
type Config struct {
	K1               float64
	B                float64
	StopWords        []string
	MinTokenLength   int
	TokenizerVersion int
}

// DefaultConfig returns the spec's default BM25 parameters.
func DefaultConfig() Config {
	return Config{
		K1:               1.5,
		B:                0.75,
		StopWords:        DefaultStopWords,
		MinTokenLength:   2,
		TokenizerVersion: 1,
	}
}

// Term is a stable u32 index assigned to a vocabulary entry the first
// time it is observed; it never changes for the lifetime of the
// collection's tokenizer_version.
type Term uint32

// SparseVector is a BM25-style embedding: term indices paired with
// their weights, suitable for storage alongside a dense vector.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Result is one ranked keyword hit.
type Result struct {
	DocID uint32
	Score float64
}

// Stats reports index-level accounting.
type Stats struct {
	DocCount     int
	TermCount    int
	AvgDocLength float64
}

// Index is the keyword retriever contract shared by all backends.
type Index interface {
	// Add tokenizes text, updates df/doc_count/avg_doc_len, and
	// associates the resulting postings with docID. Re-adding an
	// existing docID replaces its prior postings.
	Add(ctx context.Context, docID uint32, text string) error

	// Remove drops docID's postings from the index.
	Remove(ctx context.Context, docID uint32) error

	// EmbedQuery tokenizes text into a sparse vector over the
	// persisted vocabulary, without mutating df/doc_count.
	EmbedQuery(text string) SparseVector

	// Query returns the top-k document ids by BM25 score for text.
	Query(ctx context.Context, text string, k int) ([]Result, error)

	Stats() Stats
	Save(path string) error
	Load(path string) error
	Close() error
}
