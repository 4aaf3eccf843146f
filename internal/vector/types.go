// Package vector provides per-collection dense vector and payload storage,
// in two interchangeable backends: an in-RAM backend and a memory-mapped
// backend. Both satisfy the Store contract used by internal/collection.
package vector

import (
	"context"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// Index identifies a slot in a Store. Indexes are stable for the lifetime
// of a collection: append never reorders them and no code renumbers them.
type Index uint32

// SparseVector is a sparse term-weight vector (e.g. BM25 postings for a
// document), stored alongside the dense vector at the same index.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Payload is an arbitrary JSON-like metadata tree attached to a vector.
// Values are restricted to JSON-representable types (string, float64,
// bool, nil, []any, map[string]any) so that canonical-form serialization
// (sorted keys) is well-defined.
type Payload map[string]any

// Entry is the full record returned by Get/iteration: dense vector,
// optional sparse vector, optional payload.
type Entry struct {
	Index   Index
	Dense   []float32
	Sparse  *SparseVector
	Payload Payload
}

// Stats reports storage-level byte and slot accounting. Neither backend
// fills in PayloadApprox.
type Stats struct {
	LiveCount   int
	Tombstoned  int
	TotalSlots  int
	DenseBytes  int64
	PayloadApprox int64
}

// Store is the C1 contract: a per-collection dense vector + payload
// backend. Deletes are lazy (tombstone bit); tombstoned slots are never
// reclaimed, so indexes stay stable.
type Store interface {
	// Append grows the store with a new entry, returning its stable index.
	// Never reorders existing entries.
	Append(ctx context.Context, dense []float32, sparse *SparseVector, payload Payload) (Index, error)

	// Get returns the entry at idx. Returns ErrTombstoned if the slot was
	// deleted, or ErrOutOfRange if idx was never appended.
	Get(ctx context.Context, idx Index) (*Entry, error)

	// ReplaceDense overwrites the dense vector at idx. Fails with
	// ErrDimensionMismatch if len(dense) != Dim().
	ReplaceDense(ctx context.Context, idx Index, dense []float32) error

	// ReplacePayload overwrites the payload at idx.
	ReplacePayload(ctx context.Context, idx Index, payload Payload) error

	// MarkDeleted flips the tombstone bit for idx. Idempotent.
	MarkDeleted(ctx context.Context, idx Index) error

	// IterLive calls fn for every live (non-tombstoned) entry in index
	// order. Stops early if fn returns false.
	IterLive(ctx context.Context, fn func(*Entry) bool) error

	// Dim returns the fixed dimensionality of vectors in this store.
	Dim() int

	// Metric returns the configured similarity metric.
	Metric() config.Metric

	// Stats reports current storage accounting.
	Stats() Stats

	// Close releases any held resources (file handles, mmap regions).
	Close() error
}
