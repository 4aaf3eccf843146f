// Package store implements C7: the process-wide registry of collections,
// the data-dir advisory lock, and the empty-collection cleanup policy.
package store

import (
	"time"

	"github.com/vectorizer-project/vectorizer/internal/collection"
)

// Info is the metadata snapshot returned by List, cheap enough to compute
// without holding a collection's own lock for long.
type Info struct {
	Name         string
	Dim          int
	Metric       string
	VectorCount  int
	Tombstones   int
	LastModified time.Time
}

// CleanupReport is the result of CleanupEmpty.
type CleanupReport struct {
	Deleted    []string
	BytesFreed int64
}

// Builder constructs a *collection.Collection for a freshly declared
// config. The store depends on this function rather than directly on the
// dense-store/HNSW/sparse constructors, so C7 can be exercised without
// pulling in a concrete storage-backend choice; cmd/vectorizer supplies
// the real builder that wires C1/C3/C4 per cfg.Storage/cfg.Quantization.
type Builder func(cfg collection.Config) (*collection.Collection, error)
