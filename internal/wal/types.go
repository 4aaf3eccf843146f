// Package wal implements C9: the per-collection write-ahead log and the
// auto-save scheduler that seals it into a compact archive.
package wal

import (
	"github.com/google/uuid"

	"github.com/vectorizer-project/vectorizer/internal/collection"
)

// NewSnapshotID generates the random identifier a Checkpoint record
// carries. It names no directory: the seal step writes only the archive
// file, and snapshot directories are named by timestamp.
func NewSnapshotID() string {
	return uuid.NewString()
}

// Kind identifies the mutation a Record carries (spec §3 WALRecord).
type Kind byte

const (
	KindInsert           Kind = 1
	KindUpdate           Kind = 2
	KindDelete           Kind = 3
	KindCreateCollection Kind = 4
	KindDropCollection   Kind = 5
	KindCheckpoint       Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindCreateCollection:
		return "create_collection"
	case KindDropCollection:
		return "drop_collection"
	case KindCheckpoint:
		return "checkpoint"
	default:
		return "unknown"
	}
}

// Record is one decoded WAL entry, as delivered to a Replay callback.
type Record struct {
	LSN        uint64
	Kind       Kind
	Collection string
	ID         string
	Dense      []float32
	Sparse     *collection.SparseVector
	Payload    map[string]any

	// SnapshotID and SealedLSN are only populated on Checkpoint records.
	SnapshotID string
	SealedLSN  uint64
}

// body is the gob-encoded payload wrapped by the [len][kind][lsn]...[crc]
// envelope; it omits LSN/Kind since those live in the envelope itself.
type body struct {
	Collection string
	ID         string
	Dense      []float32
	Sparse     *collection.SparseVector
	Payload    map[string]any
	SnapshotID string
	SealedLSN  uint64
}
