// Package archive implements C8: the compact single-file `.vecdb`
// container, timed snapshots with hardlink-or-copy retention, and
// migration of the legacy per-section on-disk layout.
package archive

// magic is the fixed 6-byte header identifying a `.vecdb` file.
var magic = [6]byte{'V', 'E', 'C', 'D', 'B', 0}

// FormatVersion is the current `.vecdb` container format version.
const FormatVersion uint16 = 1

// Known section names (spec §4.8). Not every collection populates every
// section: Codebook is only present when quantization is enabled, and
// TokenizerState/SparseBlob only when a sparse index is configured.
const (
	SectionDenseBlob      = "dense_blob"
	SectionPayloadBlob    = "payload_blob"
	SectionSparseBlob     = "sparse_blob"
	SectionIDIndex        = "id_index"
	SectionHNSWGraph      = "hnsw_graph"
	SectionCodebook       = "codebook"
	SectionTokenizerState = "tokenizer_state"
)
