package collection

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vectorizer-project/vectorizer/internal/archive"
	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/hnsw"
	"github.com/vectorizer-project/vectorizer/internal/quant"
	"github.com/vectorizer-project/vectorizer/internal/sparse"
	"github.com/vectorizer-project/vectorizer/internal/vector"
)

// denseSlot is one dense-store slot's persisted state, in slot-index
// order including tombstoned slots, so a Restore can re-append every
// slot (live or dead) through the same Store.Append sequence that
// produced the original indices — the only way to keep the saved HNSW
// graph's node numbering valid, since Store deletes are lazy and never
// renumber surviving slots.
type denseSlot struct {
	Index  vector.Index
	Live   bool
	ID     string // empty for a tombstoned slot
	Dense  []float32
	Sparse *vector.SparseVector
}

type payloadSlot struct {
	Index   vector.Index
	Payload map[string]any
}

// meta is the collection-level bookkeeping gob-encoded into
// archive.SectionIDIndex: the config needed to rebuild the
// dense/HNSW/sparse backends on restore, the tombstone count, and the LSN
// sealed as of this snapshot. The per-slot external ids are not stored
// here; they travel in the dense section's denseSlot entries.
type meta struct {
	Cfg        Config
	Tombstones int
	SealedLSN  uint64
}

// Sections captures this collection's current in-memory state as the
// named archive sections a `.vecdb` container holds (spec §4.8). sealedLSN
// should be read from the owning WAL's NextLSN()-1 before this call
// returns, so that any record with LSN <= sealedLSN is guaranteed to
// already be reflected here (a write only advances nextLSN after both its
// WAL record and its in-memory effect are applied under the same lock).
func (c *Collection) Sections(ctx context.Context, sealedLSN uint64) (map[string][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalSlots := c.dense.Stats().TotalSlots

	live := make(map[vector.Index]*vector.Entry, len(c.idMap))
	if err := c.dense.IterLive(ctx, func(e *vector.Entry) bool {
		live[e.Index] = e
		return true
	}); err != nil {
		return nil, fmt.Errorf("collection: seal %q: %w", c.cfg.Name, err)
	}

	denseSlots := make([]denseSlot, totalSlots)
	payloadSlots := make([]payloadSlot, totalSlots)
	for i := 0; i < totalSlots; i++ {
		idx := vector.Index(i)
		if e, ok := live[idx]; ok {
			denseSlots[i] = denseSlot{Index: idx, Live: true, ID: c.revIDMap[idx], Dense: e.Dense, Sparse: e.Sparse}
			payloadSlots[i] = payloadSlot{Index: idx, Payload: e.Payload}
		} else {
			denseSlots[i] = denseSlot{Index: idx, Live: false}
		}
	}

	denseBlob, err := gobEncode(denseSlots)
	if err != nil {
		return nil, fmt.Errorf("collection: encode dense slots: %w", err)
	}
	payloadBlob, err := gobEncode(payloadSlots)
	if err != nil {
		return nil, fmt.Errorf("collection: encode payload slots: %w", err)
	}

	var graphBuf bytes.Buffer
	if err := c.hnsw.EncodeTo(&graphBuf); err != nil {
		return nil, fmt.Errorf("collection: encode hnsw graph: %w", err)
	}

	metaBlob, err := gobEncode(meta{Cfg: c.cfg, Tombstones: c.tombstones, SealedLSN: sealedLSN})
	if err != nil {
		return nil, fmt.Errorf("collection: encode metadata: %w", err)
	}

	sections := map[string][]byte{
		archive.SectionDenseBlob:   denseBlob,
		archive.SectionPayloadBlob: payloadBlob,
		archive.SectionHNSWGraph:   graphBuf.Bytes(),
		archive.SectionIDIndex:     metaBlob,
	}

	if c.sp != nil {
		spBlob, tokBlob, err := sealSparseIndex(c.sp)
		if err != nil {
			return nil, fmt.Errorf("collection: seal sparse index: %w", err)
		}
		sections[archive.SectionSparseBlob] = spBlob
		sections[archive.SectionTokenizerState] = tokBlob
	}

	if c.quantTrained && c.cfg.Quantization != "" && c.cfg.Quantization != config.QuantizationNone {
		cb, err := quant.MarshalCodebook(c.quantizer)
		if err != nil {
			return nil, fmt.Errorf("collection: marshal codebook: %w", err)
		}
		if cb != nil {
			sections[archive.SectionCodebook] = cb
		}
	}

	return sections, nil
}

// SealedConfig decodes just the config/metadata section of an archive,
// without touching the (possibly large) dense/graph sections, so a
// bootstrap loader can pick the right dense/sparse backends before doing
// the full Restore.
func SealedConfig(sections map[string][]byte) (Config, uint64, error) {
	var m meta
	if err := gobDecode(sections[archive.SectionIDIndex], &m); err != nil {
		return Config{}, 0, fmt.Errorf("collection: decode metadata: %w", err)
	}
	return m.Cfg, m.SealedLSN, nil
}

// Restore rebuilds a Collection from sections produced by Sections,
// re-appending every dense-store slot (live or tombstoned) in its
// original order so the decoded HNSW graph's node indices line up with
// the rebuilt dense store, then decoding the sparse index in place if the
// collection has one configured. It returns the sealedLSN recorded at
// seal time, so the caller knows where to resume WAL-tail replay.
func Restore(ctx context.Context, dense vector.Store, sections map[string][]byte, opts ...Option) (*Collection, uint64, error) {
	var m meta
	if err := gobDecode(sections[archive.SectionIDIndex], &m); err != nil {
		return nil, 0, fmt.Errorf("collection: decode metadata: %w", err)
	}

	graph, err := hnsw.DecodeGraphFrom(bytes.NewReader(sections[archive.SectionHNSWGraph]))
	if err != nil {
		return nil, 0, fmt.Errorf("collection: decode hnsw graph: %w", err)
	}

	var denseSlots []denseSlot
	if err := gobDecode(sections[archive.SectionDenseBlob], &denseSlots); err != nil {
		return nil, 0, fmt.Errorf("collection: decode dense slots: %w", err)
	}
	var payloadSlots []payloadSlot
	if err := gobDecode(sections[archive.SectionPayloadBlob], &payloadSlots); err != nil {
		return nil, 0, fmt.Errorf("collection: decode payload slots: %w", err)
	}
	payloadByIndex := make(map[vector.Index]map[string]any, len(payloadSlots))
	for _, p := range payloadSlots {
		payloadByIndex[p.Index] = p.Payload
	}

	// A codebook section is only present once the collection's codec
	// finished training (Sections only writes one then). Without it, New
	// leaves the collection untrained and it re-enters the same buffer-
	// then-train bootstrap on the next inserts/WAL-tail replay.
	if cb, ok := sections[archive.SectionCodebook]; ok && len(cb) > 0 {
		codec, err := quant.UnmarshalCodebook(m.Cfg.Quantization, m.Cfg.Dim, cb)
		if err != nil {
			return nil, 0, fmt.Errorf("collection: restore %q codebook: %w", m.Cfg.Name, err)
		}
		opts = append(opts, WithCodebook(codec))
	}

	c := New(m.Cfg, dense, graph, opts...)
	c.tombstones = m.Tombstones

	zero := make([]float32, m.Cfg.Dim)
	for _, slot := range denseSlots {
		denseVec := slot.Dense
		if !slot.Live {
			denseVec = zero
		}
		idx, err := dense.Append(ctx, denseVec, slot.Sparse, vector.Payload(payloadByIndex[slot.Index]))
		if err != nil {
			return nil, 0, fmt.Errorf("collection: restore %q: %w", m.Cfg.Name, err)
		}
		if idx != slot.Index {
			return nil, 0, fmt.Errorf("collection: restore %q: slot index mismatch (want %d got %d)",
				m.Cfg.Name, slot.Index, idx)
		}
		if slot.Live {
			c.idMap[slot.ID] = idx
			c.revIDMap[idx] = slot.ID
		} else if err := dense.MarkDeleted(ctx, idx); err != nil {
			return nil, 0, fmt.Errorf("collection: restore %q: mark tombstone: %w", m.Cfg.Name, err)
		}
	}

	if c.sp != nil {
		if err := restoreSparseIndex(c.sp, sections[archive.SectionSparseBlob], sections[archive.SectionTokenizerState]); err != nil {
			return nil, 0, fmt.Errorf("collection: restore %q sparse index: %w", m.Cfg.Name, err)
		}
	}

	return c, m.SealedLSN, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// sealSparseIndex round-trips a sparse.Index through its path-based
// Save so Sections can embed the result as archive bytes regardless of
// backend: native writes its postings gob plus a vocab file, bleve/sqlite
// write only the parallel vocab file (their own on-disk store persists
// itself as documents are indexed).
func sealSparseIndex(sp sparse.Index) (blob, vocab []byte, err error) {
	dir, err := os.MkdirTemp("", "vectorizer-sparse-seal-*")
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "index")
	if err := sp.Save(path); err != nil {
		return nil, nil, err
	}

	blob, _ = os.ReadFile(path) // absent for bleve/sqlite, and that's fine
	vocab, err = os.ReadFile(path + ".vocab")
	if err != nil {
		return nil, nil, fmt.Errorf("read sparse vocab: %w", err)
	}
	return blob, vocab, nil
}

func restoreSparseIndex(sp sparse.Index, blob, vocab []byte) error {
	dir, err := os.MkdirTemp("", "vectorizer-sparse-restore-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "index")
	if len(blob) > 0 {
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path+".vocab", vocab, 0o644); err != nil {
		return err
	}
	return sp.Load(path)
}
