package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/hnsw"
	"github.com/vectorizer-project/vectorizer/internal/quant"
	"github.com/vectorizer-project/vectorizer/internal/sparse"
	"github.com/vectorizer-project/vectorizer/internal/vector"
	"github.com/vectorizer-project/vectorizer/internal/verrors"
)

// quantTrainSampleSize bounds how many inserts a quantized collection
// buffers, at full precision, before its codec trains (spec §4.2: product
// quantization's k-means and scalar's per-dimension range both need a
// real sample, not a single vector). Every insert up to the bound still
// satisfies the round-trip law trivially (an exact value is always within
// any error bound); once the bound is hit every buffered slot is
// corrected in place, in both the dense store and the HNSW graph, so no
// slot outlives the bootstrap window at a precision the codec was never
// meant to keep.
const quantTrainSampleSize = 8

// quantBufEntry is one not-yet-quantized insert awaiting training.
type quantBufEntry struct {
	idx   vector.Index
	dense []float32
}

// WALAppender is the narrow interface a Collection needs from C9: append
// one mutation record before it is applied in memory, and get back the
// LSN it was durably assigned. Collection depends on this interface, not
// on the wal package directly, so it can be built and tested before C9
// exists; internal/wal.WAL satisfies it structurally.
type WALAppender interface {
	AppendInsert(collection, id string, dense []float32, sparse *SparseVector, payload map[string]any) (uint64, error)
	AppendUpdate(collection, id string, dense []float32, payload map[string]any) (uint64, error)
	AppendDelete(collection, id string) (uint64, error)
}

// noopWAL is used when a Collection is constructed without a WAL
// (standalone tests, or pre-C9 wiring); it assigns no real durability.
type noopWAL struct{}

func (noopWAL) AppendInsert(string, string, []float32, *SparseVector, map[string]any) (uint64, error) {
	return 0, nil
}
func (noopWAL) AppendUpdate(string, string, []float32, map[string]any) (uint64, error) {
	return 0, nil
}
func (noopWAL) AppendDelete(string, string) (uint64, error) { return 0, nil }

// Collection is the bundle of dense store, sparse index and HNSW graph
// that forms the unit of locking for one named vector collection (spec
// §4.6). Writes are serialized by mu; reads take the read lock, except
// for the HNSW/sparse searches which have their own internal locking and
// so only need the id_map held stable for the duration of the call.
type Collection struct {
	mu sync.RWMutex

	cfg   Config
	wal   WALAppender
	dense vector.Store
	hnsw  *hnsw.Graph
	sp    sparse.Index // nil if this collection has no sparse index configured

	idMap    map[string]vector.Index // external id -> internal index
	revIDMap map[vector.Index]string // internal index -> external id

	quantizer    quant.Codec
	quantTrained bool
	quantBuf     []quantBufEntry

	tombstones int
	lastSaved  uint64
	modifiedAt time.Time
}

// Option configures optional Collection dependencies at construction time.
type Option func(*Collection)

// WithWAL injects the write-ahead log appender. Without it, a Collection
// runs with durability disabled (useful for tests and for C6 standing up
// before C9 exists).
func WithWAL(w WALAppender) Option {
	return func(c *Collection) { c.wal = w }
}

// WithSparseIndex attaches a C4 sparse retriever to the collection.
func WithSparseIndex(idx sparse.Index) Option {
	return func(c *Collection) { c.sp = idx }
}

// WithCodebook injects an already-trained C2 codec, restoring it from the
// archive's codebook section (spec §4.8) instead of letting the
// collection buffer a fresh training sample after a restart. Used only by
// Restore.
func WithCodebook(codec quant.Codec) Option {
	return func(c *Collection) {
		c.quantizer = codec
		c.quantTrained = true
	}
}

// New builds a Collection over an already-constructed dense store and
// HNSW graph. Both must already be configured for cfg.Dim/cfg.Metric.
func New(cfg Config, dense vector.Store, graph *hnsw.Graph, opts ...Option) *Collection {
	c := &Collection{
		cfg:        cfg,
		wal:        noopWAL{},
		dense:      dense,
		hnsw:       graph,
		idMap:      make(map[string]vector.Index),
		revIDMap:   make(map[vector.Index]string),
		modifiedAt: time.Now(),
	}

	codec, err := quant.NewCodec(cfg.Quantization, cfg.Dim)
	if err != nil {
		slog.Warn("unknown quantization kind, collection runs unquantized",
			slog.String("collection", cfg.Name), slog.String("kind", string(cfg.Quantization)), slog.String("error", err.Error()))
		codec, _ = quant.NewCodec(config.QuantizationNone, cfg.Dim)
	}
	c.quantizer = codec
	c.quantTrained = cfg.Quantization == "" || cfg.Quantization == config.QuantizationNone

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats reports the collection's current accounting, satisfying the
// invariant hnsw_index.node_count == vector_count + tombstones.
func (c *Collection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		VectorCount:  len(c.idMap),
		Tombstones:   c.tombstones,
		LastModified: c.modifiedAt,
		LastSavedLSN: c.lastSaved,
	}
}

// Config returns the configuration this collection was built with, so a
// caller that only holds a *Collection (e.g. after bootstrap.Load) can
// still register it with Store.Adopt.
func (c *Collection) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Insert validates and appends one vector, wiring it into the dense
// store, the HNSW graph and, if configured, the sparse index. Dimension
// mismatch is always an error; insert never truncates or pads.
func (c *Collection) Insert(ctx context.Context, v Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(ctx, v)
}

// ApplyInsert re-applies an already-durable insert during WAL-tail replay
// after a Restore: it runs the same validation and wiring as Insert but
// never appends a new WAL record, since this one is already on disk.
func (c *Collection) ApplyInsert(ctx context.Context, v Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLockedWAL(ctx, v, false)
}

func (c *Collection) insertLocked(ctx context.Context, v Vector) error {
	return c.insertLockedWAL(ctx, v, true)
}

func (c *Collection) insertLockedWAL(ctx context.Context, v Vector, logWAL bool) error {
	if len(v.Dense) != c.cfg.Dim {
		return vector.ErrDimensionMismatch{Expected: c.cfg.Dim, Got: len(v.Dense)}.AsVectorizerError()
	}
	if _, exists := c.idMap[v.ID]; exists {
		return verrors.New(verrors.ErrCodeDuplicateID,
			fmt.Sprintf("id %q already exists in collection %q", v.ID, c.cfg.Name), nil)
	}

	var sparseForStore *vector.SparseVector
	if v.Sparse != nil {
		sparseForStore = &vector.SparseVector{Indices: v.Sparse.Indices, Values: v.Sparse.Values}
	}

	if logWAL {
		if _, err := c.wal.AppendInsert(c.cfg.Name, v.ID, v.Dense, v.Sparse, v.Payload); err != nil {
			return err
		}
	}

	idx, err := c.dense.Append(ctx, v.Dense, sparseForStore, vector.Payload(v.Payload))
	if err != nil {
		return err
	}

	hnswDense, err := c.applyQuantization(ctx, idx, v.Dense)
	if err != nil {
		_ = c.dense.MarkDeleted(ctx, idx)
		return err
	}

	if err := c.hnsw.Insert(uint32(idx), hnswDense); err != nil {
		// Dense store already grew; roll the slot forward as tombstoned so
		// id_map/node_count bookkeeping never diverges.
		_ = c.dense.MarkDeleted(ctx, idx)
		return err
	}

	if c.sp != nil {
		if text, ok := sparseableText(v.Payload); ok {
			if err := c.sp.Add(ctx, uint32(idx), text); err != nil {
				return err
			}
		}
	}

	c.idMap[v.ID] = idx
	c.revIDMap[idx] = v.ID
	c.modifiedAt = time.Now()
	return nil
}

// BatchInsert inserts items at-most-once each, returning a per-item
// status so a partial failure never aborts the whole batch.
func (c *Collection) BatchInsert(ctx context.Context, items []Vector) []ItemStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]ItemStatus, len(items))
	for i, item := range items {
		err := c.insertLocked(ctx, item)
		statuses[i] = ItemStatus{ID: item.ID, Err: err}
	}
	return statuses
}

// Update applies a patch to an existing vector. A nil Dense leaves the
// stored dense vector untouched (payload-only update, the cheap path); a
// non-nil Dense replaces it and re-links the HNSW neighbor lists for that
// node by re-inserting it under its existing internal index.
func (c *Collection) Update(ctx context.Context, id string, dense []float32, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLockedWAL(ctx, id, dense, payload, true)
}

// ApplyUpdate re-applies an already-durable update during WAL-tail replay
// after a Restore, without appending a new WAL record.
func (c *Collection) ApplyUpdate(ctx context.Context, id string, dense []float32, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLockedWAL(ctx, id, dense, payload, false)
}

func (c *Collection) updateLockedWAL(ctx context.Context, id string, dense []float32, payload map[string]any, logWAL bool) error {
	idx, ok := c.idMap[id]
	if !ok {
		return notFound(c.cfg.Name, id)
	}

	if dense != nil && len(dense) != c.cfg.Dim {
		return vector.ErrDimensionMismatch{Expected: c.cfg.Dim, Got: len(dense)}.AsVectorizerError()
	}

	if logWAL {
		if _, err := c.wal.AppendUpdate(c.cfg.Name, id, dense, payload); err != nil {
			return err
		}
	}

	if payload != nil {
		if err := c.dense.ReplacePayload(ctx, idx, vector.Payload(payload)); err != nil {
			return err
		}
	}

	if dense != nil {
		if err := c.dense.ReplaceDense(ctx, idx, dense); err != nil {
			return err
		}
		hnswDense, err := c.applyQuantization(ctx, idx, dense)
		if err != nil {
			return err
		}
		// HNSW has no in-place re-link primitive: tombstone the old graph
		// node and re-insert the same internal index with its new vector.
		if err := c.hnsw.MarkDeleted(uint32(idx)); err != nil {
			return err
		}
		if err := c.hnsw.Insert(uint32(idx), hnswDense); err != nil {
			return err
		}
	}

	c.modifiedAt = time.Now()
	return nil
}

// applyQuantization encodes and decodes dense through the collection's C2
// codec so the dense store and HNSW graph never hold more precision than
// the configured codec can reproduce on a later Get (spec §8's round-trip
// law). Unquantized collections return dense unchanged.
//
// A codec that needs training data (scalar, product) cannot quantize
// anything until it has seen a real sample, so the first
// quantTrainSampleSize inserts are buffered at full precision — which
// trivially satisfies the round-trip law, since an exact value is always
// within any nonzero error bound. Once the buffer fills, the codec trains
// on it and every buffered slot is corrected retroactively: the dense
// store is rewritten in place and the HNSW graph node is torn down and
// re-inserted under its existing index, except for idx itself, whose
// quantized vector is returned to the caller to insert once.
func (c *Collection) applyQuantization(ctx context.Context, idx vector.Index, dense []float32) ([]float32, error) {
	if c.quantizer == nil || c.cfg.Quantization == "" || c.cfg.Quantization == config.QuantizationNone {
		return dense, nil
	}

	if c.quantTrained {
		q, err := c.quantizeRoundTrip(dense)
		if err != nil {
			return nil, err
		}
		if err := c.dense.ReplaceDense(ctx, idx, q); err != nil {
			return nil, err
		}
		return q, nil
	}

	c.quantBuf = append(c.quantBuf, quantBufEntry{idx: idx, dense: dense})
	if len(c.quantBuf) < quantTrainSampleSize {
		return dense, nil
	}

	samples := make([][]float32, len(c.quantBuf))
	for i, e := range c.quantBuf {
		samples[i] = e.dense
	}
	if err := c.quantizer.Train(samples); err != nil {
		slog.Warn("quantization training failed, collection stays unquantized",
			slog.String("collection", c.cfg.Name), slog.String("kind", string(c.cfg.Quantization)), slog.String("error", err.Error()))
		c.quantTrained = true
		c.quantBuf = nil
		return dense, nil
	}
	c.quantTrained = true

	var current []float32
	buffered := c.quantBuf
	c.quantBuf = nil
	for _, e := range buffered {
		q, err := c.quantizeRoundTrip(e.dense)
		if err != nil {
			return nil, err
		}
		if err := c.dense.ReplaceDense(ctx, e.idx, q); err != nil {
			return nil, err
		}
		if e.idx == idx {
			current = q
			continue
		}
		if err := c.hnsw.MarkDeleted(uint32(e.idx)); err != nil {
			return nil, err
		}
		if err := c.hnsw.Insert(uint32(e.idx), q); err != nil {
			return nil, err
		}
	}
	return current, nil
}

// quantizeRoundTrip encodes dense with the collection's codec and decodes
// it straight back, the lossy value both the dense store and HNSW graph
// are expected to hold for a quantized collection.
func (c *Collection) quantizeRoundTrip(dense []float32) ([]float32, error) {
	encoded, err := c.quantizer.Encode(dense)
	if err != nil {
		return nil, fmt.Errorf("quant: encode: %w", err)
	}
	decoded, err := c.quantizer.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("quant: decode: %w", err)
	}
	return decoded, nil
}

// BatchUpdate applies Update to each item, at-most-once per id, with a
// per-item status on partial failure.
type UpdatePatch struct {
	ID      string
	Dense   []float32
	Payload map[string]any
}

func (c *Collection) BatchUpdate(ctx context.Context, patches []UpdatePatch) []ItemStatus {
	statuses := make([]ItemStatus, len(patches))
	for i, p := range patches {
		statuses[i] = ItemStatus{ID: p.ID, Err: c.Update(ctx, p.ID, p.Dense, p.Payload)}
	}
	return statuses
}

// Delete tombstones id in both the dense store and the HNSW graph, and
// removes it from the sparse index if configured.
func (c *Collection) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(ctx, id)
}

// ApplyDelete re-applies an already-durable delete during WAL-tail replay
// after a Restore, without appending a new WAL record.
func (c *Collection) ApplyDelete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLockedWAL(ctx, id, false)
}

func (c *Collection) deleteLocked(ctx context.Context, id string) error {
	return c.deleteLockedWAL(ctx, id, true)
}

func (c *Collection) deleteLockedWAL(ctx context.Context, id string, logWAL bool) error {
	idx, ok := c.idMap[id]
	if !ok {
		return notFound(c.cfg.Name, id)
	}

	if logWAL {
		if _, err := c.wal.AppendDelete(c.cfg.Name, id); err != nil {
			return err
		}
	}

	if err := c.dense.MarkDeleted(ctx, idx); err != nil {
		return err
	}
	if err := c.hnsw.MarkDeleted(uint32(idx)); err != nil {
		return err
	}
	if c.sp != nil {
		if err := c.sp.Remove(ctx, uint32(idx)); err != nil {
			return err
		}
	}

	delete(c.idMap, id)
	delete(c.revIDMap, idx)
	c.tombstones++
	c.modifiedAt = time.Now()
	return nil
}

// BatchDelete deletes each id at-most-once, with a per-item status.
func (c *Collection) BatchDelete(ctx context.Context, ids []string) []ItemStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]ItemStatus, len(ids))
	for i, id := range ids {
		statuses[i] = ItemStatus{ID: id, Err: c.deleteLocked(ctx, id)}
	}
	return statuses
}

// Get returns the vector for id, or a NotFound error if it was never
// inserted or has since been deleted.
func (c *Collection) Get(ctx context.Context, id string, includeDense, includePayload bool) (*Vector, error) {
	c.mu.RLock()
	idx, ok := c.idMap[id]
	c.mu.RUnlock()
	if !ok {
		return nil, notFound(c.cfg.Name, id)
	}

	entry, err := c.dense.Get(ctx, idx)
	if err != nil {
		return nil, err
	}

	out := &Vector{ID: id}
	if includeDense {
		out.Dense = entry.Dense
	}
	if includePayload {
		out.Payload = entry.Payload
	}
	if entry.Sparse != nil {
		out.Sparse = &SparseVector{Indices: entry.Sparse.Indices, Values: entry.Sparse.Values}
	}
	return out, nil
}

// List performs an O(n) scan over live vectors in insertion order,
// applying an optional payload filter, for UI/debugging use rather than
// indexed retrieval.
func (c *Collection) List(ctx context.Context, limit, offset int, filter *Filter) ([]Vector, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Vector
	skipped := 0
	err := c.dense.IterLive(ctx, func(e *vector.Entry) bool {
		if filter != nil && !filter.Matches(e.Payload) {
			return true
		}
		if skipped < offset {
			skipped++
			return true
		}
		id := c.revIDMap[e.Index]
		out = append(out, Vector{ID: id, Dense: e.Dense, Payload: e.Payload})
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

// SearchDense runs an ANN search over the HNSW graph, optionally
// restricted by a payload filter evaluated during traversal so a
// restrictive filter never produces spuriously empty results.
func (c *Collection) SearchDense(ctx context.Context, query []float32, k int, efSearch int, filter *Filter) ([]ScoredResult, error) {
	if len(query) != c.cfg.Dim {
		return nil, vector.ErrDimensionMismatch{Expected: c.cfg.Dim, Got: len(query)}.AsVectorizerError()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var hnswFilter hnsw.Filter
	if filter != nil {
		hnswFilter = func(internalIdx uint32) bool {
			entry, err := c.dense.Get(ctx, vector.Index(internalIdx))
			if err != nil {
				return false
			}
			return filter.Matches(entry.Payload)
		}
	}

	if efSearch <= 0 {
		efSearch = c.cfg.HNSW.EfSearch
	}

	results, err := c.hnsw.Search(query, k, efSearch, hnswFilter)
	if err != nil {
		if err == hnsw.ErrIndexNotBuilt {
			return nil, nil
		}
		return nil, err
	}

	out := make([]ScoredResult, 0, len(results))
	for _, r := range results {
		id, ok := c.revIDMap[vector.Index(r.Index)]
		if !ok {
			continue
		}
		out = append(out, ScoredResult{ID: id, Score: r.Score})
	}
	return out, nil
}

// SearchSparse runs a BM25 lookup over the configured sparse index,
// optionally restricted by a payload filter applied as a post-filter over
// the ranked candidates (the sparse backends have no traversal hook to
// push the filter into, unlike HNSW).
func (c *Collection) SearchSparse(ctx context.Context, queryText string, k int, filter *Filter) ([]ScoredResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.sp == nil {
		return nil, nil
	}

	fetch := k
	if filter != nil && fetch > 0 {
		fetch *= 4 // overfetch so post-filtering still returns up to k hits
	}

	results, err := c.sp.Query(ctx, queryText, fetch)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredResult, 0, len(results))
	for _, r := range results {
		id, ok := c.revIDMap[vector.Index(r.DocID)]
		if !ok {
			continue
		}
		if filter != nil {
			entry, err := c.dense.Get(ctx, vector.Index(r.DocID))
			if err != nil || !filter.Matches(entry.Payload) {
				continue
			}
		}
		out = append(out, ScoredResult{ID: id, Score: float32(r.Score)})
		if k > 0 && len(out) >= k {
			break
		}
	}
	return out, nil
}

// Close releases the dense store and sparse index's held resources.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if err := c.dense.Close(); err != nil {
		firstErr = err
	}
	if c.sp != nil {
		if err := c.sp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func notFound(collection, id string) *verrors.VectorizerError {
	return verrors.New(verrors.ErrCodeVectorNotFound,
		fmt.Sprintf("vector %q not found in collection %q", id, collection), nil)
}

// sparseableText extracts the "content" field from a payload, if present
// and a string, for feeding the BM25 sparse index.
func sparseableText(payload map[string]any) (string, bool) {
	if payload == nil {
		return "", false
	}
	v, ok := payload["content"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
