package vector

import (
	"context"
	"sync"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// slot holds one entry's state inside the in-RAM backend.
type slot struct {
	dense     []float32
	sparse    *SparseVector
	payload   Payload
	tombstone bool
}

// MemoryStore is an in-RAM Store backend: a flat, append-only []slot.
// Chosen when a collection's storage is configured as "memory" — fastest
// path, no durability of its own (the WAL and snapshot layers provide
// that).
type MemoryStore struct {
	mu     sync.RWMutex
	slots  []slot
	dim    int
	metric config.Metric
	closed bool
}

// NewMemoryStore creates an empty in-RAM store for vectors of the given
// dimensionality and metric.
func NewMemoryStore(dim int, metric config.Metric) *MemoryStore {
	return &MemoryStore{
		slots:  make([]slot, 0, 1024),
		dim:    dim,
		metric: metric,
	}
}

func (s *MemoryStore) Dim() int                 { return s.dim }
func (s *MemoryStore) Metric() config.Metric    { return s.metric }

func (s *MemoryStore) Append(_ context.Context, dense []float32, sparse *SparseVector, payload Payload) (Index, error) {
	if len(dense) != s.dim {
		return 0, ErrDimensionMismatch{Expected: s.dim, Got: len(dense)}.AsVectorizerError()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]float32, len(dense))
	copy(cp, dense)

	idx := Index(len(s.slots))
	s.slots = append(s.slots, slot{dense: cp, sparse: cloneSparse(sparse), payload: payload})
	return idx, nil
}

func (s *MemoryStore) Get(_ context.Context, idx Index) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, err := s.at(idx)
	if err != nil {
		return nil, err
	}

	return &Entry{Index: idx, Dense: sl.dense, Sparse: sl.sparse, Payload: sl.payload}, nil
}

func (s *MemoryStore) ReplaceDense(_ context.Context, idx Index, dense []float32) error {
	if len(dense) != s.dim {
		return ErrDimensionMismatch{Expected: s.dim, Got: len(dense)}.AsVectorizerError()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sl, err := s.atLocked(idx)
	if err != nil {
		return err
	}

	cp := make([]float32, len(dense))
	copy(cp, dense)
	sl.dense = cp
	s.slots[idx] = *sl
	return nil
}

func (s *MemoryStore) ReplacePayload(_ context.Context, idx Index, payload Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, err := s.atLocked(idx)
	if err != nil {
		return err
	}

	sl.payload = payload
	s.slots[idx] = *sl
	return nil
}

func (s *MemoryStore) MarkDeleted(_ context.Context, idx Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, err := s.atLocked(idx)
	if err != nil {
		if _, ok := err.(ErrTombstoned); ok {
			return nil
		}
		return err
	}

	sl.tombstone = true
	s.slots[idx] = *sl
	return nil
}

func (s *MemoryStore) IterLive(_ context.Context, fn func(*Entry) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.slots {
		sl := &s.slots[i]
		if sl.tombstone {
			continue
		}
		e := &Entry{Index: Index(i), Dense: sl.dense, Sparse: sl.sparse, Payload: sl.payload}
		if !fn(e) {
			break
		}
	}
	return nil
}

func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var live, dead int
	var denseBytes int64
	for _, sl := range s.slots {
		if sl.tombstone {
			dead++
		} else {
			live++
		}
		denseBytes += int64(len(sl.dense) * 4)
	}

	return Stats{
		LiveCount:  live,
		Tombstoned: dead,
		TotalSlots: len(s.slots),
		DenseBytes: denseBytes,
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.slots = nil
	return nil
}

// at returns a copy-safe pointer under an already-held read lock.
func (s *MemoryStore) at(idx Index) (*slot, error) {
	if int(idx) >= len(s.slots) {
		return nil, ErrOutOfRange{Index: idx}
	}
	sl := s.slots[idx]
	if sl.tombstone {
		return nil, ErrTombstoned{Index: idx}
	}
	return &sl, nil
}

// atLocked is like at but callable with either lock held, and returns the
// tombstoned slot too (mutators need to see it to decide idempotence).
func (s *MemoryStore) atLocked(idx Index) (*slot, error) {
	if int(idx) >= len(s.slots) {
		return nil, ErrOutOfRange{Index: idx}
	}
	sl := s.slots[idx]
	if sl.tombstone {
		return &sl, ErrTombstoned{Index: idx}
	}
	return &sl, nil
}

func cloneSparse(sp *SparseVector) *SparseVector {
	if sp == nil {
		return nil
	}
	out := &SparseVector{
		Indices: make([]uint32, len(sp.Indices)),
		Values:  make([]float32, len(sp.Values)),
	}
	copy(out.Indices, sp.Indices)
	copy(out.Values, sp.Values)
	return out
}

var _ Store = (*MemoryStore)(nil)
