package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"sync"
	"syscall"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// mmapInitialEntries is the number of records the backing file is
// pre-sized for on creation; growth beyond this doubles capacity.
const mmapInitialEntries = 1024

// MmapStore is a memory-mapped Store backend: dense vectors live in a
// growable mmap'd file at a fixed per-entry stride
// (dim*4 bytes + 4 byte CRC32 trailer); payload and sparse data stay in
// plain process memory and are persisted separately by the collection's
// archive (see internal/archive). Chosen when a collection's storage is
// configured as "mmap", trading RAM for the ability to hold collections
// larger than available memory.
type MmapStore struct {
	mu sync.RWMutex

	path     string
	file     *os.File
	data     []byte // mmap'd region
	dim      int
	metric   config.Metric
	recSize  int
	capacity int // entries the current mapping can hold

	count      int // entries ever appended
	tombstones []bool
	payloads   []Payload
	sparses    []*SparseVector

	closed bool
}

// OpenMmapStore opens (creating if absent) a memory-mapped vector store
// at path, sized for vectors of the given dimensionality and metric.
func OpenMmapStore(path string, dim int, metric config.Metric) (*MmapStore, error) {
	recSize := dim*4 + 4

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open mmap vector file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat mmap vector file: %w", err)
	}

	capacity := mmapInitialEntries
	if info.Size() > 0 {
		capacity = int(info.Size()) / recSize
		if capacity < mmapInitialEntries {
			capacity = mmapInitialEntries
		}
	}

	s := &MmapStore{
		path:    path,
		file:    f,
		dim:     dim,
		metric:  metric,
		recSize: recSize,
	}

	if err := s.remap(capacity); err != nil {
		f.Close()
		return nil, err
	}

	s.tombstones = make([]bool, 0, capacity)
	s.payloads = make([]Payload, 0, capacity)
	s.sparses = make([]*SparseVector, 0, capacity)

	return s, nil
}

// Restore re-establishes the live-entry count and id-mapped bookkeeping
// after the dense bytes have already been mmap'd from a pre-existing
// file. The collection/archive layer owns id_map/payload_map/sparse_map
// persistence (spec §4.1) and calls this once after reading them back,
// rather than this store guessing liveness from raw file bytes (which
// cannot distinguish a genuinely all-zero vector from unused capacity).
func (s *MmapStore) Restore(tombstones []bool, payloads []Payload, sparses []*SparseVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(tombstones)
	if len(payloads) != n || len(sparses) != n {
		return fmt.Errorf("restore: mismatched slice lengths (%d, %d, %d)", n, len(payloads), len(sparses))
	}
	if n > s.capacity {
		if err := s.growLocked(n); err != nil {
			return ErrOutOfCapacity{Path: s.path, Err: err}
		}
	}

	for i := 0; i < n; i++ {
		if !tombstones[i] {
			rec := s.data[i*s.recSize : (i+1)*s.recSize]
			if _, err := s.decodeRecord(rec); err != nil {
				return ErrCorrupted{Path: s.path}.withCRCFrom(err)
			}
		}
	}

	s.count = n
	s.tombstones = append([]bool(nil), tombstones...)
	s.payloads = append([]Payload(nil), payloads...)
	s.sparses = append([]*SparseVector(nil), sparses...)
	return nil
}

func (s *MmapStore) Dim() int              { return s.dim }
func (s *MmapStore) Metric() config.Metric { return s.metric }

func (s *MmapStore) Append(_ context.Context, dense []float32, sparse *SparseVector, payload Payload) (Index, error) {
	if len(dense) != s.dim {
		return 0, ErrDimensionMismatch{Expected: s.dim, Got: len(dense)}.AsVectorizerError()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("mmap store is closed")
	}

	if s.count >= s.capacity {
		if err := s.growLocked(s.capacity * 2); err != nil {
			return 0, ErrOutOfCapacity{Path: s.path, Err: err}
		}
	}

	idx := Index(s.count)
	s.writeRecordLocked(int(idx), dense)
	s.tombstones = append(s.tombstones, false)
	s.payloads = append(s.payloads, payload)
	s.sparses = append(s.sparses, cloneSparse(sparse))
	s.count++

	return idx, nil
}

func (s *MmapStore) Get(_ context.Context, idx Index) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkRangeLocked(idx); err != nil {
		return nil, err
	}
	if s.tombstones[idx] {
		return nil, ErrTombstoned{Index: idx}
	}

	rec := s.data[int(idx)*s.recSize : (int(idx)+1)*s.recSize]
	dense, err := s.decodeRecord(rec)
	if err != nil {
		return nil, ErrCorrupted{Path: s.path}.withCRCFrom(err)
	}

	return &Entry{Index: idx, Dense: dense, Sparse: s.sparses[idx], Payload: s.payloads[idx]}, nil
}

func (s *MmapStore) ReplaceDense(_ context.Context, idx Index, dense []float32) error {
	if len(dense) != s.dim {
		return ErrDimensionMismatch{Expected: s.dim, Got: len(dense)}.AsVectorizerError()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRangeLocked(idx); err != nil {
		return err
	}
	if s.tombstones[idx] {
		return ErrTombstoned{Index: idx}
	}

	s.writeRecordLocked(int(idx), dense)
	return nil
}

func (s *MmapStore) ReplacePayload(_ context.Context, idx Index, payload Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRangeLocked(idx); err != nil {
		return err
	}
	if s.tombstones[idx] {
		return ErrTombstoned{Index: idx}
	}

	s.payloads[idx] = payload
	return nil
}

func (s *MmapStore) MarkDeleted(_ context.Context, idx Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRangeLocked(idx); err != nil {
		return err
	}
	s.tombstones[idx] = true
	return nil
}

func (s *MmapStore) IterLive(_ context.Context, fn func(*Entry) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < s.count; i++ {
		if s.tombstones[i] {
			continue
		}
		rec := s.data[i*s.recSize : (i+1)*s.recSize]
		dense, err := s.decodeRecord(rec)
		if err != nil {
			return ErrCorrupted{Path: s.path}.withCRCFrom(err)
		}
		e := &Entry{Index: Index(i), Dense: dense, Sparse: s.sparses[i], Payload: s.payloads[i]}
		if !fn(e) {
			break
		}
	}
	return nil
}

func (s *MmapStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live, dead := 0, 0
	for _, t := range s.tombstones {
		if t {
			dead++
		} else {
			live++
		}
	}

	return Stats{
		LiveCount:  live,
		Tombstoned: dead,
		TotalSlots: s.count,
		DenseBytes: int64(s.count * s.recSize),
	}
}

func (s *MmapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.data != nil {
		err = syscall.Munmap(s.data)
		s.data = nil
	}
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// checkRangeLocked validates idx against the current entry count. Caller
// must hold at least a read lock.
func (s *MmapStore) checkRangeLocked(idx Index) error {
	if int(idx) >= s.count {
		return ErrOutOfRange{Index: idx}
	}
	return nil
}

// growLocked doubles (or sets) the backing file's capacity and remaps it.
// Caller must hold the write lock.
func (s *MmapStore) growLocked(newCapacity int) error {
	if newCapacity <= s.capacity {
		newCapacity = s.capacity * 2
	}

	if err := syscall.Munmap(s.data); err != nil {
		return fmt.Errorf("munmap during grow: %w", err)
	}
	s.data = nil

	newSize := int64(newCapacity) * int64(s.recSize)
	if err := syscall.Ftruncate(int(s.file.Fd()), newSize); err != nil {
		return fmt.Errorf("ftruncate during grow: %w", err)
	}

	data, err := syscall.Mmap(int(s.file.Fd()), 0, int(newSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap during grow: %w", err)
	}

	s.data = data
	s.capacity = newCapacity
	return nil
}

// remap is growLocked without requiring an existing mapping (used at open
// time to establish the initial mapping).
func (s *MmapStore) remap(capacity int) error {
	size := int64(capacity) * int64(s.recSize)
	if err := syscall.Ftruncate(int(s.file.Fd()), size); err != nil {
		return fmt.Errorf("ftruncate: %w", err)
	}

	data, err := syscall.Mmap(int(s.file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}

	s.data = data
	s.capacity = capacity
	return nil
}

// writeRecordLocked encodes dense into the mmap region at entry i,
// appending a CRC32C trailer. Caller must hold the write lock.
func (s *MmapStore) writeRecordLocked(i int, dense []float32) {
	rec := s.data[i*s.recSize : (i+1)*s.recSize]
	for j, v := range dense {
		binary.LittleEndian.PutUint32(rec[j*4:], math.Float32bits(v))
	}
	body := rec[:len(dense)*4]
	crc := crc32.Checksum(body, crcTable)
	binary.LittleEndian.PutUint32(rec[len(dense)*4:], crc)
}

// decodeRecord decodes and CRC-validates a record, returning a
// crcMismatch (carrying want/got) on mismatch.
func (s *MmapStore) decodeRecord(rec []byte) ([]float32, error) {
	body := rec[:s.dim*4]
	wantCRC := binary.LittleEndian.Uint32(rec[s.dim*4:])
	gotCRC := crc32.Checksum(body, crcTable)
	if wantCRC != gotCRC {
		return nil, crcMismatch{want: wantCRC, got: gotCRC}
	}

	dense := make([]float32, s.dim)
	for j := 0; j < s.dim; j++ {
		dense[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[j*4:]))
	}
	return dense, nil
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

type crcMismatch struct {
	want uint32
	got  uint32
}

func (c crcMismatch) Error() string {
	return fmt.Sprintf("crc mismatch: want %x got %x", c.want, c.got)
}

// withCRCFrom fills in Want/Got from a crcMismatch, if err is one.
func (e ErrCorrupted) withCRCFrom(err error) ErrCorrupted {
	if m, ok := err.(crcMismatch); ok {
		e.Want = m.want
		e.Got = m.got
	}
	return e
}

var _ Store = (*MmapStore)(nil)
