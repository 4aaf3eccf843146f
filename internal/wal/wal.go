package wal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vectorizer-project/vectorizer/internal/collection"
	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/verrors"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ErrCorruptRecord is returned by Replay when a record's CRC or body fails
// to verify. No caller moves the damaged tail aside: Open ignores the
// error, and bootstrap.Load returns it.
type ErrCorruptRecord struct {
	Offset int64
	LSN    uint64
}

func (e ErrCorruptRecord) Error() string {
	return fmt.Sprintf("wal: corrupt record at offset %d (lsn %d)", e.Offset, e.LSN)
}

// WAL is an append-only log of mutation records for one collection,
// guarded by fsync policy (spec §4.9): always (per append), interval_ms
// (time-based), or on_batch (left to the caller via Flush after a batch).
type WAL struct {
	mu sync.Mutex

	path   string
	f      *os.File
	policy config.FsyncPolicy
	interval time.Duration

	nextLSN       uint64
	lastFsync     time.Time
	opsSinceFsync int
}

// Open opens (creating if necessary) the WAL file at path and recovers
// nextLSN by scanning any existing records. It does not replay records
// into an in-memory state; callers needing recovery should call Replay
// separately before further appends.
func Open(path string, policy config.FsyncPolicy, intervalMs int) (*WAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("wal: creating dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: opening %s: %w", path, err)
	}

	w := &WAL{
		path:     path,
		f:        f,
		policy:   policy,
		interval: time.Duration(intervalMs) * time.Millisecond,
	}

	var lastLSN uint64
	_ = w.Replay(func(rec Record) error {
		lastLSN = rec.LSN
		return nil
	})
	w.nextLSN = lastLSN + 1

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("wal: seeking to end: %w", err)
	}
	w.lastFsync = time.Now()
	return w, nil
}

// AppendInsert satisfies collection.WALAppender.
func (w *WAL) AppendInsert(coll, id string, dense []float32, sparse *collection.SparseVector, payload map[string]any) (uint64, error) {
	return w.append(KindInsert, body{Collection: coll, ID: id, Dense: dense, Sparse: sparse, Payload: payload})
}

// AppendUpdate satisfies collection.WALAppender.
func (w *WAL) AppendUpdate(coll, id string, dense []float32, payload map[string]any) (uint64, error) {
	return w.append(KindUpdate, body{Collection: coll, ID: id, Dense: dense, Payload: payload})
}

// AppendDelete satisfies collection.WALAppender.
func (w *WAL) AppendDelete(coll, id string) (uint64, error) {
	return w.append(KindDelete, body{Collection: coll, ID: id})
}

// AppendCreateCollection logs a collection's creation for C7.
func (w *WAL) AppendCreateCollection(coll string) (uint64, error) {
	return w.append(KindCreateCollection, body{Collection: coll})
}

// AppendDropCollection logs a collection's removal for C7.
func (w *WAL) AppendDropCollection(coll string) (uint64, error) {
	return w.append(KindDropCollection, body{Collection: coll})
}

// AppendCheckpoint records that everything through sealedLSN has been
// durably captured in the archive named by snapshotID (C8/C9 seal step).
func (w *WAL) AppendCheckpoint(snapshotID string, sealedLSN uint64) (uint64, error) {
	return w.append(KindCheckpoint, body{SnapshotID: snapshotID, SealedLSN: sealedLSN})
}

func (w *WAL) append(kind Kind, b body) (uint64, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return 0, fmt.Errorf("wal: encoding record: %w", err)
	}
	payload := buf.Bytes()

	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.nextLSN

	envelope := make([]byte, 0, 4+1+8+len(payload)+4)
	envelope = binary.BigEndian.AppendUint32(envelope, uint32(1+8+len(payload)))
	envelope = append(envelope, byte(kind))
	envelope = binary.BigEndian.AppendUint64(envelope, lsn)
	envelope = append(envelope, payload...)
	crc := crc32.Checksum(envelope[4:], crcTable)
	envelope = binary.BigEndian.AppendUint32(envelope, crc)

	if _, err := w.f.Write(envelope); err != nil {
		return 0, verrors.Wrap(verrors.ErrCodeIOTimeout, fmt.Errorf("wal: writing record: %w", err))
	}

	w.nextLSN++
	w.opsSinceFsync++

	if w.shouldFsyncLocked() {
		if err := w.fsyncLocked(); err != nil {
			return 0, err
		}
	}

	return lsn, nil
}

func (w *WAL) shouldFsyncLocked() bool {
	switch w.policy {
	case config.FsyncAlways:
		return true
	case config.FsyncInterval:
		return time.Since(w.lastFsync) >= w.interval
	default: // on_batch: caller drives Flush explicitly
		return false
	}
}

func (w *WAL) fsyncLocked() error {
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	w.lastFsync = time.Now()
	w.opsSinceFsync = 0
	return nil
}

// Flush forces an fsync regardless of policy; called at the end of a
// batch operation under the on_batch policy.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsyncLocked()
}

// NextLSN returns the LSN that will be assigned to the next append.
func (w *WAL) NextLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextLSN
}

// Replay reads every record from the start of the file in order, calling
// fn for each. It stops and returns ErrCorruptRecord on the first record
// whose CRC or body fails to verify. A truncated tail (e.g. a crash
// mid-write) ends the replay with a nil error; the records before it have
// already been delivered to fn.
func (w *WAL) Replay(fn func(Record) error) error {
	w.mu.Lock()
	f := w.f
	w.mu.Unlock()
	return replayFile(f, fn)
}

// replayFile is Replay's body; TruncateThrough calls it directly because
// it already holds w.mu.
func replayFile(f *os.File, fn func(Record) error) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seeking to start: %w", err)
	}
	defer f.Seek(0, io.SeekEnd)

	r := bufio.NewReader(f)
	var offset int64

	for {
		lenBuf := make([]byte, 4)
		n, err := io.ReadFull(r, lenBuf)
		if err == io.EOF && n == 0 {
			return nil
		}
		if err != nil {
			return nil // truncated length prefix: treat as clean end-of-log
		}

		bodyLen := binary.BigEndian.Uint32(lenBuf)
		rest := make([]byte, bodyLen+4) // +4 for the trailing crc
		if _, err := io.ReadFull(r, rest); err != nil {
			return nil // truncated record tail: stop, last good record already replayed
		}

		recordBytes := rest[:bodyLen]
		wantCRC := binary.BigEndian.Uint32(rest[bodyLen:])
		gotCRC := crc32.Checksum(recordBytes, crcTable)

		kind := Kind(recordBytes[0])
		lsn := binary.BigEndian.Uint64(recordBytes[1:9])

		if gotCRC != wantCRC {
			return ErrCorruptRecord{Offset: offset, LSN: lsn}
		}

		var b body
		if err := gob.NewDecoder(bytes.NewReader(recordBytes[9:])).Decode(&b); err != nil {
			return ErrCorruptRecord{Offset: offset, LSN: lsn}
		}

		rec := Record{
			LSN:        lsn,
			Kind:       kind,
			Collection: b.Collection,
			ID:         b.ID,
			Dense:      b.Dense,
			Sparse:     b.Sparse,
			Payload:    b.Payload,
			SnapshotID: b.SnapshotID,
			SealedLSN:  b.SealedLSN,
		}
		if err := fn(rec); err != nil {
			return err
		}

		offset += int64(4 + len(rest))
	}
}

// TruncateThrough drops every record with lsn <= sealedLSN, rewriting
// the remaining tail into a fresh file and atomically replacing the WAL
// (the seal step of the auto-save scheduler, spec §4.9).
func (w *WAL) TruncateThrough(sealedLSN uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tmpPath := w.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("wal: creating truncation tmp file: %w", err)
	}

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return err
	}

	keepErr := replayFile(w.f, func(rec Record) error {
		if rec.LSN <= sealedLSN {
			return nil
		}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(body{
			Collection: rec.Collection, ID: rec.ID, Dense: rec.Dense,
			Sparse: rec.Sparse, Payload: rec.Payload,
			SnapshotID: rec.SnapshotID, SealedLSN: rec.SealedLSN,
		}); err != nil {
			return err
		}
		payload := buf.Bytes()
		envelope := make([]byte, 0, 4+1+8+len(payload)+4)
		envelope = binary.BigEndian.AppendUint32(envelope, uint32(1+8+len(payload)))
		envelope = append(envelope, byte(rec.Kind))
		envelope = binary.BigEndian.AppendUint64(envelope, rec.LSN)
		envelope = append(envelope, payload...)
		crc := crc32.Checksum(envelope[4:], crcTable)
		envelope = binary.BigEndian.AppendUint32(envelope, crc)
		_, err := tmp.Write(envelope)
		return err
	})
	// keepErr is non-nil only on genuine corruption/write failure (not on
	// the normal EOF path, which Replay reports as nil).
	if keepErr != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return keepErr
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := w.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return nil
}

// Close syncs and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}

var _ collection.WALAppender = (*WAL)(nil)
