// Package bootstrap ties C6 (collection), C7 (store), C8 (archive) and C9
// (WAL) together: discovering the `.vecdb` files already in a data
// directory, restoring each into a live Collection plus replaying any WAL
// records past its last seal, and building the SealFunc each collection's
// AutoSaver uses to seal itself back down. Nothing in C6-C9 individually
// knows about this sequencing; it is the glue cmd/vectorizer's start
// command runs once at process startup and then leaves to the AutoSaver.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vectorizer-project/vectorizer/internal/archive"
	"github.com/vectorizer-project/vectorizer/internal/collection"
	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/sparse"
	"github.com/vectorizer-project/vectorizer/internal/vector"
	"github.com/vectorizer-project/vectorizer/internal/wal"
)

const vecdbExt = ".vecdb"

// ArchivePath returns the flat `<dataDir>/<name>.vecdb` path spec §4.8
// uses for a collection's container (see internal/archive/legacy.go's
// layout, which this mirrors for the current, non-legacy format).
func ArchivePath(dataDir, name string) string {
	return filepath.Join(dataDir, name+vecdbExt)
}

// WALPath returns the single process-wide WAL file's path: one log covers
// every collection in dataDir (spec §4.9), demultiplexed by the
// Collection field each record carries.
func WALPath(dataDir string) string {
	return filepath.Join(dataDir, "vectorizer.wal")
}

// Discover lists the collection names with an existing archive directly
// under dataDir.
func Discover(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bootstrap: reading %s: %w", dataDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), vecdbExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), vecdbExt))
	}
	return names, nil
}

// Backends chooses the concrete dense-store and sparse-index backends a
// restored collection is rebuilt with. SparseBackend follows spec §4.4's
// backend names ("", "native", "bleve", "sqlite"); whether a collection
// gets a sparse index at all is inferred from its archive (see Load)
// rather than tracked as separate config, since C6's Config has no
// sparse-enabled flag of its own.
type Backends struct {
	DataDir       string
	SparseBackend string
}

func (b Backends) densePath(name string) string  { return filepath.Join(b.DataDir, name+".dense.mmap") }
func (b Backends) sparsePath(name string) string { return filepath.Join(b.DataDir, name+".sparse") }

func (b Backends) openDense(name string, cfg collection.Config) (vector.Store, error) {
	if cfg.Storage == config.StorageMmap {
		return vector.OpenMmapStore(b.densePath(name), cfg.Dim, cfg.Metric)
	}
	return vector.NewMemoryStore(cfg.Dim, cfg.Metric), nil
}

func (b Backends) openSparse(name string, cfg collection.Config) (sparse.Index, error) {
	return sparse.New(b.SparseBackend, b.sparsePath(name), sparse.DefaultConfig())
}

// Load opens the archive at path, rebuilds the collection's dense store
// and (if the archive shows one was configured) sparse index, restores
// its in-memory state, and replays every WAL record past the archive's
// sealed LSN belonging to this collection. w must already be open; its
// replay is read-only and safe to call once per collection at startup
// before any new writes are accepted.
func Load(ctx context.Context, name string, path string, backends Backends, w *wal.WAL) (*collection.Collection, error) {
	ar, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open %s: %w", path, err)
	}

	cfg, _, err := collection.SealedConfig(ar.Sections)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: decode config for %q: %w", name, err)
	}

	dense, err := backends.openDense(name, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open dense store for %q: %w", name, err)
	}

	opts := []collection.Option{collection.WithWAL(w)}
	if len(ar.Sections[archive.SectionTokenizerState]) > 0 {
		sp, err := backends.openSparse(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open sparse index for %q: %w", name, err)
		}
		opts = append(opts, collection.WithSparseIndex(sp))
	}

	coll, sealedLSN, err := collection.Restore(ctx, dense, ar.Sections, opts...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: restore %q: %w", name, err)
	}

	if err := replayTail(ctx, coll, name, sealedLSN, w); err != nil {
		return nil, fmt.Errorf("bootstrap: replay wal tail for %q: %w", name, err)
	}
	return coll, nil
}

// replayTail applies every record past sealedLSN belonging to name,
// through Collection's Apply* methods so the replay itself never writes
// a second, redundant WAL record for data already durable on disk.
func replayTail(ctx context.Context, coll *collection.Collection, name string, sealedLSN uint64, w *wal.WAL) error {
	return w.Replay(func(rec wal.Record) error {
		if rec.Collection != name || rec.LSN <= sealedLSN {
			return nil
		}
		switch rec.Kind {
		case wal.KindInsert:
			return coll.ApplyInsert(ctx, collection.Vector{ID: rec.ID, Dense: rec.Dense, Sparse: rec.Sparse, Payload: rec.Payload})
		case wal.KindUpdate:
			return coll.ApplyUpdate(ctx, rec.ID, rec.Dense, rec.Payload)
		case wal.KindDelete:
			return coll.ApplyDelete(ctx, rec.ID)
		default:
			return nil
		}
	})
}

// SealFunc builds the AutoSaver closure (internal/wal.SealFunc) for one
// collection: snapshot its state as of the WAL's current tail, write it
// atomically to path, record a Checkpoint, then truncate the WAL through
// the sealed LSN (spec §4.9's seal step).
func SealFunc(ctx context.Context, path string, coll *collection.Collection, w *wal.WAL) wal.SealFunc {
	return func() error {
		sealedLSN := w.NextLSN() - 1

		sections, err := coll.Sections(ctx, sealedLSN)
		if err != nil {
			return fmt.Errorf("bootstrap: seal: %w", err)
		}
		if err := archive.Write(path, sections); err != nil {
			return fmt.Errorf("bootstrap: seal: write archive: %w", err)
		}
		if _, err := w.AppendCheckpoint(wal.NewSnapshotID(), sealedLSN); err != nil {
			return fmt.Errorf("bootstrap: seal: checkpoint: %w", err)
		}
		return w.TruncateThrough(sealedLSN)
	}
}
