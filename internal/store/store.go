package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/vectorizer-project/vectorizer/internal/collection"
	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/verrors"
)

const lockFileName = ".vectorizer.lock"

// Store is the process-wide registry of collections (spec §4.7). It owns
// the data-dir advisory lock so that two processes never open the same
// data directory concurrently, and tracks which collections are
// currently mid-ingestion so the cleanup policy never deletes one out
// from under a running file-watcher batch.
type Store struct {
	mu sync.RWMutex

	dataDir string
	cfg     *config.Config
	build   Builder
	lock    *flock.Flock

	collections map[string]*collection.Collection
	configs     map[string]collection.Config
	ingesting   map[string]bool

	opened bool
}

// Open acquires the data-dir lock and returns an empty, ready registry.
// Loading pre-existing archives and replaying WAL tails is the
// responsibility of the caller (cmd/vectorizer wires C8/C9 and calls
// CreateCollection for each discovered collection before serving
// traffic); Open itself only establishes process-exclusive ownership of
// dataDir.
func Open(dataDir string, cfg *config.Config, build Builder) (*Store, error) {
	if dataDir == "" {
		return nil, verrors.New(verrors.ErrCodeInvalidConfig, "data_dir is required", nil)
	}
	if build == nil {
		return nil, verrors.New(verrors.ErrCodeInvalidConfig, "a collection builder is required", nil)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire data dir lock: %w", err)
	}
	if !locked {
		return nil, verrors.New(verrors.ErrCodeLockHeld,
			fmt.Sprintf("data dir %q is already open by another process", dataDir), nil)
	}

	return &Store{
		dataDir:     dataDir,
		cfg:         cfg,
		build:       build,
		lock:        lock,
		collections: make(map[string]*collection.Collection),
		configs:     make(map[string]collection.Config),
		ingesting:   make(map[string]bool),
		opened:      true,
	}, nil
}

// Close closes every collection (its dense and sparse backends) and
// releases the data-dir lock. Neither this Close nor Collection.Close
// flushes a WAL tail or seals an archive.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}

	var firstErr error
	for name, c := range s.collections {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing collection %q: %w", name, err)
		}
	}
	s.collections = make(map[string]*collection.Collection)
	s.opened = false

	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// CreateCollection registers a new collection under cfg.Name, building
// its storage backend via the injected Builder. Fails if a collection by
// that name already exists.
func (s *Store) CreateCollection(cfg collection.Config) (*collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[cfg.Name]; exists {
		return nil, verrors.New(verrors.ErrCodeCollectionExists,
			fmt.Sprintf("collection %q already exists", cfg.Name), nil)
	}

	c, err := s.build(cfg)
	if err != nil {
		return nil, err
	}

	s.collections[cfg.Name] = c
	s.configs[cfg.Name] = cfg
	return c, nil
}

// Adopt registers a collection that was already built outside the
// injected Builder — specifically, one restored by internal/bootstrap
// from an existing archive plus WAL tail at startup. Fails if a
// collection by that name is already registered.
func (s *Store) Adopt(cfg collection.Config, c *collection.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[cfg.Name]; exists {
		return verrors.New(verrors.ErrCodeCollectionExists,
			fmt.Sprintf("collection %q already exists", cfg.Name), nil)
	}

	s.collections[cfg.Name] = c
	s.configs[cfg.Name] = cfg
	return nil
}

// DropCollection closes and removes a collection from the registry.
// Removing its on-disk archive/WAL/snapshots is the caller's
// responsibility once C8 is wired in.
func (s *Store) DropCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return collectionNotFound(name)
	}

	if err := c.Close(); err != nil {
		return err
	}

	delete(s.collections, name)
	delete(s.configs, name)
	delete(s.ingesting, name)
	return nil
}

// Get returns the handle for an already-open collection.
func (s *Store) Get(name string) (*collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, collectionNotFound(name)
	}
	return c, nil
}

// List returns a point-in-time snapshot of every open collection's
// metadata; it never blocks on a collection's own lock beyond the Stats
// call each exposes.
func (s *Store) List() []Info {
	s.mu.RLock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	s.mu.RUnlock()

	out := make([]Info, 0, len(names))
	for _, name := range names {
		s.mu.RLock()
		c, ok := s.collections[name]
		cfg := s.configs[name]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		stats := c.Stats()
		out = append(out, Info{
			Name:         name,
			Dim:          cfg.Dim,
			Metric:       string(cfg.Metric),
			VectorCount:  stats.VectorCount,
			Tombstones:   stats.Tombstones,
			LastModified: stats.LastModified,
		})
	}
	return out
}

// MarkIngesting records that name is currently being written to by the
// file-watcher ingestion pipeline, exempting it from the empty-collection
// cleanup policy regardless of its current vector_count.
func (s *Store) MarkIngesting(name string, ingesting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ingesting {
		s.ingesting[name] = true
	} else {
		delete(s.ingesting, name)
	}
}

// IsEmpty reports whether a collection has zero live vectors.
func (s *Store) IsEmpty(name string) (bool, error) {
	c, err := s.Get(name)
	if err != nil {
		return false, err
	}
	return c.Stats().VectorCount == 0, nil
}

// ListEmpty returns the names of every collection that qualifies as
// empty under the cleanup policy: zero live vectors, not mid-ingestion,
// and not referenced by the file-watcher's collection mapping or default
// collection (spec §4.7, fixing the "empty proliferation" bug of §9: a
// collection must never be deleted just because its name doesn't happen
// to appear in the current config, only because nothing references it).
func (s *Store) ListEmpty() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var empty []string
	for name, c := range s.collections {
		if c.Stats().VectorCount != 0 {
			continue
		}
		if s.ingesting[name] {
			continue
		}
		if s.isReferencedLocked(name) {
			continue
		}
		empty = append(empty, name)
	}
	return empty
}

// isReferencedLocked checks name against the file-watcher's
// collection_mapping and default_collection — the only place this
// process currently tracks "workspace.projects[*].collections" — so
// auto-created collections that are still the configured ingestion
// target are never swept.
func (s *Store) isReferencedLocked(name string) bool {
	if s.cfg == nil {
		return false
	}
	fw := s.cfg.FileWatcher
	if fw.DefaultCollection == name {
		return true
	}
	for _, m := range fw.CollectionMapping {
		if m.Collection == name {
			return true
		}
	}
	return false
}

// CleanupEmpty drops every collection returned by ListEmpty. With
// dryRun, it reports what would be deleted without mutating the
// registry.
func (s *Store) CleanupEmpty(ctx context.Context, dryRun bool) (CleanupReport, error) {
	names := s.ListEmpty()

	report := CleanupReport{}
	for _, name := range names {
		if !dryRun {
			if err := s.DropCollection(name); err != nil {
				return report, err
			}
		}
		report.Deleted = append(report.Deleted, name)
	}
	return report, nil
}

func collectionNotFound(name string) *verrors.VectorizerError {
	return verrors.New(verrors.ErrCodeCollectionNotFound,
		fmt.Sprintf("collection %q not found", name), nil)
}
