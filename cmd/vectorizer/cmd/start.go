package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vectorizer-project/vectorizer/internal/api"
	"github.com/vectorizer-project/vectorizer/internal/bootstrap"
	"github.com/vectorizer-project/vectorizer/internal/chunk"
	"github.com/vectorizer-project/vectorizer/internal/collection"
	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/embedprovider"
	"github.com/vectorizer-project/vectorizer/internal/gitignore"
	"github.com/vectorizer-project/vectorizer/internal/hnsw"
	"github.com/vectorizer-project/vectorizer/internal/router"
	"github.com/vectorizer-project/vectorizer/internal/search"
	"github.com/vectorizer-project/vectorizer/internal/sparse"
	"github.com/vectorizer-project/vectorizer/internal/store"
	"github.com/vectorizer-project/vectorizer/internal/vector"
	"github.com/vectorizer-project/vectorizer/internal/wal"
	"github.com/vectorizer-project/vectorizer/internal/watcher"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Open the data directory, bind listeners, and serve until signaled",
		RunE: func(c *cobra.Command, args []string) error {
			return runStart(c.Context())
		},
	}
}

// runStart opens the data dir, rebuilds every collection already on
// disk, wires the durability/ingestion/search/routing subsystems around
// them, and serves the HTTP API until SIGINT/SIGTERM.
func runStart(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := dataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return withExitCode(exitCorrupted, fmt.Errorf("start: creating data dir: %w", err))
	}

	w, err := wal.Open(bootstrap.WALPath(dir), cfg.Durability.FsyncPolicy, cfg.Durability.FsyncIntervalMs)
	if err != nil {
		return withExitCode(exitCorrupted, fmt.Errorf("start: opening wal: %w", err))
	}
	defer w.Close()

	backends := bootstrap.Backends{DataDir: dir, SparseBackend: cfg.Search.SparseBackend}

	st, err := store.Open(dir, cfg, collectionBuilder(dir, backends))
	if err != nil {
		return withExitCode(exitCorrupted, fmt.Errorf("start: opening store: %w", err))
	}
	defer st.Close()

	names, err := bootstrap.Discover(dir)
	if err != nil {
		return withExitCode(exitCorrupted, fmt.Errorf("start: discovering collections: %w", err))
	}

	var savers []*wal.AutoSaver
	for _, name := range names {
		path := bootstrap.ArchivePath(dir, name)
		coll, err := bootstrap.Load(ctx, name, path, backends, w)
		if err != nil {
			return withExitCode(exitCorrupted, fmt.Errorf("start: restoring collection %q: %w", name, err))
		}
		if err := st.Adopt(coll.Config(), coll); err != nil {
			return withExitCode(exitCorrupted, fmt.Errorf("start: adopting collection %q: %w", name, err))
		}

		saver := wal.NewAutoSaver(cfg.Durability.AutoSaveIntervalSecs, cfg.Durability.MinOperations,
			bootstrap.SealFunc(ctx, path, coll, w))
		saver.Start()
		savers = append(savers, saver)
	}
	defer func() {
		for _, s := range savers {
			s.Stop()
		}
	}()

	embedder, err := embedprovider.NewEmbedder(ctx, embedprovider.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Dimensions)
	if err != nil {
		return withExitCode(exitCorrupted, fmt.Errorf("start: building embedder: %w", err))
	}
	if cfg.Embeddings.CacheSize > 0 {
		embedder = embedprovider.NewCachedEmbedder(embedder, cfg.Embeddings.CacheSize)
	}

	if cfg.FileWatcher.Enabled {
		ingestors, err := startFileWatchers(ctx, st, embedder)
		if err != nil {
			return withExitCode(exitCorrupted, fmt.Errorf("start: starting file watcher: %w", err))
		}
		defer func() {
			for _, ig := range ingestors {
				ig.Stop()
			}
		}()
	}

	pipeline := search.New(st, embedder)
	rt := router.New(cfg.Router, router.AlwaysHealthy{})
	server := api.New(st, pipeline, rt, cfg.Collections)

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port))
	slog.Info("start: ready", slog.String("data_dir", dir), slog.Int("collections", len(names)))

	if err := api.Serve(ctx, addr, server); err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return withExitCode(exitPortInUse, err)
		}
		return withExitCode(1, err)
	}
	return nil
}

// collectionBuilder returns the store.Builder cmd/vectorizer supplies to
// store.Open for collections created at runtime via the API (as opposed
// to ones restored at startup through bootstrap.Load, which go through
// Store.Adopt instead).
func collectionBuilder(dataDir string, backends bootstrap.Backends) store.Builder {
	return func(c collection.Config) (*collection.Collection, error) {
		var dense vector.Store
		var err error
		switch c.Storage {
		case config.StorageMmap:
			dense, err = vector.OpenMmapStore(filepath.Join(dataDir, c.Name+".dense.mmap"), c.Dim, c.Metric)
		default:
			dense = vector.NewMemoryStore(c.Dim, c.Metric)
		}
		if err != nil {
			return nil, fmt.Errorf("collectionBuilder: dense store for %q: %w", c.Name, err)
		}

		graph := hnsw.New(c.HNSW)

		var opts []collection.Option
		if backends.SparseBackend != "" {
			idx, err := sparse.New(backends.SparseBackend, filepath.Join(dataDir, c.Name+".sparse"), sparse.DefaultConfig())
			if err != nil {
				return nil, fmt.Errorf("collectionBuilder: sparse index for %q: %w", c.Name, err)
			}
			opts = append(opts, collection.WithSparseIndex(idx))
		}

		return collection.New(c, dense, graph, opts...), nil
	}
}

// startFileWatchers wires one Ingestor per configured watch path,
// each over its own hybrid fsnotify/polling source, with st as the
// CollectionResolver (spec §4.10). Each Ingestor.Run blocks until ctx is
// canceled, so it runs in its own goroutine. A watcher that cannot be
// built aborts startup with an error; one that stops while running is
// logged without affecting the others.
func startFileWatchers(ctx context.Context, st *store.Store, embedder embedprovider.Embedder) ([]*watcher.Ingestor, error) {
	chunker := chunk.NewLineChunker(4000, 200)

	var ingestors []*watcher.Ingestor
	for _, path := range cfg.FileWatcher.WatchPaths {
		opts := watcher.Options{
			DebounceWindow: time.Duration(cfg.FileWatcher.DebounceMs) * time.Millisecond,
		}.WithDefaults()

		source, err := watcher.NewHybridWatcher(opts)
		if err != nil {
			return ingestors, fmt.Errorf("building file watcher for %q: %w", path, err)
		}

		ig := watcher.NewIngestor(source, chunker, embedder, st, cfg.FileWatcher)
		watchPath := path
		go func() {
			if err := ig.Run(ctx, watchPath); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("file watcher stopped", slog.String("path", watchPath), slog.String("error", err.Error()))
			}
		}()
		if cfg.FileWatcher.InitialScan {
			go backfillWatchPath(ctx, ig, watchPath)
		}
		ingestors = append(ingestors, ig)
	}
	return ingestors, nil
}

// backfillWatchPath walks watchPath once at startup so files already on
// disk get ingested, not just ones that change after the watcher
// attaches, honoring the same .gitignore/include/exclude rules the
// running watcher applies to live events. Best-effort: a walk failure is
// logged, never fatal to start, since live FS events still cover
// anything written from here on.
func backfillWatchPath(ctx context.Context, ig *watcher.Ingestor, watchPath string) {
	absWatchPath, err := filepath.Abs(watchPath)
	if err != nil {
		slog.Error("initial scan: resolving path", slog.String("path", watchPath), slog.String("error", err.Error()))
		return
	}

	matcher := gitignore.New()
	for _, p := range cfg.FileWatcher.ExcludePatterns {
		matcher.AddPattern(p)
	}
	matcher.AddPattern(".git/")
	matcher.AddPattern(".vectorizer/")
	if err := matcher.AddFromFile(filepath.Join(absWatchPath, ".gitignore"), ""); err != nil && !os.IsNotExist(err) {
		slog.Warn("initial scan: reading .gitignore", slog.String("path", absWatchPath), slog.String("error", err.Error()))
	}

	includeOK := func(relPath string) bool {
		if len(cfg.FileWatcher.IncludePatterns) == 0 {
			return true
		}
		return gitignore.MatchesAnyPattern(relPath, cfg.FileWatcher.IncludePatterns)
	}

	const seedBatchSize = 256
	batch := make([]string, 0, seedBatchSize)
	count := 0
	err = filepath.WalkDir(absWatchPath, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil // best-effort: skip what we can't stat
		}
		relPath, relErr := filepath.Rel(absWatchPath, path)
		if relErr != nil {
			relPath = path
		}
		if matcher.Match(relPath, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !includeOK(relPath) {
			return nil
		}
		if cfg.FileWatcher.MaxFileSizeBytes > 0 {
			if info, err := d.Info(); err == nil && info.Size() > cfg.FileWatcher.MaxFileSizeBytes {
				return nil
			}
		}

		batch = append(batch, path)
		count++
		if len(batch) >= seedBatchSize {
			ig.Seed(batch)
			batch = make([]string, 0, seedBatchSize)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("initial scan: walking path", slog.String("path", watchPath), slog.String("error", err.Error()))
		return
	}
	if len(batch) > 0 {
		ig.Seed(batch)
	}
	slog.Info("initial scan: complete", slog.String("path", watchPath), slog.Int("files", count))
}
