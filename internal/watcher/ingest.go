package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vectorizer-project/vectorizer/internal/chunk"
	"github.com/vectorizer-project/vectorizer/internal/collection"
	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/embedprovider"
	"github.com/vectorizer-project/vectorizer/internal/gitignore"
	"github.com/vectorizer-project/vectorizer/internal/scanner"
)

// State is the ingestor's coalescing/ingestion state machine (spec
// §4.10): Idle -> Debouncing -> Ingesting -> Idle, with Paused entered
// under backpressure and Failed entered after an unrecoverable error.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateIngesting
	StatePaused
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateIngesting:
		return "ingesting"
	case StatePaused:
		return "paused"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventSource is the batched-event shape HybridWatcher implements.
// PollingWatcher does not: its Events channel carries single events.
type EventSource interface {
	Start(ctx context.Context, path string) error
	Stop() error
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// CollectionResolver looks up a named collection. *store.Store
// satisfies this structurally, the same seam collection.WALAppender
// and store.Builder use so this package never imports internal/store.
type CollectionResolver interface {
	Get(name string) (*collection.Collection, error)
}

// Ingestor drives file events from an EventSource through
// chunk -> embed -> collection insert/delete (spec §4.10).
type Ingestor struct {
	source      EventSource
	chunker     chunk.Chunker
	embedder    embedprovider.Embedder
	collections CollectionResolver
	cfg         config.FileWatcherConfig

	mu    sync.RWMutex
	state State

	queue  chan []FileEvent
	stopCh chan struct{}
	doneCh chan struct{}

	fileHashes sync.Map // path -> last-seen content sha256 hex

	pausedCount atomic.Uint64

	// onHealthWarning is invoked (if non-nil) whenever backpressure
	// forces a transition into Paused, so a health endpoint can surface it.
	onHealthWarning func(msg string)
}

// NewIngestor builds an Ingestor. cfg.QueueCapacity bounds the
// in-flight batch queue; cfg.PauseWaitThreshold is how long a producer
// blocks on a full queue before flipping to Paused (spec §4.10
// backpressure).
func NewIngestor(source EventSource, chunker chunk.Chunker, embedder embedprovider.Embedder, collections CollectionResolver, cfg config.FileWatcherConfig) *Ingestor {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 256
	}
	return &Ingestor{
		source:      source,
		chunker:     chunker,
		embedder:    embedder,
		collections: collections,
		cfg:         cfg,
		state:       StateIdle,
		queue:       make(chan []FileEvent, capacity),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// OnHealthWarning registers a callback invoked when the ingestor enters
// Paused due to backpressure.
func (ig *Ingestor) OnHealthWarning(fn func(msg string)) {
	ig.onHealthWarning = fn
}

// State returns the current ingestion state.
func (ig *Ingestor) State() State {
	ig.mu.RLock()
	defer ig.mu.RUnlock()
	return ig.state
}

func (ig *Ingestor) setState(s State) {
	ig.mu.Lock()
	ig.state = s
	ig.mu.Unlock()
}

// Run starts the underlying source and drives events until ctx is
// cancelled or Stop is called.
func (ig *Ingestor) Run(ctx context.Context, rootPath string) error {
	if err := ig.source.Start(ctx, rootPath); err != nil {
		ig.setState(StateFailed)
		return fmt.Errorf("watcher: start event source: %w", err)
	}

	go ig.consume(ctx)

	for {
		select {
		case <-ctx.Done():
			ig.source.Stop()
			close(ig.stopCh)
			<-ig.doneCh
			return ctx.Err()
		case <-ig.stopCh:
			return nil
		case batch, ok := <-ig.source.Events():
			if !ok {
				close(ig.stopCh)
				<-ig.doneCh
				return nil
			}
			ig.setState(StateDebouncing)
			ig.enqueue(batch)
		case err, ok := <-ig.source.Errors():
			if ok && err != nil {
				slog.Warn("watcher: non-fatal source error", slog.String("error", err.Error()))
			}
		}
	}
}

// Seed pushes synthetic Create events through the same debounce/backpressure
// queue real FS events use, so a caller can backfill files that already
// existed before the watcher attached to rootPath. Run must already be
// consuming (ig.consume started) or the batch blocks until it is.
func (ig *Ingestor) Seed(paths []string) {
	if len(paths) == 0 {
		return
	}
	now := time.Now()
	batch := make([]FileEvent, len(paths))
	for i, p := range paths {
		batch[i] = FileEvent{Path: p, Operation: OpCreate, Timestamp: now}
	}
	ig.enqueue(batch)
}

// Stop halts the event loop and underlying source.
func (ig *Ingestor) Stop() error {
	select {
	case <-ig.stopCh:
	default:
		close(ig.stopCh)
	}
	return ig.source.Stop()
}

// enqueue applies the backpressure contract: try a fast non-blocking
// send, and only if the queue is genuinely full wait up to
// PauseWaitThreshold before flipping into Paused and falling back to a
// blocking send (so batches are delayed, never dropped, under load).
func (ig *Ingestor) enqueue(batch []FileEvent) {
	select {
	case ig.queue <- batch:
		return
	default:
	}

	threshold := ig.cfg.PauseWaitThreshold
	if threshold <= 0 {
		threshold = 5 * time.Second
	}
	timer := time.NewTimer(threshold)
	defer timer.Stop()

	select {
	case ig.queue <- batch:
		return
	case <-timer.C:
	}

	ig.setState(StatePaused)
	ig.pausedCount.Add(1)
	msg := fmt.Sprintf("watcher: ingestion queue saturated for %s, pausing producer", threshold)
	slog.Warn(msg)
	if ig.onHealthWarning != nil {
		ig.onHealthWarning(msg)
	}

	ig.queue <- batch // block until a worker drains a slot
	ig.setState(StateDebouncing)
}

func (ig *Ingestor) consume(ctx context.Context) {
	defer close(ig.doneCh)
	for {
		select {
		case <-ig.stopCh:
			return
		case batch := <-ig.queue:
			ig.setState(StateIngesting)
			ig.ingestBatch(ctx, batch)
			ig.setState(StateIdle)
		}
	}
}

func (ig *Ingestor) ingestBatch(ctx context.Context, batch []FileEvent) {
	for _, ev := range batch {
		if err := ig.ingestOne(ctx, ev); err != nil {
			slog.Error("watcher: ingest event failed",
				slog.String("path", ev.Path), slog.String("op", ev.Operation.String()), slog.String("error", err.Error()))
		}
	}
}

// ingestOne applies the per-event-kind contract (spec §4.10):
//   - Create/Modify: hash-check against the last-seen content hash
//     (skip if unchanged), otherwise chunk -> embed -> insert new
//     chunks and delete chunks for this path whose chunk_hash is no
//     longer in the new set.
//   - Delete: delete all chunks whose payload source_file == path.
//   - Rename: delete chunks under OldPath, then ingest Path as Create.
func (ig *Ingestor) ingestOne(ctx context.Context, ev FileEvent) error {
	if ig.excluded(ev.Path) {
		return nil
	}

	switch ev.Operation {
	case OpDelete:
		return ig.deleteBySourceFile(ctx, ev.Path)

	case OpRename:
		if ev.OldPath != "" {
			if err := ig.deleteBySourceFile(ctx, ev.OldPath); err != nil {
				return err
			}
			ig.fileHashes.Delete(ev.OldPath)
		}
		return ig.ingestOne(ctx, FileEvent{Path: ev.Path, Operation: OpCreate, Timestamp: ev.Timestamp})

	case OpCreate, OpModify:
		return ig.ingestFile(ctx, ev.Path)

	default:
		return nil
	}
}

func (ig *Ingestor) excluded(path string) bool {
	if gitignore.MatchesAnyPattern(path, ig.cfg.ExcludePatterns) {
		return true
	}
	if len(ig.cfg.IncludePatterns) > 0 && !gitignore.MatchesAnyPattern(path, ig.cfg.IncludePatterns) {
		return true
	}
	return false
}

func (ig *Ingestor) ingestFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ig.deleteBySourceFile(ctx, path)
		}
		return fmt.Errorf("read file: %w", err)
	}
	if ig.cfg.MaxFileSizeBytes > 0 && int64(len(data)) > ig.cfg.MaxFileSizeBytes {
		return nil
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if prev, ok := ig.fileHashes.Load(path); ok && prev.(string) == hash {
		return nil
	}
	ig.fileHashes.Store(path, hash)

	chunks, err := ig.chunker.Chunk(ctx, &chunk.FileInput{Path: path, Content: data})
	if err != nil {
		return fmt.Errorf("chunk file: %w", err)
	}

	targetName := ig.targetCollection(path)
	target, err := ig.collections.Get(targetName)
	if err != nil {
		return fmt.Errorf("resolve target collection %q: %w", targetName, err)
	}

	language := scanner.DetectLanguage(path)
	contentType := scanner.DetectContentType(language)

	newHashes := make(map[string]bool, len(chunks))
	for _, ch := range chunks {
		newHashes[ch.Metadata["chunk_hash"]] = true

		var dense []float32
		if ig.embedder != nil {
			dense, err = ig.embedder.Embed(ctx, ch.Content)
			if err != nil {
				return fmt.Errorf("embed chunk: %w", err)
			}
		}

		payload := map[string]any{
			"source_file":  path,
			"chunk_index":  ch.StartLine,
			"content":      ch.Content,
			"chunk_hash":   ch.Metadata["chunk_hash"],
			"language":     language,
			"content_type": string(contentType),
		}

		if err := target.Insert(ctx, collection.Vector{ID: ch.ID, Dense: dense, Payload: payload}); err != nil {
			// Duplicate IDs are expected when re-ingesting an
			// unchanged chunk boundary; treat them as an update.
			if updateErr := target.Update(ctx, ch.ID, dense, payload); updateErr != nil {
				return fmt.Errorf("insert/update chunk %s: %w", ch.ID, err)
			}
		}
	}

	return ig.deleteStaleChunks(ctx, target, path, newHashes)
}

// deleteStaleChunks removes chunks previously indexed for path whose
// chunk_hash is not present in the current chunk set.
func (ig *Ingestor) deleteStaleChunks(ctx context.Context, target *collection.Collection, path string, keep map[string]bool) error {
	existing, err := target.List(ctx, 0, 0, &collection.Filter{
		Predicates: []collection.Predicate{{Path: "source_file", Op: collection.OpEq, Value: path}},
	})
	if err != nil {
		return fmt.Errorf("list existing chunks: %w", err)
	}
	for _, v := range existing {
		hash, _ := v.Payload["chunk_hash"].(string)
		if keep[hash] {
			continue
		}
		if err := target.Delete(ctx, v.ID); err != nil {
			return fmt.Errorf("delete stale chunk %s: %w", v.ID, err)
		}
	}
	return nil
}

func (ig *Ingestor) deleteBySourceFile(ctx context.Context, path string) error {
	for _, name := range ig.allCollectionNames() {
		target, err := ig.collections.Get(name)
		if err != nil {
			continue
		}
		existing, err := target.List(ctx, 0, 0, &collection.Filter{
			Predicates: []collection.Predicate{{Path: "source_file", Op: collection.OpEq, Value: path}},
		})
		if err != nil {
			return err
		}
		for _, v := range existing {
			if err := target.Delete(ctx, v.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// allCollectionNames enumerates every collection a file could have
// landed in: the default plus every mapped target.
func (ig *Ingestor) allCollectionNames() []string {
	seen := map[string]bool{}
	var names []string
	if ig.cfg.DefaultCollection != "" {
		seen[ig.cfg.DefaultCollection] = true
		names = append(names, ig.cfg.DefaultCollection)
	}
	for _, m := range ig.cfg.CollectionMapping {
		if !seen[m.Collection] {
			seen[m.Collection] = true
			names = append(names, m.Collection)
		}
	}
	return names
}

// targetCollection resolves the destination collection for path via
// cfg.CollectionMapping (first glob match wins), falling back to
// DefaultCollection.
func (ig *Ingestor) targetCollection(path string) string {
	for _, m := range ig.cfg.CollectionMapping {
		if ok, _ := filepath.Match(m.Pattern, path); ok {
			return m.Collection
		}
		if gitignore.MatchesAnyPattern(path, []string{m.Pattern}) {
			return m.Collection
		}
	}
	return ig.cfg.DefaultCollection
}
