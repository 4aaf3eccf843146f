package hnsw

import (
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// snapshot is the gob-serializable form of the arena, saved and loaded
// as a single atomic file write (temp file + rename).
type snapshot struct {
	Cfg        Config
	Nodes      []node
	EntryPoint int64
	MaxLevel   int
	ValidCount int
}

// EncodeTo gob-encodes the graph's snapshot onto w, for embedding as one
// section of a larger container (internal/archive's `.vecdb` format)
// rather than as its own standalone file.
func (g *Graph) EncodeTo(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := snapshot{
		Cfg:        g.cfg,
		Nodes:      g.nodes,
		EntryPoint: g.entryPoint,
		MaxLevel:   g.maxLevel,
		ValidCount: g.validCount,
	}
	return gob.NewEncoder(w).Encode(snap)
}

// DecodeGraphFrom reconstructs a Graph from bytes written by EncodeTo.
func DecodeGraphFrom(r io.Reader) (*Graph, error) {
	var snap snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("hnsw: decode index: %w", err)
	}

	g := New(snap.Cfg)
	g.nodes = snap.Nodes
	g.entryPoint = snap.EntryPoint
	g.maxLevel = snap.MaxLevel
	g.validCount = snap.ValidCount
	return g, nil
}

// Save writes the graph to path via a temp-file-then-rename so a reader
// never observes a partially written index.
func (g *Graph) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("hnsw: create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("hnsw: create temp index file: %w", err)
	}

	if err := g.EncodeTo(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("hnsw: encode index: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("hnsw: sync index file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("hnsw: close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("hnsw: rename index file: %w", err)
	}
	return nil
}

// Load reads the snapshot at path into a new Graph.
func Load(path string) (*Graph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hnsw: open index file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Warn("hnsw: failed to close index file", slog.String("error", cerr.Error()))
		}
	}()

	return DecodeGraphFrom(file)
}
