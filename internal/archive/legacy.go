package archive

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coder/hnsw"
	"github.com/mattn/go-isatty"
)

// legacyMetadata mirrors the pre-vecdb per-collection sidecar format:
// a gob-encoded ID mapping alongside a coder/hnsw-exported graph file.
type legacyMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
}

// HasLegacyLayout reports whether dir contains a pre-vecdb collection
// (an exported coder/hnsw index plus its .meta sidecar) without an
// already-migrated .vecdb.
func HasLegacyLayout(dir, collection string) bool {
	vecdb := filepath.Join(dir, collection+".vecdb")
	if _, err := os.Stat(vecdb); err == nil {
		return false
	}
	indexPath := filepath.Join(dir, collection+".hnsw")
	metaPath := indexPath + ".meta"
	_, idxErr := os.Stat(indexPath)
	_, metaErr := os.Stat(metaPath)
	return idxErr == nil && metaErr == nil
}

// ShouldPromptBeforeMigrate reports whether stdin is an interactive
// terminal, per spec §4.8's "prompt (or proceed non-interactively if
// stdin is not a TTY)".
func ShouldPromptBeforeMigrate() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}

// Migrate converts the legacy on-disk layout for collection under dir
// into a `.vecdb`, preserving the original files as
// `.bak.<timestamp>/`. The legacy coder/hnsw graph is preserved verbatim
// as the "legacy_hnsw_export" section and is not converted into the
// native internal/hnsw format, neither here nor later (coder/hnsw's own
// public API exposes no per-node vector iterator); the ID mapping
// migrates directly since its shape is fully known.
func Migrate(dir, collection string, nonInteractive bool) (string, error) {
	if !nonInteractive && ShouldPromptBeforeMigrate() {
		fmt.Printf("legacy layout detected for collection %q; migrate to .vecdb now? [Y/n] ", collection)
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		if line != "" && line[0] != '\n' && line[0] != 'y' && line[0] != 'Y' {
			return "", fmt.Errorf("archive: migration declined for collection %q", collection)
		}
	}

	indexPath := filepath.Join(dir, collection+".hnsw")
	metaPath := indexPath + ".meta"

	metaFile, err := os.Open(metaPath)
	if err != nil {
		return "", fmt.Errorf("archive: open legacy metadata: %w", err)
	}
	var meta legacyMetadata
	err = gob.NewDecoder(metaFile).Decode(&meta)
	metaFile.Close()
	if err != nil {
		return "", fmt.Errorf("archive: decode legacy metadata: %w", err)
	}

	indexFile, err := os.Open(indexPath)
	if err != nil {
		return "", fmt.Errorf("archive: open legacy index: %w", err)
	}
	graph := hnsw.NewGraph[uint64]()
	err = graph.Import(bufio.NewReader(indexFile))
	indexFile.Close()
	if err != nil {
		return "", fmt.Errorf("archive: import legacy graph: %w", err)
	}

	var legacyExport bytes.Buffer
	if err := graph.Export(&legacyExport); err != nil {
		return "", fmt.Errorf("archive: re-export legacy graph: %w", err)
	}

	var idIndex bytes.Buffer
	if err := gob.NewEncoder(&idIndex).Encode(meta); err != nil {
		return "", fmt.Errorf("archive: encode migrated id index: %w", err)
	}

	backupDir := filepath.Join(dir, ".bak."+SnapshotTimestamp(time.Now()))
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create backup dir: %w", err)
	}
	if err := os.Rename(indexPath, filepath.Join(backupDir, filepath.Base(indexPath))); err != nil {
		return "", fmt.Errorf("archive: backing up legacy index: %w", err)
	}
	if err := os.Rename(metaPath, filepath.Join(backupDir, filepath.Base(metaPath))); err != nil {
		return "", fmt.Errorf("archive: backing up legacy metadata: %w", err)
	}

	vecdbPath := filepath.Join(dir, collection+".vecdb")
	sections := map[string][]byte{
		"legacy_hnsw_export": legacyExport.Bytes(),
		SectionIDIndex:       idIndex.Bytes(),
	}
	if err := Write(vecdbPath, sections); err != nil {
		return "", fmt.Errorf("archive: write migrated vecdb: %w", err)
	}

	return vecdbPath, nil
}
