package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CreateSnapshot freezes the sealed .vecdb at vecdbPath into
// <snapshotsDir>/<timestamp>/<collection>.vecdb (spec §4.8). It
// hardlinks when the filesystem supports it (same-device, no
// cross-device link error) and falls back to a byte copy otherwise. The
// timestamp directory name is chosen by the caller (the `snapshot create`
// command) rather than read from the clock here.
func CreateSnapshot(vecdbPath, snapshotsDir, collection, timestamp string) (string, error) {
	dir := filepath.Join(snapshotsDir, timestamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create snapshot dir: %w", err)
	}

	dst := filepath.Join(dir, collection+".vecdb")

	if err := os.Link(vecdbPath, dst); err == nil {
		return dst, nil
	}

	if err := copyFile(vecdbPath, dst); err != nil {
		return "", fmt.Errorf("archive: snapshot copy: %w", err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// Restore replaces liveVecdbPath with a copy of the snapshot at
// snapshotPath after verifying the snapshot's own section CRCs, so a
// corrupted snapshot is never promoted to live.
func Restore(snapshotPath, liveVecdbPath string) error {
	if _, err := Open(snapshotPath); err != nil {
		return fmt.Errorf("archive: refusing to restore corrupt snapshot: %w", err)
	}
	return copyFile(snapshotPath, liveVecdbPath)
}

// PruneRetention removes snapshot directories under snapshotsDir beyond
// maxCount or older than maxAge, whichever is stricter (spec §4.8):
// a snapshot survives only if it is within both the count budget and
// the age budget.
func PruneRetention(snapshotsDir string, maxCount int, maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(snapshotsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: read snapshots dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names))) // timestamp names sort lexicographically newest-first

	now := time.Now()
	var removed []string
	for i, name := range names {
		age := snapshotAge(now, name)
		tooOld := maxAge > 0 && age > maxAge
		tooMany := maxCount > 0 && i >= maxCount
		if tooOld || tooMany {
			path := filepath.Join(snapshotsDir, name)
			if err := os.RemoveAll(path); err != nil {
				return removed, fmt.Errorf("archive: pruning %s: %w", path, err)
			}
			removed = append(removed, name)
		}
	}
	return removed, nil
}

// snapshotAge parses a timestamp directory name formatted as
// time.RFC3339 with colons replaced by '-' (filesystem-safe), returning
// a very large age (always prunable) if it cannot be parsed.
func snapshotAge(now time.Time, name string) time.Duration {
	normalized := strings.ReplaceAll(name, "-", ":")
	// The date portion (YYYY:MM:DD) must not have its hyphens touched;
	// only the time portion's separators are colons in RFC3339, so we
	// reconstruct by replacing just the last two dashes introduced for
	// filesystem safety.
	parts := strings.SplitN(name, "T", 2)
	if len(parts) != 2 {
		return time.Duration(1<<63 - 1)
	}
	normalized = parts[0] + "T" + strings.ReplaceAll(parts[1], "-", ":")

	t, err := time.Parse(time.RFC3339, normalized)
	if err != nil {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(t)
}

// SnapshotTimestamp formats t as a filesystem-safe RFC3339 directory
// name (colons are not portable on some filesystems).
func SnapshotTimestamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format(time.RFC3339), ":", "-")
}
