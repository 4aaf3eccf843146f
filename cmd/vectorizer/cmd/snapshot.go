package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vectorizer-project/vectorizer/internal/archive"
	"github.com/vectorizer-project/vectorizer/internal/bootstrap"
	"github.com/vectorizer-project/vectorizer/internal/output"
)

func snapshotsDir() string {
	return filepath.Join(dataDir(), "snapshots")
}

func newSnapshotCmd() *cobra.Command {
	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "List, create, or restore point-in-time collection snapshots",
	}

	list := &cobra.Command{
		Use:   "list <collection>",
		Short: "List snapshot ids for a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withExitCode(exitNotFound, runSnapshotList(args[0]))
		},
	}
	snapshot.AddCommand(list)

	create := &cobra.Command{
		Use:   "create <collection>",
		Short: "Freeze the collection's current sealed archive as a new snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withExitCode(exitNotFound, runSnapshotCreate(args[0]))
		},
	}
	snapshot.AddCommand(create)

	var id string
	var force bool
	restore := &cobra.Command{
		Use:   "restore <collection>",
		Short: "Restore a collection's live archive from a prior snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withExitCode(exitNotFound, runSnapshotRestore(args[0], id, force))
		},
	}
	restore.Flags().StringVar(&id, "id", "", "snapshot id (timestamp directory name) to restore")
	restore.Flags().BoolVar(&force, "force", false, "overwrite the live archive even if it currently verifies OK")
	snapshot.AddCommand(restore)

	return snapshot
}

func runSnapshotList(name string) error {
	dir := snapshotsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("no snapshots for %q\n", name)
			return nil
		}
		return fmt.Errorf("snapshot list: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), name+".vecdb")); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	if len(ids) == 0 {
		fmt.Printf("no snapshots for %q\n", name)
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runSnapshotCreate(name string) error {
	dir := dataDir()
	vecdbPath := bootstrap.ArchivePath(dir, name)
	if _, err := os.Stat(vecdbPath); err != nil {
		return fmt.Errorf("snapshot create: %w", err)
	}

	timestamp := archive.SnapshotTimestamp(time.Now())
	dst, err := archive.CreateSnapshot(vecdbPath, snapshotsDir(), name, timestamp)
	if err != nil {
		return fmt.Errorf("snapshot create: %w", err)
	}

	if _, err := archive.PruneRetention(snapshotsDir(),
		cfg.Snapshots.MaxSnapshots,
		time.Duration(cfg.Snapshots.MaxAgeHours)*time.Hour); err != nil {
		return fmt.Errorf("snapshot create: pruning retention: %w", err)
	}

	output.New(os.Stdout).Successf("created snapshot %s -> %s", timestamp, dst)
	return nil
}

func runSnapshotRestore(name, id string, force bool) error {
	if id == "" {
		return fmt.Errorf("snapshot restore: --id is required")
	}

	snapshotPath := filepath.Join(snapshotsDir(), id, name+".vecdb")
	if _, err := os.Stat(snapshotPath); err != nil {
		return fmt.Errorf("snapshot restore: %w", err)
	}

	liveVecdbPath := bootstrap.ArchivePath(dataDir(), name)
	if _, err := os.Stat(liveVecdbPath); err == nil && !force {
		if _, verifyErr := archive.Open(liveVecdbPath); verifyErr == nil {
			return fmt.Errorf("snapshot restore: live archive for %q verifies OK; pass --force to overwrite anyway", name)
		}
	}

	if err := archive.Restore(snapshotPath, liveVecdbPath); err != nil {
		return fmt.Errorf("snapshot restore: %w", err)
	}

	output.New(os.Stdout).Successf("restored collection %q from snapshot %s", name, id)
	return nil
}
