package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vectorizer-project/vectorizer/internal/archive"
	"github.com/vectorizer-project/vectorizer/internal/bootstrap"
	"github.com/vectorizer-project/vectorizer/internal/collection"
	"github.com/vectorizer-project/vectorizer/internal/output"
)

func newStorageCmd() *cobra.Command {
	storage := &cobra.Command{
		Use:   "storage",
		Short: "Inspect or repair a collection's on-disk archive",
	}

	var detailed bool
	info := &cobra.Command{
		Use:   "info <collection>",
		Short: "Print archive size and section summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withExitCode(exitStorageUnread, runStorageInfo(args[0], detailed))
		},
	}
	info.Flags().BoolVar(&detailed, "detailed", false, "include per-section byte sizes")
	storage.AddCommand(info)

	var fix bool
	verify := &cobra.Command{
		Use:   "verify <collection>",
		Short: "Verify a collection's archive section CRCs",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withExitCode(exitUnrecoverable, runStorageVerify(args[0], fix))
		},
	}
	verify.Flags().BoolVar(&fix, "fix", false, "on a corrupted archive, report that it cannot be repaired from the archive alone (no repair is performed)")
	storage.AddCommand(verify)

	migrate := &cobra.Command{
		Use:   "migrate <collection>",
		Short: "Migrate a legacy pre-vecdb collection layout to .vecdb",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withExitCode(exitMigrateFailed, runStorageMigrate(args[0]))
		},
	}
	storage.AddCommand(migrate)

	return storage
}

func runStorageInfo(name string, detailed bool) error {
	dir := dataDir()
	path := bootstrap.ArchivePath(dir, name)

	ar, err := archive.Open(path)
	if err != nil {
		return fmt.Errorf("storage info: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("storage info: %w", err)
	}

	sealedCfg, sealedLSN, err := collection.SealedConfig(ar.Sections)
	if err != nil {
		return fmt.Errorf("storage info: %w", err)
	}

	fmt.Printf("collection: %s\n", name)
	fmt.Printf("path:       %s\n", path)
	fmt.Printf("size:       %d bytes\n", info.Size())
	fmt.Printf("dim:        %d\n", sealedCfg.Dim)
	fmt.Printf("metric:     %s\n", sealedCfg.Metric)
	fmt.Printf("sealed_lsn: %d\n", sealedLSN)

	if detailed {
		fmt.Println("sections:")
		var names []string
		for n := range ar.Sections {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Printf("  %-20s %d bytes\n", n, len(ar.Sections[n]))
		}
	}
	return nil
}

func runStorageVerify(name string, fix bool) error {
	dir := dataDir()
	path := bootstrap.ArchivePath(dir, name)

	if _, err := archive.Open(path); err != nil {
		if !fix {
			return fmt.Errorf("storage verify: %s is corrupted: %w", name, err)
		}
		return fmt.Errorf("storage verify: %s is corrupted and could not be repaired from its archive alone; restore from a snapshot instead: %w", name, err)
	}

	output.New(os.Stdout).Successf("collection %q: archive sections verified OK", name)
	return nil
}

func runStorageMigrate(name string) error {
	dir := dataDir()
	if !archive.HasLegacyLayout(dir, name) {
		return fmt.Errorf("storage migrate: %q has no legacy layout to migrate", name)
	}

	vecdbPath, err := archive.Migrate(dir, name, cfg.Maintenance.NonInteractiveMigrate)
	if err != nil {
		return fmt.Errorf("storage migrate: %w", err)
	}

	output.New(os.Stdout).Successf("migrated collection %q to %s", name, vecdbPath)
	return nil
}

