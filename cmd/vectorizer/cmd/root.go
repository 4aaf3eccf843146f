// Package cmd provides the CLI commands for the vectorizer binary.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/logging"
)

var (
	flagDataDir  string
	flagConfig   string
	flagHost     string
	flagPort     int
	flagLogLevel string
	flagDebug    bool

	loggingCleanup func()
	cfg            *config.Config
)

// NewRootCmd creates the root command for the vectorizer CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vectorizer",
		Short: "Embedded vector database and hybrid search engine",
		Long: `Vectorizer stores collections of vectors and payloads, serves
dense (HNSW), sparse (BM25) and hybrid search over them, and can
ingest a watched directory tree automatically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: $HOME/.vectorizer/data)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "directory holding the project .vectorizer.yaml (default: current directory)")
	root.PersistentFlags().StringVar(&flagHost, "host", "", "bind host (overrides config)")
	root.PersistentFlags().IntVar(&flagPort, "port", 0, "bind port (overrides config)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides config)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging to ~/.vectorizer/logs/")

	root.PersistentPreRunE = loadConfigAndLogging
	root.PersistentPostRunE = stopLogging

	root.AddCommand(newStartCmd())
	root.AddCommand(newStorageCmd())
	root.AddCommand(newSnapshotCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newInitCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfigAndLogging layers config.Load over the project directory,
// applies the CLI flag overrides, and brings up slog per --debug the
// same way the teacher's root command wires logging.Setup.
func loadConfigAndLogging(_ *cobra.Command, _ []string) error {
	dir := "."
	if flagConfig != "" {
		dir = flagConfig
	}

	loaded, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cfg = loaded

	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagHost != "" {
		cfg.Server.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}
	if flagLogLevel != "" {
		cfg.Server.LogLevel = flagLogLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if flagDebug {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

func dataDir() string {
	if cfg != nil && cfg.DataDir != "" {
		return cfg.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vectorizer-data"
	}
	return home + "/.vectorizer/data"
}
