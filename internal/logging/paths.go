package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.vectorizer/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vectorizer", "logs")
	}
	return filepath.Join(home, ".vectorizer", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// WatcherLogPath returns the path FindLogFileBySource checks for
// file-watcher logs. No code in this repository writes to it: the
// watcher logs through the default logger into the server log.
func WatcherLogPath() string {
	return filepath.Join(DefaultLogDir(), "watcher.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceGo is the main server logs (default).
	LogSourceGo LogSource = "go"
	// LogSourceWatcher is the file-watcher ingestion logs.
	LogSourceWatcher LogSource = "watcher"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.vectorizer/logs/server.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	// Try global path
	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Server may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceGo:
		goPath := DefaultLogPath()
		checked = append(checked, goPath)
		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}

	case LogSourceWatcher:
		watcherPath := WatcherLogPath()
		checked = append(checked, watcherPath)
		if _, err := os.Stat(watcherPath); err == nil {
			paths = append(paths, watcherPath)
		}

	case LogSourceAll:
		goPath := DefaultLogPath()
		watcherPath := WatcherLogPath()
		checked = append(checked, goPath, watcherPath)

		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}
		if _, err := os.Stat(watcherPath); err == nil {
			paths = append(paths, watcherPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: go, watcher, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "watcher":
		return LogSourceWatcher
	case "all":
		return LogSourceAll
	default:
		return LogSourceGo
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceGo:
		return "To generate server logs:\n  vectorizer --debug start"
	case LogSourceWatcher:
		return "Watcher events are written to the server log:\n  vectorizer --debug start (with file_watcher.enabled: true)"
	case LogSourceAll:
		return "To generate logs:\n  vectorizer --debug start (with file_watcher.enabled: true)"
	default:
		return ""
	}
}
