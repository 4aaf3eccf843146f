// Package config loads and validates Vectorizer's layered YAML configuration.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Metric identifies a vector similarity metric (spec §3 CollectionConfig.metric).
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dot_product"
)

// StorageBackend selects the dense vector storage backend (spec §3 CollectionConfig.storage).
type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageMmap   StorageBackend = "mmap"
)

// QuantizationKind selects the quantization codec (spec §4.2).
type QuantizationKind string

const (
	QuantizationNone    QuantizationKind = "none"
	QuantizationScalar  QuantizationKind = "scalar"
	QuantizationProduct QuantizationKind = "product"
	QuantizationBinary  QuantizationKind = "binary"
)

// RoutingMode selects the request router's topology (spec §4.12).
type RoutingMode string

const (
	RoutingStandalone    RoutingMode = "standalone"
	RoutingMasterReplica RoutingMode = "master_replica"
	RoutingCluster       RoutingMode = "cluster"
)

// ReadPreference controls which node class serves a read (spec §4.12).
type ReadPreference string

const (
	ReadPreferMaster  ReadPreference = "master"
	ReadPreferReplica ReadPreference = "replica"
	ReadPreferNearest ReadPreference = "nearest"
)

// FsyncPolicy controls WAL durability cadence (spec §4.9).
type FsyncPolicy string

const (
	FsyncAlways     FsyncPolicy = "always"
	FsyncInterval   FsyncPolicy = "interval_ms"
	FsyncOnBatch    FsyncPolicy = "on_batch"
)

// Config is the complete, layered Vectorizer configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	DataDir     string            `yaml:"data_dir" json:"data_dir"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Collections CollectionDefaults `yaml:"collections" json:"collections"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	FileWatcher FileWatcherConfig `yaml:"file_watcher" json:"file_watcher"`
	Durability  DurabilityConfig  `yaml:"durability" json:"durability"`
	Snapshots   SnapshotConfig    `yaml:"snapshots" json:"snapshots"`
	Maintenance MaintenanceConfig `yaml:"maintenance" json:"maintenance"`
	Router      RouterConfig      `yaml:"router" json:"router"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
}

// ServerConfig configures listener bind parameters (spec §6.5/§6.6).
type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	Workers  int    `yaml:"workers" json:"workers"`
}

// CollectionDefaults are applied to `create_collection` requests that omit a field.
type CollectionDefaults struct {
	Dim            int              `yaml:"dim" json:"dim"`
	Metric         Metric           `yaml:"metric" json:"metric"`
	Storage        StorageBackend   `yaml:"storage" json:"storage"`
	Quantization   QuantizationKind `yaml:"quantization" json:"quantization"`
	HNSWM          int              `yaml:"hnsw_m" json:"hnsw_m"`
	EfConstruction int              `yaml:"hnsw_ef_construction" json:"hnsw_ef_construction"`
	EfSearch       int              `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
	Seed           uint64           `yaml:"hnsw_seed" json:"hnsw_seed"`
}

// SearchConfig configures the hybrid ranking pipeline (spec §4.11).
type SearchConfig struct {
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	RRFConstant    int     `yaml:"rrf_constant" json:"rrf_constant"`
	FusionAlgo     string  `yaml:"fusion_algorithm" json:"fusion_algorithm"` // "rrf" | "weighted_sum"
	SparseBackend  string  `yaml:"sparse_backend" json:"sparse_backend"`     // "native" | "bleve" | "sqlite"
	MaxResults     int     `yaml:"max_results" json:"max_results"`
	MMRLambda      float64 `yaml:"mmr_lambda" json:"mmr_lambda"`
	MMREnabled     bool    `yaml:"mmr_enabled" json:"mmr_enabled"`
	DedupThreshold float64 `yaml:"dedup_threshold" json:"dedup_threshold"`
	ExpansionMax   int     `yaml:"expansion_max_variants" json:"expansion_max_variants"`
}

// EmbeddingsConfig configures the default embedding provider (spec §4.5).
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider" json:"provider"` // "static" is the only built-in provider in scope
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// FileWatcherConfig mirrors spec §6.4, plus InitialScan, a supplemental
// field controlling whether `start` walks each watch path once at
// startup so files already on disk are ingested instead of only ones
// that change after the watcher attaches.
type FileWatcherConfig struct {
	Enabled            bool                `yaml:"enabled" json:"enabled"`
	WatchPaths         []string            `yaml:"watch_paths" json:"watch_paths"`
	DebounceMs         int                 `yaml:"debounce_ms" json:"debounce_ms"`
	IncludePatterns    []string            `yaml:"include_patterns" json:"include_patterns"`
	ExcludePatterns    []string            `yaml:"exclude_patterns" json:"exclude_patterns"`
	DefaultCollection  string              `yaml:"default_collection" json:"default_collection"`
	CollectionMapping  []CollectionMapping `yaml:"collection_mapping" json:"collection_mapping"`
	MaxFileSizeBytes   int64               `yaml:"max_file_size_bytes" json:"max_file_size_bytes"`
	QueueCapacity      int                 `yaml:"queue_capacity" json:"queue_capacity"`
	PauseWaitThreshold time.Duration       `yaml:"pause_wait_threshold" json:"pause_wait_threshold"`
	InitialScan        bool                `yaml:"initial_scan" json:"initial_scan"`
}

// CollectionMapping maps a glob pattern to a target collection name.
type CollectionMapping struct {
	Pattern    string `yaml:"pattern" json:"pattern"`
	Collection string `yaml:"collection" json:"collection"`
}

// DurabilityConfig configures the WAL / auto-save scheduler (spec §4.9).
type DurabilityConfig struct {
	FsyncPolicy          FsyncPolicy `yaml:"fsync_policy" json:"fsync_policy"`
	FsyncIntervalMs      int         `yaml:"fsync_interval_ms" json:"fsync_interval_ms"`
	AutoSaveIntervalSecs int         `yaml:"auto_save_interval_secs" json:"auto_save_interval_secs"`
	MinOperations        int         `yaml:"min_operations" json:"min_operations"`
}

// SnapshotConfig configures timed snapshots and retention (spec §4.8).
type SnapshotConfig struct {
	IntervalSecs int `yaml:"interval_secs" json:"interval_secs"`
	MaxSnapshots int `yaml:"max_snapshots" json:"max_snapshots"`
	MaxAgeHours  int `yaml:"max_age_hours" json:"max_age_hours"`
}

// MaintenanceConfig configures cleanup and legacy-migration behavior (spec §4.7/§4.8).
type MaintenanceConfig struct {
	StartupCleanupEmpty    bool    `yaml:"startup_cleanup_empty" json:"startup_cleanup_empty"`
	CleanupGraceMultiplier int     `yaml:"cleanup_grace_multiplier" json:"cleanup_grace_multiplier"`
	NonInteractiveMigrate  bool    `yaml:"non_interactive_migrate" json:"non_interactive_migrate"`
	CompactionOrphanRatio  float64 `yaml:"compaction_orphan_ratio" json:"compaction_orphan_ratio"`
}

// RouterConfig configures the request router's topology (spec §4.12).
type RouterConfig struct {
	Mode                    RoutingMode    `yaml:"mode" json:"mode"`
	ReadPreference          ReadPreference `yaml:"read_preference" json:"read_preference"`
	ReplicaFallbackToMaster bool           `yaml:"replica_fallback_to_master" json:"replica_fallback_to_master"`
	Replicas                []string       `yaml:"replicas" json:"replicas"`
	ShardCount              int            `yaml:"shard_count" json:"shard_count"`
	VirtualNodesPerShard    int            `yaml:"virtual_nodes_per_shard" json:"virtual_nodes_per_shard"`
}

// PerformanceConfig configures resource tuning unrelated to any single subsystem.
type PerformanceConfig struct {
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	MemoryLimit   string `yaml:"memory_limit" json:"memory_limit"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8765,
			LogLevel: "info",
			Workers:  runtime.NumCPU(),
		},
		Collections: CollectionDefaults{
			Dim:            768,
			Metric:         MetricCosine,
			Storage:        StorageMemory,
			Quantization:   QuantizationNone,
			HNSWM:          16,
			EfConstruction: 128,
			EfSearch:       64,
			Seed:           42,
		},
		Search: SearchConfig{
			BM25Weight:     0.5,
			SemanticWeight: 0.5,
			RRFConstant:    60,
			FusionAlgo:     "rrf",
			SparseBackend:  "native",
			MaxResults:     20,
			MMRLambda:      0.5,
			MMREnabled:     true,
			DedupThreshold: 0.97,
			ExpansionMax:   3,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Dimensions: 768,
			BatchSize:  32,
			CacheSize:  1000,
			Timeout:    30 * time.Second,
		},
		FileWatcher: FileWatcherConfig{
			Enabled:            false,
			DebounceMs:         1000,
			ExcludePatterns:    defaultExcludePatterns,
			MaxFileSizeBytes:   100 * 1024 * 1024,
			QueueCapacity:      1000,
			PauseWaitThreshold: 5 * time.Second,
			InitialScan:        true,
		},
		Durability: DurabilityConfig{
			FsyncPolicy:          FsyncInterval,
			FsyncIntervalMs:      1000,
			AutoSaveIntervalSecs: 30,
			MinOperations:        1000,
		},
		Snapshots: SnapshotConfig{
			IntervalSecs: 3600,
			MaxSnapshots: 24,
			MaxAgeHours:  168,
		},
		Maintenance: MaintenanceConfig{
			StartupCleanupEmpty:    false,
			CleanupGraceMultiplier: 3,
			NonInteractiveMigrate:  false,
			CompactionOrphanRatio:  0.2,
		},
		Router: RouterConfig{
			Mode:                    RoutingStandalone,
			ReadPreference:          ReadPreferMaster,
			ReplicaFallbackToMaster: false,
			VirtualNodesPerShard:    128,
		},
		Performance: PerformanceConfig{
			IndexWorkers:  runtime.NumCPU(),
			MemoryLimit:   "auto",
			SQLiteCacheMB: 64,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vectorizer", "data")
	}
	return filepath.Join(home, ".vectorizer", "data")
}

// GetUserConfigPath returns ~/.config/vectorizer/config.yaml (XDG-aware).
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vectorizer", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vectorizer", "config.yaml")
	}
	return filepath.Join(home, ".config", "vectorizer", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// GetUserConfigDir returns the directory containing the user config file.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .vectorizer.yaml/.vectorizer.yml project config, returning the first
// directory that has one. Falls back to the absolute form of startDir if
// neither is found before reaching the filesystem root.
func FindProjectRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s: %w", startDir, err)
	}

	dir := abs
	for {
		if dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		if fileExists(filepath.Join(dir, ".vectorizer.yaml")) || fileExists(filepath.Join(dir, ".vectorizer.yml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := &Config{}
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/vectorizer/config.yaml)
//  3. Project config (.vectorizer.yaml in dir)
//  4. Environment variables (VECTORIZER_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".vectorizer.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".vectorizer.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.Workers != 0 {
		c.Server.Workers = other.Server.Workers
	}

	if other.Collections.Dim != 0 {
		c.Collections.Dim = other.Collections.Dim
	}
	if other.Collections.Metric != "" {
		c.Collections.Metric = other.Collections.Metric
	}
	if other.Collections.Storage != "" {
		c.Collections.Storage = other.Collections.Storage
	}
	if other.Collections.Quantization != "" {
		c.Collections.Quantization = other.Collections.Quantization
	}
	if other.Collections.HNSWM != 0 {
		c.Collections.HNSWM = other.Collections.HNSWM
	}
	if other.Collections.EfConstruction != 0 {
		c.Collections.EfConstruction = other.Collections.EfConstruction
	}
	if other.Collections.EfSearch != 0 {
		c.Collections.EfSearch = other.Collections.EfSearch
	}
	if other.Collections.Seed != 0 {
		c.Collections.Seed = other.Collections.Seed
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.FusionAlgo != "" {
		c.Search.FusionAlgo = other.Search.FusionAlgo
	}
	if other.Search.SparseBackend != "" {
		c.Search.SparseBackend = other.Search.SparseBackend
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.MMRLambda != 0 {
		c.Search.MMRLambda = other.Search.MMRLambda
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}

	if other.FileWatcher.Enabled {
		c.FileWatcher.Enabled = other.FileWatcher.Enabled
	}
	if len(other.FileWatcher.WatchPaths) > 0 {
		c.FileWatcher.WatchPaths = other.FileWatcher.WatchPaths
	}
	if other.FileWatcher.DebounceMs != 0 {
		c.FileWatcher.DebounceMs = other.FileWatcher.DebounceMs
	}
	if len(other.FileWatcher.IncludePatterns) > 0 {
		c.FileWatcher.IncludePatterns = other.FileWatcher.IncludePatterns
	}
	if len(other.FileWatcher.ExcludePatterns) > 0 {
		c.FileWatcher.ExcludePatterns = append(c.FileWatcher.ExcludePatterns, other.FileWatcher.ExcludePatterns...)
	}
	if other.FileWatcher.DefaultCollection != "" {
		c.FileWatcher.DefaultCollection = other.FileWatcher.DefaultCollection
	}
	if len(other.FileWatcher.CollectionMapping) > 0 {
		c.FileWatcher.CollectionMapping = other.FileWatcher.CollectionMapping
	}
	if other.FileWatcher.MaxFileSizeBytes != 0 {
		c.FileWatcher.MaxFileSizeBytes = other.FileWatcher.MaxFileSizeBytes
	}
	if other.FileWatcher.InitialScan {
		c.FileWatcher.InitialScan = other.FileWatcher.InitialScan
	}

	if other.Durability.FsyncPolicy != "" {
		c.Durability.FsyncPolicy = other.Durability.FsyncPolicy
	}
	if other.Durability.AutoSaveIntervalSecs != 0 {
		c.Durability.AutoSaveIntervalSecs = other.Durability.AutoSaveIntervalSecs
	}
	if other.Durability.MinOperations != 0 {
		c.Durability.MinOperations = other.Durability.MinOperations
	}

	if other.Snapshots.IntervalSecs != 0 {
		c.Snapshots.IntervalSecs = other.Snapshots.IntervalSecs
	}
	if other.Snapshots.MaxSnapshots != 0 {
		c.Snapshots.MaxSnapshots = other.Snapshots.MaxSnapshots
	}
	if other.Snapshots.MaxAgeHours != 0 {
		c.Snapshots.MaxAgeHours = other.Snapshots.MaxAgeHours
	}

	if other.Maintenance.StartupCleanupEmpty {
		c.Maintenance.StartupCleanupEmpty = other.Maintenance.StartupCleanupEmpty
	}
	if other.Maintenance.CleanupGraceMultiplier != 0 {
		c.Maintenance.CleanupGraceMultiplier = other.Maintenance.CleanupGraceMultiplier
	}

	if other.Router.Mode != "" {
		c.Router.Mode = other.Router.Mode
	}
	if other.Router.ReadPreference != "" {
		c.Router.ReadPreference = other.Router.ReadPreference
	}
	if other.Router.ReplicaFallbackToMaster {
		c.Router.ReplicaFallbackToMaster = other.Router.ReplicaFallbackToMaster
	}
	if len(other.Router.Replicas) > 0 {
		c.Router.Replicas = other.Router.Replicas
	}
	if other.Router.ShardCount != 0 {
		c.Router.ShardCount = other.Router.ShardCount
	}

	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.MemoryLimit != "" {
		c.Performance.MemoryLimit = other.Performance.MemoryLimit
	}
	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}
}

// applyEnvOverrides applies VECTORIZER_* environment variable overrides (spec §6.6).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VECTORIZER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("VECTORIZER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("VECTORIZER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("VECTORIZER_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("VECTORIZER_WORKERS"); v != "" {
		if w, err := strconv.Atoi(v); err == nil {
			c.Server.Workers = w
		}
	}
	if v := os.Getenv("VECTORIZER_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("VECTORIZER_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("VECTORIZER_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("search.bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("search.semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if sum := c.Search.BM25Weight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.bm25_weight + search.semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}

	switch c.Collections.Metric {
	case MetricCosine, MetricEuclidean, MetricDotProduct:
	default:
		return fmt.Errorf("collections.metric must be cosine, euclidean, or dot_product, got %s", c.Collections.Metric)
	}
	switch c.Collections.Storage {
	case StorageMemory, StorageMmap:
	default:
		return fmt.Errorf("collections.storage must be memory or mmap, got %s", c.Collections.Storage)
	}
	if c.Collections.Dim <= 0 || c.Collections.Dim > 65535 {
		return fmt.Errorf("collections.dim must be in 1..65535, got %d", c.Collections.Dim)
	}

	switch c.Router.Mode {
	case RoutingStandalone, RoutingMasterReplica, RoutingCluster:
	default:
		return fmt.Errorf("router.mode must be standalone, master_replica, or cluster, got %s", c.Router.Mode)
	}
	// Cluster mode requires mmap storage: cache memory limits must be enforceable (spec §5).
	if c.Router.Mode == RoutingCluster && c.Collections.Storage != StorageMmap {
		return fmt.Errorf("router.mode=cluster requires collections.storage=mmap")
	}

	if c.FileWatcher.Enabled && c.FileWatcher.DefaultCollection == "" && len(c.FileWatcher.CollectionMapping) == 0 {
		return fmt.Errorf("file_watcher.default_collection is mandatory when file_watcher.enabled is true and no collection_mapping is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be debug, info, warn, or error, got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeNewDefaults fills in zero-valued fields that were added to Config in
// a later schema version than the one a loaded user config was written
// against, returning the dotted names of the fields it set. Boolean fields
// are skipped since a zero value of false is indistinguishable from an
// explicit false in the loaded file.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Search.RRFConstant == 0 {
		c.Search.RRFConstant = defaults.Search.RRFConstant
		added = append(added, "search.rrf_constant")
	}
	if c.Search.DedupThreshold == 0 {
		c.Search.DedupThreshold = defaults.Search.DedupThreshold
		added = append(added, "search.dedup_threshold")
	}
	if c.Search.ExpansionMax == 0 {
		c.Search.ExpansionMax = defaults.Search.ExpansionMax
		added = append(added, "search.expansion_max_variants")
	}
	if c.Search.MMRLambda == 0 {
		c.Search.MMRLambda = defaults.Search.MMRLambda
		added = append(added, "search.mmr_lambda")
	}
	if c.Performance.SQLiteCacheMB == 0 {
		c.Performance.SQLiteCacheMB = defaults.Performance.SQLiteCacheMB
		added = append(added, "performance.sqlite_cache_mb")
	}
	if c.FileWatcher.PauseWaitThreshold == 0 {
		c.FileWatcher.PauseWaitThreshold = defaults.FileWatcher.PauseWaitThreshold
		added = append(added, "file_watcher.pause_wait_threshold")
	}
	if c.Router.VirtualNodesPerShard == 0 {
		c.Router.VirtualNodesPerShard = defaults.Router.VirtualNodesPerShard
		added = append(added, "router.virtual_nodes_per_shard")
	}

	return added
}

// LoadUserConfig loads the user configuration file, or returns (nil, nil) if absent.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
