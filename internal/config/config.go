// Package config loads and validates corecache's configuration: the full
// closed set of cache-tuning, compression, async-indexer, persistence, and
// performance options spec.md §6 requires every implementer to support.
//
// Grounded on the teacher's internal/config (YAML-via-gopkg.in/yaml.v3,
// XDG-aware user config path, project-config override, CORECACHE_* env
// var overrides, explicit-bounds Validate) - the loading/merge/validate
// architecture survives unchanged; only the fields it populates are new.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config is corecache's complete configuration.
type Config struct {
	Version     int                `yaml:"version" json:"version"`
	Paths       PathsConfig        `yaml:"paths" json:"paths"`
	Cache       CacheConfig        `yaml:"cache" json:"cache"`
	Compression CompressionConfig  `yaml:"compression" json:"compression"`
	Async       AsyncIndexerConfig `yaml:"async" json:"async"`
	Persistence PersistenceConfig  `yaml:"persistence" json:"persistence"`
	Performance PerformanceConfig  `yaml:"performance" json:"performance"`
	Server      ServerConfig       `yaml:"server" json:"server"`
}

// PathsConfig configures which paths the file watcher and indexer cover.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// CacheConfig tunes the three embedding-cache tiers (component H).
type CacheConfig struct {
	L1MaxSizeMB        int           `yaml:"l1_max_size_mb" json:"l1_max_size_mb"`
	L1MaxEntries       int           `yaml:"l1_max_entries" json:"l1_max_entries"`
	L2MaxSizeMB        int           `yaml:"l2_max_size_mb" json:"l2_max_size_mb"`
	L2MaxEntries       int           `yaml:"l2_max_entries" json:"l2_max_entries"`
	L3MaxSizeMB        int           `yaml:"l3_max_size_mb" json:"l3_max_size_mb"`
	PromotionThreshold int           `yaml:"promotion_threshold" json:"promotion_threshold"`
	DemotionTimeout    time.Duration `yaml:"demotion_timeout" json:"demotion_timeout"`
	BloomFilterSize    int           `yaml:"bloom_filter_size" json:"bloom_filter_size"`
	EnableStatistics   bool          `yaml:"enable_statistics" json:"enable_statistics"`
}

// CompressionConfig tunes the embedding compression codec (component I).
type CompressionConfig struct {
	CompressionLevel int  `yaml:"compression_level" json:"compression_level"`
	EnableDictionary bool `yaml:"enable_dictionary" json:"enable_dictionary"`
	EnableChecksum   bool `yaml:"enable_checksum" json:"enable_checksum"`
	ChunkSize        int  `yaml:"chunk_size" json:"chunk_size"`
}

// AsyncIndexerConfig tunes the background indexing pipeline driving the
// coordinator (component M) from watcher batches.
type AsyncIndexerConfig struct {
	MaxConcurrentTasks   int  `yaml:"max_concurrent_tasks" json:"max_concurrent_tasks"`
	FileTimeoutSecs      int  `yaml:"file_timeout_secs" json:"file_timeout_secs"`
	EmbeddingTimeoutSecs int  `yaml:"embedding_timeout_secs" json:"embedding_timeout_secs"`
	QueueCapacity        int  `yaml:"queue_capacity" json:"queue_capacity"`
	EnablePrioritization bool `yaml:"enable_prioritization" json:"enable_prioritization"`
	ShutdownTimeoutSecs  int  `yaml:"shutdown_timeout_secs" json:"shutdown_timeout_secs"`
}

// PersistenceConfig tunes on-disk durability for the frozen tier, vector
// index, and query-cache L3.
type PersistenceConfig struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	CacheDir           string `yaml:"cache_dir" json:"cache_dir"`
	EnableSegmentation bool   `yaml:"enable_segmentation" json:"enable_segmentation"`
	SegmentSizeKB      int    `yaml:"segment_size_kb" json:"segment_size_kb"`
	EnableWAL          bool   `yaml:"enable_wal" json:"enable_wal"`
	SyncIntervalSecs   int    `yaml:"sync_interval_secs" json:"sync_interval_secs"`
	EnableRecovery     bool   `yaml:"enable_recovery" json:"enable_recovery"`
}

// PerformanceConfig tunes parallelism and prefetch across the pipeline.
type PerformanceConfig struct {
	EnableParallelNodes  bool `yaml:"enable_parallel_nodes" json:"enable_parallel_nodes"`
	ParallelThreshold    int  `yaml:"parallel_threshold" json:"parallel_threshold"`
	EnableBatchEmbedding bool `yaml:"enable_batch_embedding" json:"enable_batch_embedding"`
	EmbeddingBatchSize   int  `yaml:"embedding_batch_size" json:"embedding_batch_size"`
	EnablePrefetch       bool `yaml:"enable_prefetch" json:"enable_prefetch"`
	PrefetchBufferSize   int  `yaml:"prefetch_buffer_size" json:"prefetch_buffer_size"`

	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures the MCP server surface.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded from indexing and watching.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/target/**",
	"**/.venv/**",
}

// NewConfig returns a Config with every option at its spec-sanctioned
// default.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Cache: CacheConfig{
			L1MaxSizeMB:        64,
			L1MaxEntries:       1000,
			L2MaxSizeMB:        256,
			L2MaxEntries:       4000,
			L3MaxSizeMB:        2048,
			PromotionThreshold: 2,
			DemotionTimeout:    5 * time.Minute,
			BloomFilterSize:    1 << 20,
			EnableStatistics:   true,
		},
		Compression: CompressionConfig{
			CompressionLevel: 3,
			EnableDictionary: false,
			EnableChecksum:   true,
			ChunkSize:        4096,
		},
		Async: AsyncIndexerConfig{
			MaxConcurrentTasks:   runtime.NumCPU(),
			FileTimeoutSecs:      10,
			EmbeddingTimeoutSecs: 30,
			QueueCapacity:        1000,
			EnablePrioritization: true,
			ShutdownTimeoutSecs:  15,
		},
		Persistence: PersistenceConfig{
			Enabled:            true,
			CacheDir:           defaultCacheDir(),
			EnableSegmentation: false,
			SegmentSizeKB:      4096,
			EnableWAL:          false,
			SyncIntervalSecs:   30,
			EnableRecovery:     true,
		},
		Performance: PerformanceConfig{
			EnableParallelNodes:  true,
			ParallelThreshold:    50,
			EnableBatchEmbedding: true,
			EmbeddingBatchSize:   32,
			EnablePrefetch:       true,
			PrefetchBufferSize:   4,
			IndexWorkers:         runtime.NumCPU(),
			WatchDebounce:        "500ms",
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8765,
			LogLevel:  "info",
		},
	}
}

// defaultCacheDir returns the default persistence directory.
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".corecache")
	}
	return filepath.Join(home, ".corecache")
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/corecache/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/corecache/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "corecache", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "corecache", "config.yaml")
	}
	return filepath.Join(home, ".config", "corecache", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// A missing file is not an error.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from dir, applying sources in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/corecache/config.yaml)
//  3. Project config (.corecache.yaml in dir)
//  4. Environment variables (CORECACHE_*)
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

// loadFromFile attempts to load configuration from .corecache.yaml or
// .corecache.yml under dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".corecache.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".corecache.yml")
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

// mergeWith merges non-zero numeric, duration, and string values from
// other into c; Paths.Exclude entries are appended to c's rather than
// replacing them. Boolean options are not merged, so a boolean set in a
// config file keeps c's value.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Cache.L1MaxSizeMB != 0 {
		c.Cache.L1MaxSizeMB = other.Cache.L1MaxSizeMB
	}
	if other.Cache.L1MaxEntries != 0 {
		c.Cache.L1MaxEntries = other.Cache.L1MaxEntries
	}
	if other.Cache.L2MaxSizeMB != 0 {
		c.Cache.L2MaxSizeMB = other.Cache.L2MaxSizeMB
	}
	if other.Cache.L2MaxEntries != 0 {
		c.Cache.L2MaxEntries = other.Cache.L2MaxEntries
	}
	if other.Cache.L3MaxSizeMB != 0 {
		c.Cache.L3MaxSizeMB = other.Cache.L3MaxSizeMB
	}
	if other.Cache.PromotionThreshold != 0 {
		c.Cache.PromotionThreshold = other.Cache.PromotionThreshold
	}
	if other.Cache.DemotionTimeout != 0 {
		c.Cache.DemotionTimeout = other.Cache.DemotionTimeout
	}
	if other.Cache.BloomFilterSize != 0 {
		c.Cache.BloomFilterSize = other.Cache.BloomFilterSize
	}

	if other.Compression.CompressionLevel != 0 {
		c.Compression.CompressionLevel = other.Compression.CompressionLevel
	}
	if other.Compression.ChunkSize != 0 {
		c.Compression.ChunkSize = other.Compression.ChunkSize
	}

	if other.Async.MaxConcurrentTasks != 0 {
		c.Async.MaxConcurrentTasks = other.Async.MaxConcurrentTasks
	}
	if other.Async.FileTimeoutSecs != 0 {
		c.Async.FileTimeoutSecs = other.Async.FileTimeoutSecs
	}
	if other.Async.EmbeddingTimeoutSecs != 0 {
		c.Async.EmbeddingTimeoutSecs = other.Async.EmbeddingTimeoutSecs
	}
	if other.Async.QueueCapacity != 0 {
		c.Async.QueueCapacity = other.Async.QueueCapacity
	}
	if other.Async.ShutdownTimeoutSecs != 0 {
		c.Async.ShutdownTimeoutSecs = other.Async.ShutdownTimeoutSecs
	}

	if other.Persistence.CacheDir != "" {
		c.Persistence.CacheDir = other.Persistence.CacheDir
	}
	if other.Persistence.SegmentSizeKB != 0 {
		c.Persistence.SegmentSizeKB = other.Persistence.SegmentSizeKB
	}
	if other.Persistence.SyncIntervalSecs != 0 {
		c.Persistence.SyncIntervalSecs = other.Persistence.SyncIntervalSecs
	}

	if other.Performance.ParallelThreshold != 0 {
		c.Performance.ParallelThreshold = other.Performance.ParallelThreshold
	}
	if other.Performance.EmbeddingBatchSize != 0 {
		c.Performance.EmbeddingBatchSize = other.Performance.EmbeddingBatchSize
	}
	if other.Performance.PrefetchBufferSize != 0 {
		c.Performance.PrefetchBufferSize = other.Performance.PrefetchBufferSize
	}
	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies CORECACHE_* environment variable overrides,
// the highest-precedence configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CORECACHE_L1_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.L1MaxEntries = n
		}
	}
	if v := os.Getenv("CORECACHE_COMPRESSION_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 22 {
			c.Compression.CompressionLevel = n
		}
	}
	if v := os.Getenv("CORECACHE_CACHE_DIR"); v != "" {
		c.Persistence.CacheDir = v
	}
	if v := os.Getenv("CORECACHE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CORECACHE_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("CORECACHE_MAX_CONCURRENT_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Async.MaxConcurrentTasks = n
		}
	}
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt.
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}
	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}
	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}
	return ProjectTypeUnknown
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .corecache.yaml/.yml file, falling back to startDir if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".corecache.yaml")) ||
			fileExists(filepath.Join(currentDir, ".corecache.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
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

// String returns a string representation of ProjectType.
func (p ProjectType) String() string { return string(p) }

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool { return p != ProjectTypeUnknown }

// Validate checks the entry counts, promotion threshold, compression,
// async-indexer, segment/sync, and performance options plus the server
// transport and log level, rejecting the configuration on the first
// violation. The *_max_size_mb sizes, bloom_filter_size,
// shutdown_timeout_secs, and server port are not checked.
func (c *Config) Validate() error {
	if c.Cache.L1MaxEntries < 0 {
		return fmt.Errorf("cache.l1_max_entries must be non-negative, got %d", c.Cache.L1MaxEntries)
	}
	if c.Cache.L2MaxEntries < 0 {
		return fmt.Errorf("cache.l2_max_entries must be non-negative, got %d", c.Cache.L2MaxEntries)
	}
	if c.Cache.PromotionThreshold < 0 {
		return fmt.Errorf("cache.promotion_threshold must be non-negative, got %d", c.Cache.PromotionThreshold)
	}

	if c.Compression.CompressionLevel < 1 || c.Compression.CompressionLevel > 22 {
		return fmt.Errorf("compression.compression_level must be in [1, 22], got %d", c.Compression.CompressionLevel)
	}
	if c.Compression.ChunkSize <= 0 {
		return fmt.Errorf("compression.chunk_size must be positive, got %d", c.Compression.ChunkSize)
	}

	if c.Async.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("async.max_concurrent_tasks must be positive, got %d", c.Async.MaxConcurrentTasks)
	}
	if c.Async.QueueCapacity <= 0 {
		return fmt.Errorf("async.queue_capacity must be positive, got %d", c.Async.QueueCapacity)
	}
	if c.Async.FileTimeoutSecs <= 0 {
		return fmt.Errorf("async.file_timeout_secs must be positive, got %d", c.Async.FileTimeoutSecs)
	}
	if c.Async.EmbeddingTimeoutSecs <= 0 {
		return fmt.Errorf("async.embedding_timeout_secs must be positive, got %d", c.Async.EmbeddingTimeoutSecs)
	}

	if c.Persistence.SegmentSizeKB <= 0 {
		return fmt.Errorf("persistence.segment_size_kb must be positive, got %d", c.Persistence.SegmentSizeKB)
	}
	if c.Persistence.SyncIntervalSecs <= 0 {
		return fmt.Errorf("persistence.sync_interval_secs must be positive, got %d", c.Persistence.SyncIntervalSecs)
	}

	if c.Performance.ParallelThreshold < 0 {
		return fmt.Errorf("performance.parallel_threshold must be non-negative, got %d", c.Performance.ParallelThreshold)
	}
	if c.Performance.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("performance.embedding_batch_size must be positive, got %d", c.Performance.EmbeddingBatchSize)
	}
	if c.Performance.PrefetchBufferSize < 0 {
		return fmt.Errorf("performance.prefetch_buffer_size must be non-negative, got %d", c.Performance.PrefetchBufferSize)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, if any.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
