// Package config provides the configuration for a document store session.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tiendc/go-deepcopy"
	"gopkg.in/yaml.v3"
)

// StoreType selects where the backing database lives.
type StoreType string

const (
	// StoreTypeMemory keeps the database in RAM. Contents are lost on Close.
	StoreTypeMemory StoreType = "memory"
	// StoreTypeTemporary keeps the database in a temporary file removed on Close.
	StoreTypeTemporary StoreType = "temporary"
	// StoreTypePersistent keeps the database at Store.Path.
	StoreTypePersistent StoreType = "persistent"
)

// ProcessingMode trades durability for write speed.
type ProcessingMode string

const (
	// ProcessingDefault is slower but safe.
	ProcessingDefault ProcessingMode = "default"
	// ProcessingFast disables fsync and keeps the journal in memory.
	ProcessingFast ProcessingMode = "fast"
)

// Config holds the configuration of a store and its tooling.
type Config struct {
	// DataDir is the base directory for store and backup files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Store configuration
	Store StoreConfig `json:"store" yaml:"store"`

	// Engine holds SQLite tuning knobs passed through as pragmas
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Index configuration for attribute-path secondary indexes
	Index IndexConfig `json:"index" yaml:"index"`

	// Backup configuration
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// StoreConfig holds the document store configuration.
type StoreConfig struct {
	// Type is the store type: memory, temporary, persistent
	Type StoreType `json:"type" yaml:"type"`

	// Path is the database file (persistent type only)
	Path string `json:"path" yaml:"path"`

	// SaveInterval is the number of added objects buffered before a flush (1 = write-through)
	SaveInterval int `json:"save_interval" yaml:"save_interval"`

	// ProcessingMode is default or fast
	ProcessingMode ProcessingMode `json:"processing_mode" yaml:"processing_mode"`
}

// EngineConfig holds SQLite tuning passed through untouched.
type EngineConfig struct {
	// BusyTimeout is how long a statement waits on a locked database
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`

	// CacheSize is the page cache size in pages (0 = engine default)
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// PageSize is the database page size in bytes (0 = engine default)
	PageSize int `json:"page_size" yaml:"page_size"`

	// JournalMode: DELETE, TRUNCATE, PERSIST, MEMORY, WAL, OFF
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`

	// Synchronous: OFF, NORMAL, FULL, EXTRA (empty = derived from processing mode)
	Synchronous string `json:"synchronous" yaml:"synchronous"`

	// TempStore: DEFAULT, FILE, MEMORY
	TempStore string `json:"temp_store" yaml:"temp_store"`

	// Encoding: UTF-8 or UTF-16 (only effective on a new database)
	Encoding string `json:"encoding" yaml:"encoding"`
}

// IndexConfig holds the attribute-index tuning thresholds.
type IndexConfig struct {
	// CreateThreshold is the predicate count at which an attribute gets an index
	CreateThreshold int64 `json:"create_threshold" yaml:"create_threshold"`

	// DropThreshold is the predicate count under which an attribute index is dropped
	DropThreshold int64 `json:"drop_threshold" yaml:"drop_threshold"`

	// MaxIndexes caps the number of attribute indexes
	MaxIndexes int `json:"max_indexes" yaml:"max_indexes"`

	// StatsWindow is how long attribute usage is remembered
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// BackupConfig holds backup destination configuration.
type BackupConfig struct {
	// Type is the destination type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local destination directory (for local type)
	Path string `json:"path" yaml:"path"`

	// Compress enables snappy compression of the database image
	Compress bool `json:"compress" yaml:"compress"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Env selects the zap preset: production or development
	Env string `json:"env" yaml:"env"`

	// Level overrides the preset level (debug, info, warn, error)
	Level string `json:"level" yaml:"level"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled registers store metrics with the default registry
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace prefixes every metric name
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultConfig returns the default configuration: an in-memory store.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/nanostore",
		Store: StoreConfig{
			Type:           StoreTypeMemory,
			SaveInterval:   1,
			ProcessingMode: ProcessingDefault,
		},
		Engine: EngineConfig{
			BusyTimeout: 5 * time.Second,
			JournalMode: "DELETE",
			TempStore:   "DEFAULT",
			Encoding:    "UTF-8",
		},
		Index: IndexConfig{
			CreateThreshold: 100,
			DropThreshold:   10,
			MaxIndexes:      20,
			StatsWindow:     24 * time.Hour,
		},
		Backup: BackupConfig{
			Type:     "local",
			Compress: true,
		},
		Logging: LoggingConfig{
			Env: "production",
		},
		Metrics: MetricsConfig{
			Namespace: "nanostore",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/nanostore"
	}
	if c.Store.Type == StoreTypePersistent && c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "store.db")
	}
	if c.Backup.Path == "" {
		c.Backup.Path = filepath.Join(c.DataDir, "backups")
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := &Config{}
	if err := deepcopy.Copy(clone, c); err != nil {
		cp := *c
		return &cp
	}
	return clone
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case StoreTypeMemory, StoreTypeTemporary:
	case StoreTypePersistent:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required when store type is persistent")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory, temporary, or persistent)", c.Store.Type)
	}

	switch c.Store.ProcessingMode {
	case ProcessingDefault, ProcessingFast:
	default:
		return fmt.Errorf("invalid processing mode: %s (must be default or fast)", c.Store.ProcessingMode)
	}

	if c.Store.SaveInterval < 1 {
		return fmt.Errorf("store.save_interval must be at least 1, got %d", c.Store.SaveInterval)
	}

	if c.Engine.BusyTimeout < 0 {
		return fmt.Errorf("engine.busy_timeout must not be negative")
	}

	if c.Engine.PageSize != 0 && (c.Engine.PageSize < 512 || c.Engine.PageSize > 65536 || c.Engine.PageSize&(c.Engine.PageSize-1) != 0) {
		return fmt.Errorf("engine.page_size must be a power of two between 512 and 65536, got %d", c.Engine.PageSize)
	}

	if c.Backup.Type != "local" && c.Backup.Type != "s3" {
		return fmt.Errorf("invalid backup type: %s (must be local or s3)", c.Backup.Type)
	}

	if c.Backup.Type == "s3" && c.Backup.S3.Bucket == "" {
		return fmt.Errorf("backup.s3.bucket is required when backup type is s3")
	}

	if c.Index.DropThreshold > c.Index.CreateThreshold {
		return fmt.Errorf("index.drop_threshold (%d) must not exceed index.create_threshold (%d)",
			c.Index.DropThreshold, c.Index.CreateThreshold)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the NANOSTORE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("NANOSTORE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Store configuration
	if v := os.Getenv("NANOSTORE_STORE_TYPE"); v != "" {
		cfg.Store.Type = StoreType(v)
	}
	if v := os.Getenv("NANOSTORE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("NANOSTORE_SAVE_INTERVAL"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Store.SaveInterval)
	}
	if v := os.Getenv("NANOSTORE_PROCESSING_MODE"); v != "" {
		cfg.Store.ProcessingMode = ProcessingMode(v)
	}

	// Engine configuration
	if v := os.Getenv("NANOSTORE_BUSY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.BusyTimeout = d
		}
	}
	if v := os.Getenv("NANOSTORE_CACHE_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Engine.CacheSize)
	}
	if v := os.Getenv("NANOSTORE_JOURNAL_MODE"); v != "" {
		cfg.Engine.JournalMode = v
	}

	// Backup configuration
	if v := os.Getenv("NANOSTORE_BACKUP_TYPE"); v != "" {
		cfg.Backup.Type = v
	}
	if v := os.Getenv("NANOSTORE_BACKUP_PATH"); v != "" {
		cfg.Backup.Path = v
	}
	if v := os.Getenv("NANOSTORE_S3_BUCKET"); v != "" {
		cfg.Backup.S3.Bucket = v
	}
	if v := os.Getenv("NANOSTORE_S3_REGION"); v != "" {
		cfg.Backup.S3.Region = v
	}
	if v := os.Getenv("NANOSTORE_S3_ENDPOINT"); v != "" {
		cfg.Backup.S3.Endpoint = v
	}

	// Logging configuration
	if v := os.Getenv("NANOSTORE_LOG_ENV"); v != "" {
		cfg.Logging.Env = v
	}
	if v := os.Getenv("NANOSTORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NANOSTORE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Store.Type == StoreTypePersistent && c.Store.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	if c.Backup.Type == "local" {
		dirs = append(dirs, c.Backup.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
