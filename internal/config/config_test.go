package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Store.Type != StoreTypeMemory {
		t.Errorf("store type mismatch: got %s, want %s", cfg.Store.Type, StoreTypeMemory)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad store type", func(c *Config) { c.Store.Type = "cloud" }},
		{"persistent without path", func(c *Config) { c.Store.Type = StoreTypePersistent; c.Store.Path = "" }},
		{"zero save interval", func(c *Config) { c.Store.SaveInterval = 0 }},
		{"bad processing mode", func(c *Config) { c.Store.ProcessingMode = "turbo" }},
		{"odd page size", func(c *Config) { c.Engine.PageSize = 1000 }},
		{"s3 without bucket", func(c *Config) { c.Backup.Type = "s3" }},
		{"drop above create", func(c *Config) { c.Index.DropThreshold = c.Index.CreateThreshold + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nanostore.yaml")
	content := `
store:
  type: persistent
  path: /tmp/people.db
  save_interval: 50
  processing_mode: fast
engine:
  busy_timeout: 2s
  cache_size: 4000
backup:
  type: s3
  s3:
    bucket: snapshots
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Store.Type != StoreTypePersistent || cfg.Store.Path != "/tmp/people.db" {
		t.Errorf("store mismatch: got %+v", cfg.Store)
	}
	if cfg.Store.SaveInterval != 50 {
		t.Errorf("save interval mismatch: got %d, want 50", cfg.Store.SaveInterval)
	}
	if cfg.Engine.BusyTimeout != 2*time.Second {
		t.Errorf("busy timeout mismatch: got %v, want 2s", cfg.Engine.BusyTimeout)
	}
	if cfg.Backup.S3.Bucket != "snapshots" {
		t.Errorf("bucket mismatch: got %q", cfg.Backup.S3.Bucket)
	}
	// Untouched fields keep their defaults.
	if cfg.Index.MaxIndexes != 20 {
		t.Errorf("max indexes mismatch: got %d, want 20", cfg.Index.MaxIndexes)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nanostore.json")
	if err := os.WriteFile(path, []byte(`{"store":{"type":"temporary","save_interval":10}}`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Store.Type != StoreTypeTemporary || cfg.Store.SaveInterval != 10 {
		t.Errorf("store mismatch: got %+v", cfg.Store)
	}
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nanostore.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NANOSTORE_STORE_TYPE", "persistent")
	t.Setenv("NANOSTORE_STORE_PATH", "/var/lib/nanostore/store.db")
	t.Setenv("NANOSTORE_SAVE_INTERVAL", "25")
	t.Setenv("NANOSTORE_BUSY_TIMEOUT", "750ms")
	t.Setenv("NANOSTORE_METRICS_ENABLED", "1")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Store.Type != StoreTypePersistent {
		t.Errorf("store type mismatch: got %s", cfg.Store.Type)
	}
	if cfg.Store.SaveInterval != 25 {
		t.Errorf("save interval mismatch: got %d, want 25", cfg.Store.SaveInterval)
	}
	if cfg.Engine.BusyTimeout != 750*time.Millisecond {
		t.Errorf("busy timeout mismatch: got %v", cfg.Engine.BusyTimeout)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled")
	}
}

func TestClone_Independent(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Store.SaveInterval = 99
	clone.Backup.S3.Bucket = "other"

	if cfg.Store.SaveInterval != 1 {
		t.Errorf("original modified: save interval %d", cfg.Store.SaveInterval)
	}
	if cfg.Backup.S3.Bucket != "" {
		t.Errorf("original modified: bucket %q", cfg.Backup.S3.Bucket)
	}
}
