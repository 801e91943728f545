package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Backoff.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", cfg.Backoff.BaseDelay)
	}
	if cfg.Backoff.MaxDelay != 5*time.Minute {
		t.Errorf("MaxDelay = %v, want 5m", cfg.Backoff.MaxDelay)
	}
	if cfg.Sync.StaleThreshold != 30*time.Minute {
		t.Errorf("StaleThreshold = %v, want 30m", cfg.Sync.StaleThreshold)
	}
	if cfg.Sync.Interval != "@every 15m" {
		t.Errorf("Interval = %q, want @every 15m", cfg.Sync.Interval)
	}
}

func TestLoad_fileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldsync.yaml")
	content := `
data_dir: ` + dir + `
site_id: site-42
remote:
  url: https://api.example.com/rest/v1
  timeout: 10s
backoff:
  base_delay: 2s
  max_delay: 1m
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FIELDSYNC_SITE_ID", "site-env")
	t.Setenv("FIELDSYNC_BLOB_BUCKET", "photos")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SiteID != "site-env" {
		t.Errorf("SiteID = %q, want env override site-env", cfg.SiteID)
	}
	if cfg.Remote.URL != "https://api.example.com/rest/v1" {
		t.Errorf("Remote.URL = %q", cfg.Remote.URL)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("Remote.Timeout = %v, want 10s", cfg.Remote.Timeout)
	}
	if cfg.Backoff.BaseDelay != 2*time.Second {
		t.Errorf("BaseDelay = %v, want 2s", cfg.Backoff.BaseDelay)
	}
	if cfg.Backoff.Multiplier != 2 {
		t.Errorf("Multiplier = %v, want default 2", cfg.Backoff.Multiplier)
	}
	if cfg.Blob.Bucket != "photos" {
		t.Errorf("Blob.Bucket = %q, want photos", cfg.Blob.Bucket)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if !cfg.RemoteConfigured() {
		t.Error("RemoteConfigured() = false, want true")
	}
	if cfg.DatabasePath() != filepath.Join(dir, "fieldsync.db") {
		t.Errorf("DatabasePath() = %q", cfg.DatabasePath())
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() with missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero base delay", func(c *Config) { c.Backoff.BaseDelay = 0 }},
		{"max below base", func(c *Config) { c.Backoff.MaxDelay = time.Millisecond }},
		{"multiplier below one", func(c *Config) { c.Backoff.Multiplier = 0.5 }},
		{"jitter above one", func(c *Config) { c.Backoff.Jitter = 1.5 }},
		{"zero stale threshold", func(c *Config) { c.Sync.StaleThreshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestBlobConfigured(t *testing.T) {
	cfg := Default()
	if cfg.BlobConfigured() {
		t.Error("BlobConfigured() = true for default config")
	}
	cfg.Blob = Blob{Bucket: "b", AccessKey: "k", SecretKey: "s"}
	if !cfg.BlobConfigured() {
		t.Error("BlobConfigured() = false with bucket and credentials")
	}
}
