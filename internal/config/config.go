// Package config loads runtime settings for the sync core.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FIELDSYNC_SITE_ID.
const EnvPrefix = "FIELDSYNC"

// Config holds all settings needed to run a sync coordinator.
type Config struct {
	DataDir string  `mapstructure:"data_dir"`
	SiteID  string  `mapstructure:"site_id"`
	Remote  Remote  `mapstructure:"remote"`
	Blob    Blob    `mapstructure:"blob"`
	Sync    Sync    `mapstructure:"sync"`
	Backoff Backoff `mapstructure:"backoff"`
	Log     Log     `mapstructure:"log"`
}

// Remote configures the row query API.
type Remote struct {
	URL             string        `mapstructure:"url"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec"`
}

// Blob configures the photo bucket.
type Blob struct {
	Endpoint       string `mapstructure:"endpoint"`
	Bucket         string `mapstructure:"bucket"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	Region         string `mapstructure:"region"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// Sync configures scheduling and queue maintenance.
type Sync struct {
	Interval       string        `mapstructure:"interval"`
	QuickLogCheck  string        `mapstructure:"quick_log_check"`
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`
	PruneAfter     time.Duration `mapstructure:"prune_after"`
}

// Backoff mirrors the retry delay parameters.
type Backoff struct {
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     float64       `mapstructure:"jitter"`
}

// Log configures structured log output.
type Log struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns a config usable without any file or environment.
func Default() Config {
	dataDir := ".fieldsync"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".fieldsync")
	}

	return Config{
		DataDir: dataDir,
		Remote: Remote{
			Timeout:         30 * time.Second,
			RateLimitPerSec: 10,
		},
		Blob: Blob{
			Region: "us-east-1",
		},
		Sync: Sync{
			Interval:       "@every 15m",
			QuickLogCheck:  "@every 1h",
			StaleThreshold: 30 * time.Minute,
			PruneAfter:     24 * time.Hour,
		},
		Backoff: Backoff{
			BaseDelay:  time.Second,
			MaxDelay:   5 * time.Minute,
			Multiplier: 2,
			Jitter:     0.1,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("site_id", d.SiteID)
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.api_key", d.Remote.APIKey)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.rate_limit_per_sec", d.Remote.RateLimitPerSec)
	v.SetDefault("blob.endpoint", d.Blob.Endpoint)
	v.SetDefault("blob.bucket", d.Blob.Bucket)
	v.SetDefault("blob.access_key", d.Blob.AccessKey)
	v.SetDefault("blob.secret_key", d.Blob.SecretKey)
	v.SetDefault("blob.region", d.Blob.Region)
	v.SetDefault("blob.force_path_style", d.Blob.ForcePathStyle)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.quick_log_check", d.Sync.QuickLogCheck)
	v.SetDefault("sync.stale_threshold", d.Sync.StaleThreshold)
	v.SetDefault("sync.prune_after", d.Sync.PruneAfter)
	v.SetDefault("backoff.base_delay", d.Backoff.BaseDelay)
	v.SetDefault("backoff.max_delay", d.Backoff.MaxDelay)
	v.SetDefault("backoff.multiplier", d.Backoff.Multiplier)
	v.SetDefault("backoff.jitter", d.Backoff.Jitter)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Load reads settings from .env, an optional config file at path, and
// FIELDSYNC_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late inside a sync cycle.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Backoff.BaseDelay <= 0 {
		return errors.New("backoff.base_delay must be positive")
	}
	if c.Backoff.MaxDelay < c.Backoff.BaseDelay {
		return errors.New("backoff.max_delay must not be less than backoff.base_delay")
	}
	if c.Backoff.Multiplier < 1 {
		return errors.New("backoff.multiplier must be at least 1")
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		return errors.New("backoff.jitter must be between 0 and 1")
	}
	if c.Sync.StaleThreshold <= 0 {
		return errors.New("sync.stale_threshold must be positive")
	}
	return nil
}

// DatabasePath returns the sqlite file path inside the data directory.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "fieldsync.db")
}

// PhotoCacheDir returns the directory holding downloaded photo files.
func (c Config) PhotoCacheDir() string {
	return filepath.Join(c.DataDir, "photos")
}

// RemoteConfigured reports whether a remote endpoint is set.
func (c Config) RemoteConfigured() bool {
	return c.Remote.URL != "" && c.SiteID != ""
}

// BlobConfigured reports whether photo file sync can run.
func (c Config) BlobConfigured() bool {
	return c.Blob.Bucket != "" && c.Blob.AccessKey != "" && c.Blob.SecretKey != ""
}
