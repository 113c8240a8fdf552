package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level vault configuration.
type Config struct {
	Vault     VaultConfig     `yaml:"vault"`
	Cache     CacheConfig     `yaml:"cache"`
	Eviction  EvictionConfig  `yaml:"eviction"`
	Imaging   ImagingConfig   `yaml:"imaging"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// VaultConfig holds storage and encryption settings.
type VaultConfig struct {
	// Dir is the root directory holding blob and metadata files side by
	// side. Created lazily on first use, excluded from backup tooling.
	Dir string `yaml:"dir"`
	// KeyFile is the path of the durable 256-bit content key, created on
	// first use and reused across restarts.
	KeyFile string `yaml:"key_file"`
	// Cipher selects the AEAD: "aes-gcm" (default) or "chacha20poly1305".
	Cipher string `yaml:"cipher"`
	// SettingsDB is the SQLite database path for flags and preferences.
	SettingsDB string `yaml:"settings_db"`
}

// CacheConfig bounds the two in-memory decoded-image caches. The hard
// bounds here sit above the eviction manager's thresholds; they are the
// cache's own safety limit, not the reclamation policy.
type CacheConfig struct {
	MaxFullImages     int   `yaml:"max_full_images"`
	MaxFullImageBytes int64 `yaml:"max_full_image_bytes"`
	MaxThumbnails     int   `yaml:"max_thumbnails"`
	MaxThumbnailBytes int64 `yaml:"max_thumbnail_bytes"`
	// PreloadPerSecond rate-limits background decode work.
	PreloadPerSecond float64 `yaml:"preload_per_second"`
	// PreloadQueueSize bounds each priority queue; excess requests drop.
	PreloadQueueSize int `yaml:"preload_queue_size"`
}

// EvictionConfig holds the visibility-aware reclamation thresholds.
type EvictionConfig struct {
	MaxResidentFullImages int           `yaml:"max_resident_full_images"`
	MaxResidentThumbnails int           `yaml:"max_resident_thumbnails"`
	ThumbnailIdleExpiry   time.Duration `yaml:"thumbnail_idle_expiry"`
}

// ImagingConfig holds decode/encode settings.
type ImagingConfig struct {
	ThumbnailMaxDim int `yaml:"thumbnail_max_dim"`
	JPEGQuality     int `yaml:"jpeg_quality"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout", "noop"
}

// SchedulerConfig holds background maintenance settings.
type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SweepSchedule string `yaml:"sweep_schedule"`      // cron expression or duration, e.g. "30s"
	TempClean     string `yaml:"temp_clean_schedule"` // stale share-export cleanup
}

func defaultVaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./vault"
	}
	return filepath.Join(home, ".photovault", "store")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dir := defaultVaultDir()
	return &Config{
		Vault: VaultConfig{
			Dir:        dir,
			KeyFile:    filepath.Join(filepath.Dir(dir), "vault.key"),
			Cipher:     "aes-gcm",
			SettingsDB: filepath.Join(filepath.Dir(dir), "settings.db"),
		},
		Cache: CacheConfig{
			MaxFullImages:     8,
			MaxFullImageBytes: 256 << 20,
			MaxThumbnails:     64,
			MaxThumbnailBytes: 32 << 20,
			PreloadPerSecond:  8,
			PreloadQueueSize:  64,
		},
		Eviction: EvictionConfig{
			MaxResidentFullImages: 3,
			MaxResidentThumbnails: 30,
			ThumbnailIdleExpiry:   60 * time.Second,
		},
		Imaging: ImagingConfig{
			ThumbnailMaxDim: 256,
			JPEGQuality:     90,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			SweepSchedule: "30s",
			TempClean:     "10m",
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist. Environment overrides apply after file parsing.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps PHOTOVAULT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PHOTOVAULT_DIR"); v != "" {
		cfg.Vault.Dir = v
	}
	if v := os.Getenv("PHOTOVAULT_KEY_FILE"); v != "" {
		cfg.Vault.KeyFile = v
	}
	if v := os.Getenv("PHOTOVAULT_CIPHER"); v != "" {
		cfg.Vault.Cipher = v
	}
	if v := os.Getenv("PHOTOVAULT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PHOTOVAULT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("PHOTOVAULT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}
