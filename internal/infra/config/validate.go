package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found, allowing callers
// to inspect all issues at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateVault(cfg, ve)
	validateCache(cfg, ve)
	validateEviction(cfg, ve)
	validateImaging(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateVault(cfg *Config, ve *ValidationError) {
	if cfg.Vault.Dir == "" {
		ve.Add("vault.dir must not be empty")
	}
	if cfg.Vault.KeyFile == "" {
		ve.Add("vault.key_file must not be empty")
	}
	switch cfg.Vault.Cipher {
	case "", "aes-gcm", "chacha20poly1305":
	default:
		ve.Add("vault.cipher must be one of: aes-gcm, chacha20poly1305 (got %q)", cfg.Vault.Cipher)
	}
}

func validateCache(cfg *Config, ve *ValidationError) {
	if cfg.Cache.MaxFullImages <= 0 {
		ve.Add("cache.max_full_images must be > 0")
	}
	if cfg.Cache.MaxThumbnails <= 0 {
		ve.Add("cache.max_thumbnails must be > 0")
	}
	if cfg.Cache.MaxFullImageBytes <= 0 {
		ve.Add("cache.max_full_image_bytes must be > 0")
	}
	if cfg.Cache.MaxThumbnailBytes <= 0 {
		ve.Add("cache.max_thumbnail_bytes must be > 0")
	}
	if cfg.Cache.PreloadPerSecond <= 0 {
		ve.Add("cache.preload_per_second must be > 0")
	}
	if cfg.Cache.PreloadQueueSize <= 0 {
		ve.Add("cache.preload_queue_size must be > 0")
	}
}

func validateEviction(cfg *Config, ve *ValidationError) {
	if cfg.Eviction.MaxResidentFullImages <= 0 {
		ve.Add("eviction.max_resident_full_images must be > 0")
	}
	if cfg.Eviction.MaxResidentThumbnails <= 0 {
		ve.Add("eviction.max_resident_thumbnails must be > 0")
	}
	if cfg.Eviction.ThumbnailIdleExpiry <= 0 {
		ve.Add("eviction.thumbnail_idle_expiry must be > 0")
	}
	if cfg.Eviction.MaxResidentFullImages > cfg.Cache.MaxFullImages {
		ve.Add("eviction.max_resident_full_images must not exceed cache.max_full_images")
	}
	if cfg.Eviction.MaxResidentThumbnails > cfg.Cache.MaxThumbnails {
		ve.Add("eviction.max_resident_thumbnails must not exceed cache.max_thumbnails")
	}
}

func validateImaging(cfg *Config, ve *ValidationError) {
	if cfg.Imaging.ThumbnailMaxDim <= 0 {
		ve.Add("imaging.thumbnail_max_dim must be > 0")
	}
	if cfg.Imaging.JPEGQuality < 1 || cfg.Imaging.JPEGQuality > 100 {
		ve.Add("imaging.jpeg_quality must be in [1, 100]")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level must be one of: debug, info, warn, error (got %q)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format must be one of: text, json (got %q)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "stdout", "noop":
	default:
		ve.Add("tracer.exporter must be one of: stdout, noop (got %q)", cfg.Tracer.Exporter)
	}
}
