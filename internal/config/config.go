// Package config loads the aiprotect configuration file.
//
// The file path comes from the --config flag or the AIPROTECT_CONFIG
// environment variable. Missing fields keep their defaults; a missing path
// means the defaults are used as-is.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	watermark "github.com/gcslaoli/provenance-watermark-go"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "AIPROTECT_CONFIG"

// Config is the full aiprotect configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Limits    LimitsConfig    `yaml:"limits"`
	Watermark WatermarkConfig `yaml:"watermark"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	// Address is the listen address.
	Address string `yaml:"address"`

	// RateLimit is the sustained number of watermark requests per second
	// across all clients. Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the rate limiter bucket size.
	Burst int `yaml:"burst"`

	// ReadTimeout bounds reading a whole request including uploads.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LimitsConfig bounds a single batch. Limits are checked before any image
// is decoded.
type LimitsConfig struct {
	MaxImages int `yaml:"max_images"`
	MaxFileMB int `yaml:"max_file_mb"`
}

// MaxFileBytes returns the per-file size cap in bytes.
func (l LimitsConfig) MaxFileBytes() int64 {
	return int64(l.MaxFileMB) * 1024 * 1024
}

// WatermarkConfig holds watermarking defaults.
type WatermarkConfig struct {
	// FontPath is a TrueType/OpenType font for the visible overlay. Empty
	// selects the bundled Go Regular font.
	FontPath string `yaml:"font_path"`

	// Workers is the number of images processed concurrently per batch.
	Workers int `yaml:"workers"`

	// DefaultType, DefaultOpacity and DefaultConsent apply when a request
	// leaves the field out.
	DefaultType    string  `yaml:"default_type"`
	DefaultOpacity float64 `yaml:"default_opacity"`
	DefaultConsent string  `yaml:"default_consent"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:      ":8000",
			RateLimit:    10,
			Burst:        20,
			ReadTimeout:  time.Minute,
			WriteTimeout: time.Minute,
		},
		Limits: LimitsConfig{
			MaxImages: 5,
			MaxFileMB: 10,
		},
		Watermark: WatermarkConfig{
			Workers:        1,
			DefaultType:    "both",
			DefaultOpacity: 0.3,
			DefaultConsent: "denied",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path falls
// back to $AIPROTECT_CONFIG, and to the defaults when that is unset too.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}
	if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
		errs = append(errs, errors.New("server.burst must be at least 1 when rate limiting"))
	}
	if c.Limits.MaxImages < 1 {
		errs = append(errs, errors.New("limits.max_images must be at least 1"))
	}
	if c.Limits.MaxFileMB < 1 {
		errs = append(errs, errors.New("limits.max_file_mb must be at least 1"))
	}
	if c.Watermark.Workers < 1 {
		errs = append(errs, errors.New("watermark.workers must be at least 1"))
	}
	if o := c.Watermark.DefaultOpacity; !(o >= 0 && o <= 1) {
		errs = append(errs, fmt.Errorf("watermark.default_opacity %v out of range [0, 1]", o))
	}
	if _, err := watermark.ParseConsent(c.Watermark.DefaultConsent); err != nil {
		errs = append(errs, fmt.Errorf("watermark.default_consent: %w", err))
	}
	switch watermark.Type(c.Watermark.DefaultType) {
	case watermark.TypeInvisible, watermark.TypeVisible, watermark.TypeBoth:
	default:
		errs = append(errs, fmt.Errorf("watermark.default_type %q must be invisible, visible or both", c.Watermark.DefaultType))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", f))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
