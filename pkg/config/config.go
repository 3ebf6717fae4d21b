package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProviderConfig selects and tunes the image generation backend
type ProviderConfig struct {
	Kind              string `yaml:"kind"` // "placeholder" or "http"
	Endpoint          string `yaml:"endpoint"`
	Model             string `yaml:"model"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type Config struct {
	// Storage
	DataRoot string `yaml:"data_root"`

	// Generation defaults
	DefaultAspectRatio string         `yaml:"default_aspect_ratio"`
	DefaultResolution  string         `yaml:"default_resolution"`
	DefaultCount       int            `yaml:"default_count"`
	DefaultKeyName     string         `yaml:"default_key_name"`
	Provider           ProviderConfig `yaml:"provider"`

	// Gallery
	ThumbnailSize int    `yaml:"thumbnail_size"`
	ImageViewer   string `yaml:"image_viewer"`

	// Record store
	LockRetryMS int `yaml:"lock_retry_ms"`

	// Diagnostics
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// UI Settings
	ColorTheme string `yaml:"color_theme"`
	Editor     string `yaml:"editor"`
}

// Provider kinds
const (
	ProviderPlaceholder = "placeholder"
	ProviderHTTP        = "http"
)

// DefaultConfig returns a Config struct with default values
func DefaultConfig() *Config {
	return &Config{
		DataRoot:           "",
		DefaultAspectRatio: "1:1",
		DefaultResolution:  "1K",
		DefaultCount:       1,
		DefaultKeyName:     "",
		Provider: ProviderConfig{
			Kind:              ProviderPlaceholder,
			Endpoint:          "",
			Model:             "",
			TimeoutSeconds:    60,
			RequestsPerMinute: 30,
		},
		ThumbnailSize: 256,
		ImageViewer:   "",
		LockRetryMS:   25,
		LogLevel:      "warn",
		LogFormat:     "text",
		ColorTheme:    "auto",
		Editor:        "",
	}
}

// Load reads configuration from the specified file path
func Load(path string) (*Config, error) {
	// Start with default config
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config (not an error)
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults backfills essential values left empty in the file
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DefaultAspectRatio == "" {
		c.DefaultAspectRatio = def.DefaultAspectRatio
	}
	if c.DefaultResolution == "" {
		c.DefaultResolution = def.DefaultResolution
	}
	if c.DefaultCount <= 0 {
		c.DefaultCount = def.DefaultCount
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = def.Provider.Kind
	}
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = def.Provider.TimeoutSeconds
	}
	if c.Provider.RequestsPerMinute <= 0 {
		c.Provider.RequestsPerMinute = def.Provider.RequestsPerMinute
	}
	if c.ThumbnailSize <= 0 {
		c.ThumbnailSize = def.ThumbnailSize
	}
	if c.LockRetryMS <= 0 {
		c.LockRetryMS = def.LockRetryMS
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.ColorTheme == "" {
		c.ColorTheme = def.ColorTheme
	}
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case ProviderPlaceholder:
	case ProviderHTTP:
		if c.Provider.Endpoint == "" {
			return fmt.Errorf("provider.endpoint is required for the http provider")
		}
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}
	if c.DefaultCount > MaxCount {
		return fmt.Errorf("default_count %d exceeds maximum of %d", c.DefaultCount, MaxCount)
	}
	return nil
}

// MaxCount caps the number of images a single request may produce
const MaxCount = 8

// Save persists the current configuration to the specified file path
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
