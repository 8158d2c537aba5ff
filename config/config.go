// Package config provides configuration loading and management for semdict.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semdict/tracing"
)

// Config represents the complete semdict configuration
type Config struct {
	Dictionary DictionaryConfig `yaml:"dictionary"`
	NATS       NATSConfig       `yaml:"nats"`
	HTTP       HTTPConfig       `yaml:"http"`
	Tracing    tracing.Config   `yaml:"tracing"`
	Log        LogConfig        `yaml:"log"`
}

// DictionaryConfig configures where models come from
type DictionaryConfig struct {
	// ModelsDir holds model files; tenants/<domain>/ holds tenant models (empty = none)
	ModelsDir string `yaml:"models_dir"`
	// Patterns select model files under ModelsDir
	Patterns []string `yaml:"patterns"`
	// Watch resets the affected tenant when a model file changes
	Watch bool `yaml:"watch"`
	// Debounce is how long file changes are collected before a reset
	Debounce time.Duration `yaml:"debounce"`
	// SkipBuiltin disables the embedded data type, system and content models
	SkipBuiltin bool `yaml:"skip_builtin"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = single node, no cluster invalidation or model store)
	URL string `yaml:"url"`
	// CacheBucket is the KV bucket used for cache invalidation
	CacheBucket string `yaml:"cache_bucket"`
	// ModelBucket is the KV bucket holding models put through the API
	ModelBucket string `yaml:"model_bucket"`
	// EventPrefix prefixes the subjects of dictionary events
	EventPrefix string `yaml:"event_prefix"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// Prefix is the API route prefix, with leading and trailing slash
	Prefix string `yaml:"prefix"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Dictionary: DictionaryConfig{
			ModelsDir: "",
			Patterns:  []string{"**/*.yaml", "**/*.yml"},
			Watch:     false,
			Debounce:  500 * time.Millisecond,
		},
		NATS: NATSConfig{
			URL:         "",
			CacheBucket: "SEMDICT_CACHE",
			ModelBucket: "SEMDICT_MODELS",
			EventPrefix: "semdict.dictionary",
		},
		HTTP: HTTPConfig{
			Addr:   ":8080",
			Prefix: "/api/dictionary/",
		},
		Tracing: tracing.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	for _, p := range c.Dictionary.Patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("dictionary.patterns: invalid pattern %q", p)
		}
	}
	if c.Dictionary.Debounce < 0 {
		return fmt.Errorf("dictionary.debounce must not be negative")
	}
	if c.Dictionary.Watch && c.Dictionary.ModelsDir == "" {
		return fmt.Errorf("dictionary.watch requires dictionary.models_dir")
	}
	if c.NATS.URL != "" {
		if c.NATS.CacheBucket == "" {
			return fmt.Errorf("nats.cache_bucket is required")
		}
		if c.NATS.ModelBucket == "" {
			return fmt.Errorf("nats.model_bucket is required")
		}
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if !strings.HasPrefix(c.HTTP.Prefix, "/") || !strings.HasSuffix(c.HTTP.Prefix, "/") {
		return fmt.Errorf("http.prefix must start and end with a slash")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json")
	}
	return c.Tracing.Validate()
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// LoadFromFile loads configuration from a YAML file over the defaults. A
// relative models_dir is resolved against the directory of the file.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := readFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// readFile unmarshals the YAML file at path into config.
func readFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if dir := config.Dictionary.ModelsDir; dir != "" && !filepath.IsAbs(dir) {
		config.Dictionary.ModelsDir = filepath.Join(filepath.Dir(path), dir)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
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

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Dictionary
	if other.Dictionary.ModelsDir != "" {
		c.Dictionary.ModelsDir = other.Dictionary.ModelsDir
	}
	if len(other.Dictionary.Patterns) > 0 {
		c.Dictionary.Patterns = other.Dictionary.Patterns
	}
	if other.Dictionary.Watch {
		c.Dictionary.Watch = true
	}
	if other.Dictionary.Debounce != 0 {
		c.Dictionary.Debounce = other.Dictionary.Debounce
	}
	if other.Dictionary.SkipBuiltin {
		c.Dictionary.SkipBuiltin = true
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.CacheBucket != "" {
		c.NATS.CacheBucket = other.NATS.CacheBucket
	}
	if other.NATS.ModelBucket != "" {
		c.NATS.ModelBucket = other.NATS.ModelBucket
	}
	if other.NATS.EventPrefix != "" {
		c.NATS.EventPrefix = other.NATS.EventPrefix
	}

	// HTTP
	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
	if other.HTTP.Prefix != "" {
		c.HTTP.Prefix = other.HTTP.Prefix
	}

	// Tracing
	if other.Tracing.Enabled {
		c.Tracing.Enabled = true
	}
	if other.Tracing.Exporter != "" {
		c.Tracing.Exporter = other.Tracing.Exporter
	}
	if other.Tracing.FilePath != "" {
		c.Tracing.FilePath = other.Tracing.FilePath
	}
	if other.Tracing.OTLPEndpoint != "" {
		c.Tracing.OTLPEndpoint = other.Tracing.OTLPEndpoint
	}
	if other.Tracing.SampleRate != 0 {
		c.Tracing.SampleRate = other.Tracing.SampleRate
	}
	if other.Tracing.ServiceName != "" {
		c.Tracing.ServiceName = other.Tracing.ServiceName
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
