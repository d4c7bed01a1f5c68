// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config is the master configuration for an ESP engine.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Root is the base directory for engine data. Storage paths
	// usually live below it via ${ESP_ROOT}.
	Root string `yaml:"root"`

	Storage  StorageConfig  `yaml:"storage"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Limits   LimitsConfig   `yaml:"limits"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Events   EventsConfig   `yaml:"events"`
	Authz    AuthzConfig    `yaml:"authz"`
	Logging  LoggingConfig  `yaml:"logging"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Storage *StorageConfig `yaml:"storage,omitempty"`
	Limits  *LimitsConfig  `yaml:"limits,omitempty"`
	Events  *EventsConfig  `yaml:"events,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// StorageConfig selects and tunes the key/value backend.
type StorageConfig struct {
	// Backend is one of memory, badger or sqlite.
	// Default: memory
	Backend string `yaml:"backend"`

	// Path is the badger directory or the sqlite database file.
	// Default: ${ESP_ROOT}/store
	Path string `yaml:"path"`

	// CacheMB sizes the content read cache. Zero disables it.
	CacheMB int `yaml:"cache_mb"`

	// Compression is the at-rest encoding: auto, none, lz4 or zstd.
	// Default: auto
	Compression string `yaml:"compression"`

	// SyncWrites makes badger fsync every commit.
	// Default: false (development), true (production)
	SyncWrites bool `yaml:"sync_writes"`

	// PoolSize is the sqlite connection pool size.
	// Default: 4
	PoolSize int `yaml:"pool_size"`
}

// PricingConfig sets the first-write cost formula.
type PricingConfig struct {
	BaseUnits    uint64 `yaml:"base_units"`
	UnitsPerWord uint64 `yaml:"units_per_word"`
	UnitPrice    uint64 `yaml:"unit_price"`
}

// LimitsConfig bounds chunk and response sizes.
type LimitsConfig struct {
	// RecommendedChunkSize is the split size used by clients.
	// Default: 32768
	RecommendedChunkSize int `yaml:"recommended_chunk_size"`

	// MaxChunkSize is the largest chunk the catalog accepts.
	// Default: 43008
	MaxChunkSize int `yaml:"max_chunk_size"`

	// MaxResponseBytes caps a single assembled response. Zero means
	// unlimited.
	MaxResponseBytes int64 `yaml:"max_response_bytes"`

	// Splitter is the client chunking strategy: fixed or gear.
	// Default: fixed
	Splitter string `yaml:"splitter"`
}

// ProtocolConfig names protocol-level identities.
type ProtocolConfig struct {
	// Treasury is the account credited with the protocol share.
	// Default: esp:treasury
	Treasury string `yaml:"treasury"`
}

// EventsConfig selects event sinks.
type EventsConfig struct {
	// Log writes every event to the structured logger.
	Log bool `yaml:"log"`

	// Redis appends events to a stream when Addr is set.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Stream is the stream key.
	// Default: esp:events
	Stream string `yaml:"stream"`

	// MaxLen trims the stream approximately. Zero keeps everything.
	MaxLen int64 `yaml:"max_len"`
}

// AuthzConfig configures authorization. With neither a policy
// expression nor any rules, every call is allowed.
type AuthzConfig struct {
	// Policy is a CEL expression over caller, path and operation.
	Policy string `yaml:"policy"`

	Grants  []RuleConfig `yaml:"grants"`
	Denials []RuleConfig `yaml:"denials"`
}

// RuleConfig is one grant or denial rule of a glob policy.
type RuleConfig struct {
	Callers    []string `yaml:"callers"`
	Paths      []string `yaml:"paths"`
	Operations []string `yaml:"operations"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is console or json.
	// Default: console (development), json (production)
	Format string `yaml:"format"`

	// File, when set, receives logs instead of stderr and is rotated.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file,
// and on their own when a command runs without one. Path fields still
// hold unexpanded ${ESP_ROOT} references; [LoadFile] and
// [FlagOverrides.Apply] expand them.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "esp")

	return &Config{
		Environment: Development,
		Root:        defaultRoot,
		Storage: StorageConfig{
			Backend:     BackendMemory,
			Path:        "${ESP_ROOT}/store",
			CacheMB:     0,
			Compression: "auto",
			PoolSize:    4,
		},
		Pricing: PricingConfig{
			BaseUnits:    21000,
			UnitsPerWord: 20000,
			UnitPrice:    1,
		},
		Limits: LimitsConfig{
			RecommendedChunkSize: 32 << 10,
			MaxChunkSize:         42 << 10,
			Splitter:             "fixed",
		},
		Protocol: ProtocolConfig{
			Treasury: "esp:treasury",
		},
		Events: EventsConfig{
			Redis: RedisConfig{Stream: "esp:events"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load loads configuration from the ESP_CONFIG environment variable.
//
// There are no fallbacks: if ESP_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("ESP_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("ESP_CONFIG environment variable not set; " +
			"set it to the path of your esp.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// Environment variables do not override config values. The only
// expansion performed is ${HOME} and similar variables in paths and
// secrets.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: durable writes and machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Storage: &StorageConfig{SyncWrites: true},
				Logging: &LoggingConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Storage != nil {
		if overrides.Storage.Backend != "" {
			c.Storage.Backend = overrides.Storage.Backend
		}
		if overrides.Storage.Path != "" {
			c.Storage.Path = overrides.Storage.Path
		}
		if overrides.Storage.CacheMB != 0 {
			c.Storage.CacheMB = overrides.Storage.CacheMB
		}
		if overrides.Storage.Compression != "" {
			c.Storage.Compression = overrides.Storage.Compression
		}
		// SyncWrites is a bool, so we always apply it from overrides.
		c.Storage.SyncWrites = overrides.Storage.SyncWrites
		if overrides.Storage.PoolSize != 0 {
			c.Storage.PoolSize = overrides.Storage.PoolSize
		}
	}

	if overrides.Limits != nil {
		if overrides.Limits.RecommendedChunkSize != 0 {
			c.Limits.RecommendedChunkSize = overrides.Limits.RecommendedChunkSize
		}
		if overrides.Limits.MaxChunkSize != 0 {
			c.Limits.MaxChunkSize = overrides.Limits.MaxChunkSize
		}
		if overrides.Limits.MaxResponseBytes != 0 {
			c.Limits.MaxResponseBytes = overrides.Limits.MaxResponseBytes
		}
		if overrides.Limits.Splitter != "" {
			c.Limits.Splitter = overrides.Limits.Splitter
		}
	}

	if overrides.Events != nil {
		c.Events.Log = overrides.Events.Log
		if overrides.Events.Redis.Addr != "" {
			c.Events.Redis = overrides.Events.Redis
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
		if overrides.Logging.File != "" {
			c.Logging.File = overrides.Logging.File
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"ESP_ROOT": c.Root,
		"HOME":     os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["ESP_ROOT"] = c.Root // Update for dependent paths.

	c.Storage.Path = expandVars(c.Storage.Path, vars)
	c.Logging.File = expandVars(c.Logging.File, vars)
	c.Events.Redis.Addr = expandVars(c.Events.Redis.Addr, vars)
	c.Events.Redis.Password = expandVars(c.Events.Redis.Password, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	backends := []string{BackendMemory, BackendBadger, BackendSQLite}
	if !contains(backends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend must be one of: %v", backends))
	}
	if c.Storage.Backend != BackendMemory && c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend))
	}
	if c.Storage.CacheMB < 0 {
		errs = append(errs, fmt.Errorf("storage.cache_mb must not be negative"))
	}
	compressions := []string{"auto", "none", "lz4", "zstd"}
	if !contains(compressions, c.Storage.Compression) {
		errs = append(errs, fmt.Errorf("storage.compression must be one of: %v", compressions))
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("storage.pool_size must be at least 1"))
	}

	if c.Limits.MaxChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_chunk_size must be positive"))
	}
	if c.Limits.RecommendedChunkSize <= 0 || c.Limits.RecommendedChunkSize > c.Limits.MaxChunkSize {
		errs = append(errs, fmt.Errorf("limits.recommended_chunk_size must be in (0, max_chunk_size]"))
	}
	if c.Limits.MaxResponseBytes < 0 {
		errs = append(errs, fmt.Errorf("limits.max_response_bytes must not be negative"))
	}
	splitters := []string{"fixed", "gear"}
	if !contains(splitters, c.Limits.Splitter) {
		errs = append(errs, fmt.Errorf("limits.splitter must be one of: %v", splitters))
	}

	if c.Protocol.Treasury == "" {
		errs = append(errs, fmt.Errorf("protocol.treasury is required"))
	}

	if c.Authz.Policy != "" && (len(c.Authz.Grants) > 0 || len(c.Authz.Denials) > 0) {
		errs = append(errs, fmt.Errorf("authz.policy and authz grants/denials are mutually exclusive"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", levels))
	}
	formats := []string{"console", "json"}
	if !contains(formats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the directories the configured backend and log
// file live in.
func (c *Config) EnsurePaths() error {
	var paths []string
	switch c.Storage.Backend {
	case BackendBadger:
		paths = append(paths, c.Storage.Path)
	case BackendSQLite:
		paths = append(paths, filepath.Dir(c.Storage.Path))
	}
	if c.Logging.File != "" {
		paths = append(paths, filepath.Dir(c.Logging.File))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
