// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "esp.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("expected backend=memory, got %s", cfg.Storage.Backend)
	}

	if cfg.Limits.MaxChunkSize != 43008 {
		t.Errorf("expected max_chunk_size=43008, got %d", cfg.Limits.MaxChunkSize)
	}

	if cfg.Pricing.BaseUnits != 21000 || cfg.Pricing.UnitsPerWord != 20000 {
		t.Errorf("unexpected pricing defaults: %+v", cfg.Pricing)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresESPConfig(t *testing.T) {
	t.Setenv("ESP_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ESP_CONFIG not set, got nil")
	}

	expectedMsg := "ESP_CONFIG environment variable not set"
	if !strings.HasPrefix(err.Error(), expectedMsg) {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithESPConfig(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging
root: /test/root
storage:
  backend: badger
`)
	t.Setenv("ESP_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Storage.Path != "/test/root/store" {
		t.Errorf("expected store path under the configured root, got %s", cfg.Storage.Path)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging

storage:
  backend: sqlite
  path: /data/esp.db
  cache_mb: 64
  compression: zstd
  pool_size: 8

pricing:
  base_units: 100
  units_per_word: 10
  unit_price: 2

limits:
  max_response_bytes: 1048576
  splitter: gear

protocol:
  treasury: treasury-1

events:
  log: true
  redis:
    addr: localhost:6379
    max_len: 1000

authz:
  grants:
    - callers: ["alice"]
      paths: ["/users/alice/**"]
      operations: ["*"]

logging:
  level: debug
  format: json
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.Path != "/data/esp.db" {
		t.Errorf("unexpected storage: %+v", cfg.Storage)
	}

	if cfg.Storage.CacheMB != 64 || cfg.Storage.PoolSize != 8 || cfg.Storage.Compression != "zstd" {
		t.Errorf("unexpected storage tuning: %+v", cfg.Storage)
	}

	if cfg.Pricing != (PricingConfig{BaseUnits: 100, UnitsPerWord: 10, UnitPrice: 2}) {
		t.Errorf("unexpected pricing: %+v", cfg.Pricing)
	}

	if cfg.Limits.MaxResponseBytes != 1<<20 || cfg.Limits.Splitter != "gear" {
		t.Errorf("unexpected limits: %+v", cfg.Limits)
	}

	if cfg.Limits.MaxChunkSize != 43008 {
		t.Errorf("expected default max_chunk_size to survive, got %d", cfg.Limits.MaxChunkSize)
	}

	if cfg.Protocol.Treasury != "treasury-1" {
		t.Errorf("expected treasury=treasury-1, got %s", cfg.Protocol.Treasury)
	}

	if !cfg.Events.Log || cfg.Events.Redis.Addr != "localhost:6379" || cfg.Events.Redis.MaxLen != 1000 {
		t.Errorf("unexpected events: %+v", cfg.Events)
	}

	if cfg.Events.Redis.Stream != "esp:events" {
		t.Errorf("expected default stream to survive, got %s", cfg.Events.Redis.Stream)
	}

	if len(cfg.Authz.Grants) != 1 || cfg.Authz.Grants[0].Paths[0] != "/users/alice/**" {
		t.Errorf("unexpected authz: %+v", cfg.Authz)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging: %+v", cfg.Logging)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestLoadFileRejectsMalformedYAML(t *testing.T) {
	configPath := writeConfig(t, "storage: [unterminated")

	if _, err := LoadFile(configPath); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, `
environment: production

storage:
  backend: badger
  path: /default/store

logging:
  format: console

production:
  storage:
    path: /prod/store
    sync_writes: true
  limits:
    max_response_bytes: 4096
  logging:
    format: json
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Storage.Path != "/prod/store" {
		t.Errorf("expected path=/prod/store, got %s", cfg.Storage.Path)
	}

	if cfg.Storage.Backend != BackendBadger {
		t.Errorf("expected backend to stay badger, got %s", cfg.Storage.Backend)
	}

	if !cfg.Storage.SyncWrites {
		t.Error("expected sync_writes=true from production override")
	}

	if cfg.Limits.MaxResponseBytes != 4096 {
		t.Errorf("expected max_response_bytes=4096, got %d", cfg.Limits.MaxResponseBytes)
	}

	if cfg.Logging.Format != "json" {
		t.Errorf("expected format=json, got %s", cfg.Logging.Format)
	}
}

func TestProductionDefaults(t *testing.T) {
	configPath := writeConfig(t, "environment: production\n")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if !cfg.Storage.SyncWrites {
		t.Error("expected production to sync writes by default")
	}

	if cfg.Logging.Format != "json" {
		t.Errorf("expected production to log json by default, got %s", cfg.Logging.Format)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("ESP_ROOT", "/env/root")
	t.Setenv("ESP_ENVIRONMENT", "staging")

	configPath := writeConfig(t, `
environment: development
root: /file/root
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s (env vars should not override)", cfg.Environment)
	}

	if cfg.Root != "/file/root" {
		t.Errorf("expected root=/file/root from file, got %s (env vars should not override)", cfg.Root)
	}

	if cfg.Storage.Path != "/file/root/store" {
		t.Errorf("expected store path from file root, got %s", cfg.Storage.Path)
	}
}

func TestSecretsExpandFromEnvironment(t *testing.T) {
	t.Setenv("ESP_TEST_REDIS_PASSWORD", "hunter2")

	configPath := writeConfig(t, `
events:
  redis:
    addr: ${ESP_TEST_REDIS_ADDR:-127.0.0.1:6379}
    password: ${ESP_TEST_REDIS_PASSWORD}
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Events.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("expected default redis addr, got %s", cfg.Events.Redis.Addr)
	}

	if cfg.Events.Redis.Password != "hunter2" {
		t.Errorf("expected password from environment, got %q", cfg.Events.Redis.Password)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/esp",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/esp",
		},
		{
			input:    "${ESP_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "unknown backend",
			modify: func(c *Config) {
				c.Storage.Backend = "postgres"
			},
			wantErr: true,
		},
		{
			name: "persistent backend without path",
			modify: func(c *Config) {
				c.Storage.Backend = BackendBadger
				c.Storage.Path = ""
			},
			wantErr: true,
		},
		{
			name: "unknown compression",
			modify: func(c *Config) {
				c.Storage.Compression = "brotli"
			},
			wantErr: true,
		},
		{
			name: "sqlite without pool",
			modify: func(c *Config) {
				c.Storage.Backend = BackendSQLite
				c.Storage.PoolSize = 0
			},
			wantErr: true,
		},
		{
			name: "recommended chunk above maximum",
			modify: func(c *Config) {
				c.Limits.RecommendedChunkSize = c.Limits.MaxChunkSize + 1
			},
			wantErr: true,
		},
		{
			name: "negative response limit",
			modify: func(c *Config) {
				c.Limits.MaxResponseBytes = -1
			},
			wantErr: true,
		},
		{
			name: "unknown splitter",
			modify: func(c *Config) {
				c.Limits.Splitter = "rabin"
			},
			wantErr: true,
		},
		{
			name: "empty treasury",
			modify: func(c *Config) {
				c.Protocol.Treasury = ""
			},
			wantErr: true,
		},
		{
			name: "policy and rules together",
			modify: func(c *Config) {
				c.Authz.Policy = "true"
				c.Authz.Grants = []RuleConfig{{Callers: []string{"*"}}}
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Logging.Level = "trace"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Storage.Backend = BackendSQLite
	cfg.Storage.Path = filepath.Join(tmpDir, "data", "esp.db")
	cfg.Logging.File = filepath.Join(tmpDir, "logs", "esp.log")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{filepath.Join(tmpDir, "data"), filepath.Join(tmpDir, "logs")} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}

func TestFlagOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("esp", pflag.ContinueOnError)
	overrides := BindFlags(fs)

	err := fs.Parse([]string{"--backend", "badger", "--log-level", "warn", "--max-response-bytes", "512"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg := Default()
	cfg.Root = "/flag/root"
	cfg.Storage.Compression = "lz4"
	overrides.Apply(cfg)

	if cfg.Storage.Backend != BackendBadger {
		t.Errorf("expected backend=badger, got %s", cfg.Storage.Backend)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level=warn, got %s", cfg.Logging.Level)
	}

	if cfg.Limits.MaxResponseBytes != 512 {
		t.Errorf("expected max_response_bytes=512, got %d", cfg.Limits.MaxResponseBytes)
	}

	if cfg.Storage.Compression != "lz4" {
		t.Errorf("unset flag overrode compression: %s", cfg.Storage.Compression)
	}

	if cfg.Storage.Path != "/flag/root/store" {
		t.Errorf("expected expanded store path, got %s", cfg.Storage.Path)
	}
}
