// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"github.com/spf13/pflag"
)

// FlagOverrides holds command-line values that take precedence over the
// configuration file. Only flags the user actually set are applied.
type FlagOverrides struct {
	flags *pflag.FlagSet

	environment      string
	backend          string
	storagePath      string
	cacheMB          int
	compression      string
	maxResponseBytes int64
	splitter         string
	logLevel         string
	logFormat        string
	logFile          string
	redisAddr        string
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *pflag.FlagSet) *FlagOverrides {
	o := &FlagOverrides{flags: fs}
	fs.StringVar(&o.environment, "environment", "", "deployment environment (development, staging, production)")
	fs.StringVar(&o.backend, "backend", "", "storage backend (memory, badger, sqlite)")
	fs.StringVar(&o.storagePath, "store", "", "storage path for the badger or sqlite backend")
	fs.IntVar(&o.cacheMB, "cache-mb", 0, "content read cache size in MiB")
	fs.StringVar(&o.compression, "compression", "", "at-rest compression (auto, none, lz4, zstd)")
	fs.Int64Var(&o.maxResponseBytes, "max-response-bytes", 0, "largest assembled response, 0 for unlimited")
	fs.StringVar(&o.splitter, "splitter", "", "chunking strategy (fixed, gear)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", "", "log format (console, json)")
	fs.StringVar(&o.logFile, "log-file", "", "write logs to a rotated file")
	fs.StringVar(&o.redisAddr, "redis", "", "append events to the Redis server at this address")
	return o
}

// Apply copies every changed flag into cfg and expands path variables.
func (o *FlagOverrides) Apply(cfg *Config) {
	changed := o.flags.Changed
	if changed("environment") {
		cfg.Environment = Environment(o.environment)
	}
	if changed("backend") {
		cfg.Storage.Backend = o.backend
	}
	if changed("store") {
		cfg.Storage.Path = o.storagePath
	}
	if changed("cache-mb") {
		cfg.Storage.CacheMB = o.cacheMB
	}
	if changed("compression") {
		cfg.Storage.Compression = o.compression
	}
	if changed("max-response-bytes") {
		cfg.Limits.MaxResponseBytes = o.maxResponseBytes
	}
	if changed("splitter") {
		cfg.Limits.Splitter = o.splitter
	}
	if changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = o.logFormat
	}
	if changed("log-file") {
		cfg.Logging.File = o.logFile
	}
	if changed("redis") {
		cfg.Events.Redis.Addr = o.redisAddr
	}
	cfg.expandVariables()
}
