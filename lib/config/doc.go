// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the ESP engine
// and its command-line tool.
//
// Configuration is loaded from a single file specified by either the
// ESP_CONFIG environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There are no fallbacks, no ~/.config discovery, and no
// automatic file search. A command run without any configuration uses
// [Default], which keeps everything in memory.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter:
// storage writes are synced and logs are JSON.
//
// Variable expansion is performed on path-like fields after loading:
// ${HOME}, ${ESP_ROOT}, and ${VAR:-default} patterns are expanded.
// Command-line flags bound with [BindFlags] are applied last.
//
// Key exports:
//
//   - [Config] -- master struct with Storage, Pricing, Limits, Events,
//     Authz and Logging sections
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [BindFlags] -- pflag overrides for the command-line tool
//
// This package depends on no other ESP packages.
package config
