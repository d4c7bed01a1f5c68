// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine assembles a complete ESP engine from configuration:
// the key/value backend, content store, royalty ledger, resource
// catalog and range assembler, sharing one authorizer, one event
// emitter and one metrics set.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TechnicallyWeb3/esp/lib/assembler"
	"github.com/TechnicallyWeb3/esp/lib/authz"
	"github.com/TechnicallyWeb3/esp/lib/catalog"
	"github.com/TechnicallyWeb3/esp/lib/clock"
	"github.com/TechnicallyWeb3/esp/lib/config"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/events"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/kv"
	"github.com/TechnicallyWeb3/esp/lib/kv/badgerkv"
	"github.com/TechnicallyWeb3/esp/lib/kv/memkv"
	"github.com/TechnicallyWeb3/esp/lib/kv/sqlitekv"
	"github.com/TechnicallyWeb3/esp/lib/metrics"
	"github.com/TechnicallyWeb3/esp/lib/royalty"
)

// Options configures Open.
type Options struct {
	// Config is required and should already be validated.
	Config *config.Config

	// Logger is shared by every component. Nil discards.
	Logger *slog.Logger

	// Clock stamps records and events. Nil uses the real clock.
	Clock clock.Clock

	// Registerer receives the engine metrics. Nil uses a private
	// registry.
	Registerer prometheus.Registerer
}

// Engine is a wired set of ESP components over one backend.
type Engine struct {
	Backend   kv.Store
	Content   *contentstore.Store
	Ledger    *royalty.Ledger
	Catalog   *catalog.Catalog
	Assembler *assembler.Assembler

	// Bus receives every event in process, after any configured
	// external sinks.
	Bus *events.Bus

	// Splitter cuts payloads into chunks for uploads.
	Splitter catalog.Splitter

	Metrics *metrics.Metrics

	logger  *slog.Logger
	closers []func() error
}

// Open builds an engine. On error every partially opened resource is
// released.
func Open(ctx context.Context, options Options) (*Engine, error) {
	cfg := options.Config
	if cfg == nil {
		return nil, errors.New("engine: Config is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	e := &Engine{
		Metrics: metrics.New(options.Registerer),
		Bus:     events.NewBus(),
		logger:  logger,
	}
	if err := e.open(ctx, cfg, clk); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(ctx context.Context, cfg *config.Config, clk clock.Clock) error {
	logger := e.logger
	var err error
	e.Backend, err = OpenBackend(cfg.Storage, logger)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, e.Backend.Close)

	compression, err := contentstore.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.Content, err = contentstore.New(ctx, contentstore.Config{
		Backend:     e.Backend,
		Compression: compression,
		CacheMB:     cfg.Storage.CacheMB,
		Metrics:     e.Metrics,
		Logger:      logger.With("component", "contentstore"),
	})
	if err != nil {
		return err
	}
	e.closers = append(e.closers, e.Content.Close)

	authorizer, err := Authorizer(cfg.Authz, clk)
	if err != nil {
		return err
	}

	sink, err := e.openSinks(ctx, cfg.Events)
	if err != nil {
		return err
	}
	emitter := events.NewEmitter(sink, clk, logger)

	e.Ledger, err = royalty.New(royalty.Config{
		Content: e.Content,
		Pricing: royalty.Pricing{
			BaseUnits:    cfg.Pricing.BaseUnits,
			UnitsPerWord: cfg.Pricing.UnitsPerWord,
			UnitPrice:    cfg.Pricing.UnitPrice,
		},
		Treasury:   identity.Parse(cfg.Protocol.Treasury),
		Authorizer: authorizer,
		Events:     emitter,
		Metrics:    e.Metrics,
		Clock:      clk,
		Logger:     logger.With("component", "royalty"),
	})
	if err != nil {
		return err
	}

	e.Catalog, err = catalog.New(catalog.Config{
		Ledger:       e.Ledger,
		MaxChunkSize: cfg.Limits.MaxChunkSize,
		Authorizer:   authorizer,
		Events:       emitter,
		Metrics:      e.Metrics,
		Clock:        clk,
		Logger:       logger.With("component", "catalog"),
	})
	if err != nil {
		return err
	}

	e.Assembler, err = assembler.New(assembler.Config{
		Catalog:          e.Catalog,
		Authorizer:       authorizer,
		MaxResponseBytes: cfg.Limits.MaxResponseBytes,
		Metrics:          e.Metrics,
		Logger:           logger.With("component", "assembler"),
	})
	if err != nil {
		return err
	}

	e.Splitter, err = catalog.ParseSplitter(cfg.Limits.Splitter, min(cfg.Limits.RecommendedChunkSize, e.Catalog.MaxChunk()))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	logger.Info("engine opened",
		"backend", cfg.Storage.Backend,
		"compression", compression.String(),
		"cache_mb", cfg.Storage.CacheMB,
		"max_chunk_size", e.Catalog.MaxChunk(),
	)
	return nil
}

// openSinks builds the configured external sinks followed by the bus.
func (e *Engine) openSinks(ctx context.Context, cfg config.EventsConfig) (events.Sink, error) {
	var sinks events.Multi
	if cfg.Log {
		sinks = append(sinks, events.LogSink{Logger: e.logger.With("component", "events")})
	}
	if cfg.Redis.Addr != "" {
		stream := events.NewRedisStream(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Stream, cfg.Redis.MaxLen)
		e.closers = append(e.closers, stream.Close)
		if err := stream.Client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("engine: connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		sinks = append(sinks, stream)
	}
	sinks = append(sinks, e.Bus)
	return sinks, nil
}

// Close releases every resource in reverse opening order.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// OpenBackend opens the configured key/value store.
func OpenBackend(cfg config.StorageConfig, logger *slog.Logger) (kv.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return memkv.New(), nil
	case config.BackendBadger:
		store, err := badgerkv.Open(badgerkv.Config{
			Path:       cfg.Path,
			SyncWrites: cfg.SyncWrites,
			Logger:     logger.With("component", "badger"),
		})
		if err != nil {
			return nil, fmt.Errorf("engine: opening badger store: %w", err)
		}
		return store, nil
	case config.BackendSQLite:
		store, err := sqlitekv.Open(sqlitekv.Config{
			Path:     cfg.Path,
			PoolSize: cfg.PoolSize,
			Logger:   logger.With("component", "sqlite"),
		})
		if err != nil {
			return nil, fmt.Errorf("engine: opening sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("engine: unknown storage backend %q", cfg.Backend)
	}
}

// Authorizer builds the checker described by cfg: a CEL expression, a
// glob grant/deny policy, or allow-all when neither is configured.
func Authorizer(cfg config.AuthzConfig, clk clock.Clock) (authz.Checker, error) {
	if cfg.Policy != "" {
		checker, err := authz.NewCEL(cfg.Policy)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		return checker, nil
	}
	if len(cfg.Grants) == 0 && len(cfg.Denials) == 0 {
		return authz.AllowAll{}, nil
	}
	return &authz.Policy{
		Grants:  rules(cfg.Grants),
		Denials: rules(cfg.Denials),
		Clock:   clk,
	}, nil
}

func rules(configs []config.RuleConfig) []authz.Rule {
	rules := make([]authz.Rule, len(configs))
	for i, rule := range configs {
		rules[i] = authz.Rule{
			Callers:    rule.Callers,
			Paths:      rule.Paths,
			Operations: rule.Operations,
		}
	}
	return rules
}
