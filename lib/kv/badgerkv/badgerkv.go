// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package badgerkv implements kv.Store on BadgerDB. Each View and
// Update maps onto one native Badger transaction; Update calls are
// additionally serialized so that read-modify-write sequences in the
// engine never hit Badger's optimistic-conflict abort.
//
// Badger permits only one open iterator per read-write transaction,
// so Iterate must not be nested inside another Iterate callback in an
// Update.
package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/TechnicallyWeb3/esp/lib/kv"
)

// Config configures a Badger store.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives Badger's internal log output at debug level
	// and above. Nil discards it.
	Logger *slog.Logger
}

// Store is a Badger-backed kv.Store.
type Store struct {
	db      *badger.DB
	writeMu sync.Mutex
	closed  atomic.Bool
}

// Open opens (or creates) the Badger database described by cfg.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badgerkv: Path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("creating badger directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path).
			WithValueThreshold(1 << 10).
			WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(newLogger(cfg.Logger))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

// View runs fn in a Badger read-only transaction.
func (s *Store) View(ctx context.Context, fn func(kv.Reader) error) error {
	if s.closed.Load() {
		return kv.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&reader{txn: txn})
	})
}

// Update runs fn in a Badger read-write transaction, committed only
// if fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(kv.Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return kv.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&writer{reader: reader{txn: txn}})
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("badgerkv: transaction exceeds badger batch limits: %w", err)
	}
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

type reader struct {
	txn *badger.Txn
}

func (r *reader) Get(key []byte) ([]byte, error) {
	item, err := r.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (r *reader) Has(key []byte) (bool, error) {
	_, err := r.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *reader) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), value); err != nil {
			return err
		}
	}
	return nil
}

type writer struct {
	reader
}

func (w *writer) Set(key, value []byte) error {
	// Badger holds the slices until commit.
	return w.txn.Set(append([]byte(nil), key...), append([]byte(nil), value...))
}

func (w *writer) Delete(key []byte) error {
	return w.txn.Delete(append([]byte(nil), key...))
}

// logger adapts slog to badger.Logger.
type logger struct {
	slog *slog.Logger
}

func newLogger(l *slog.Logger) badger.Logger {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &logger{slog: l.With("component", "badger")}
}

func (l *logger) Errorf(format string, args ...any) {
	l.slog.Error(trim(format, args))
}

func (l *logger) Warningf(format string, args ...any) {
	l.slog.Warn(trim(format, args))
}

func (l *logger) Infof(format string, args ...any) {
	l.slog.Debug(trim(format, args))
}

func (l *logger) Debugf(format string, args ...any) {
	l.slog.Debug(trim(format, args))
}

// trim formats a Badger log line, which usually ends in a newline.
func trim(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
