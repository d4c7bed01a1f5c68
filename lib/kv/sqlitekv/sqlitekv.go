// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitekv implements kv.Store as a single WITHOUT ROWID table
// in a SQLite database, using zombiezen.com/go/sqlite connection pools.
//
// Update runs inside BEGIN IMMEDIATE so the write lock is taken up
// front; View runs inside a deferred transaction, which in WAL mode
// pins a read snapshot at its first statement.
package sqlitekv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/TechnicallyWeb3/esp/lib/kv"
)

// Config configures a SQLite store.
type Config struct {
	// Path is the database file. Its parent directory must exist.
	Path string

	// PoolSize is the number of pooled connections. Zero means
	// max(NumCPU, 4).
	PoolSize int

	// Logger receives pool lifecycle messages. Nil discards them.
	Logger *slog.Logger
}

// Store is a SQLite-backed kv.Store.
type Store struct {
	pool    *pool
	writeMu sync.Mutex
	closed  atomic.Bool
}

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlitekv: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p, err := openPool(cfg.Path, cfg.PoolSize, logger)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

// View runs fn inside a deferred read transaction.
func (s *Store) View(ctx context.Context, fn func(kv.Reader) error) (err error) {
	if s.closed.Load() {
		return kv.ErrClosed
	}
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	endFn := sqlitex.Transaction(conn)
	defer endFn(&err)
	return fn(&reader{conn: conn})
}

// Update runs fn inside BEGIN IMMEDIATE. A non-nil error from fn
// rolls the transaction back.
func (s *Store) Update(ctx context.Context, fn func(kv.Txn) error) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return kv.ErrClosed
	}
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitekv: begin: %w", err)
	}
	defer endFn(&err)
	return fn(&writer{reader: reader{conn: conn}})
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.pool.close()
}

type reader struct {
	conn *sqlite.Conn
}

func (r *reader) Get(key []byte) ([]byte, error) {
	var value []byte
	found := false
	err := sqlitex.Execute(r.conn, "SELECT v FROM kv WHERE k = ?", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = columnBytes(stmt, 0)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, kv.ErrNotFound
	}
	return value, nil
}

func (r *reader) Has(key []byte) (bool, error) {
	found := false
	err := sqlitex.Execute(r.conn, "SELECT 1 FROM kv WHERE k = ?", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	return found, err
}

func (r *reader) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	query := "SELECT k, v FROM kv ORDER BY k"
	var args []any
	switch end := kv.PrefixEnd(prefix); {
	case len(prefix) == 0:
	case end == nil:
		query = "SELECT k, v FROM kv WHERE k >= ? ORDER BY k"
		args = []any{prefix}
	default:
		query = "SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k"
		args = []any{prefix, end}
	}
	return sqlitex.Execute(r.conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			return fn(columnBytes(stmt, 0), columnBytes(stmt, 1))
		},
	})
}

type writer struct {
	reader
}

// Set stores value. Values must be non-empty: SQLite may bind an
// empty slice as NULL, which the schema rejects.
func (w *writer) Set(key, value []byte) error {
	return sqlitex.Execute(w.conn,
		"INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v",
		&sqlitex.ExecOptions{Args: []any{key, value}})
}

func (w *writer) Delete(key []byte) error {
	return sqlitex.Execute(w.conn, "DELETE FROM kv WHERE k = ?",
		&sqlitex.ExecOptions{Args: []any{key}})
}

func columnBytes(stmt *sqlite.Stmt, col int) []byte {
	buf := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, buf)
	return buf
}
