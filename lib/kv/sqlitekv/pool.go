// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitekv

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// pragmas are applied to every pooled connection. WAL gives readers a
// stable snapshot while the single writer commits.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=OFF",
	"PRAGMA cache_size=-8192",
	"PRAGMA mmap_size=268435456",
	"PRAGMA temp_store=MEMORY",
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	k BLOB PRIMARY KEY,
	v BLOB NOT NULL
) WITHOUT ROWID;
`

// pool is a fixed-size set of prepared connections.
type pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

func openPool(path string, size int, logger *slog.Logger) (*pool, error) {
	if size <= 0 {
		size = max(runtime.NumCPU(), 4)
	}

	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: opening %s: %w", path, err)
	}

	logger.Info("sqlite pool opened", "path", path, "pool_size", size)
	return &pool{inner: inner, logger: logger, path: path}, nil
}

func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: take: %w", err)
	}
	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlitekv: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitekv: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlitekv: creating schema: %w", err)
	}
	return nil
}
