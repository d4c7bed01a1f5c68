// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
)

// readCache holds decoded payloads by address. Records never change,
// so entries are never invalidated, only evicted for space.
type readCache struct {
	inner *bigcache.BigCache
}

func newReadCache(ctx context.Context, megabytes int) (*readCache, error) {
	config := bigcache.DefaultConfig(24 * time.Hour)
	config.Shards = 16
	config.HardMaxCacheSize = megabytes
	config.MaxEntrySize = 64 << 10
	config.Verbose = false

	inner, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, err
	}
	return &readCache{inner: inner}, nil
}

func (c *readCache) get(address Address) ([]byte, bool) {
	data, err := c.inner.Get(string(address[:]))
	if err != nil {
		// ErrEntryNotFound is the only expected error.
		return nil, false
	}
	return data, true
}

func (c *readCache) set(address Address, data []byte) error {
	return c.inner.Set(string(address[:]), data)
}

func (c *readCache) close() error {
	err := c.inner.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
