// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package badgerkv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechnicallyWeb3/esp/lib/kv"
	"github.com/TechnicallyWeb3/esp/lib/kv/kvtest"
)

func TestConformanceInMemory(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		store, err := Open(Config{InMemory: true})
		require.NoError(t, err)
		return store
	})
}

func TestConformanceOnDisk(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		store, err := Open(Config{Path: filepath.Join(t.TempDir(), "badger")})
		require.NoError(t, err)
		return store
	})
}

func TestReopenPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")

	store, err := Open(Config{Path: dir})
	require.NoError(t, err)
	err = store.Update(context.Background(), func(txn kv.Txn) error {
		return txn.Set([]byte("durable"), []byte("yes"))
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer store.Close()

	err = store.View(context.Background(), func(r kv.Reader) error {
		value, err := r.Get([]byte("durable"))
		require.NoError(t, err)
		assert.Equal(t, "yes", string(value))
		return nil
	})
	require.NoError(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
