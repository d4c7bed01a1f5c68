// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvtest is a conformance suite for kv.Store implementations.
// Each backend's tests call [Run] with a factory that opens a fresh,
// empty store.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechnicallyWeb3/esp/lib/kv"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) kv.Store

// Run executes the conformance suite against stores made by open.
func Run(t *testing.T, open Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open) })
	t.Run("SetGet", func(t *testing.T) { testSetGet(t, open) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, open) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, open) })
	t.Run("IteratePrefix", func(t *testing.T) { testIteratePrefix(t, open) })
	t.Run("IterateStop", func(t *testing.T) { testIterateStop(t, open) })
	t.Run("ValueOwnership", func(t *testing.T) { testValueOwnership(t, open) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, open) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, open) })
}

func newStore(t *testing.T, open Factory) kv.Store {
	t.Helper()
	store := open(t)
	t.Cleanup(func() { store.Close() })
	return store
}

func set(t *testing.T, store kv.Store, key, value string) {
	t.Helper()
	err := store.Update(context.Background(), func(txn kv.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	require.NoError(t, err)
}

func get(t *testing.T, store kv.Store, key string) ([]byte, error) {
	t.Helper()
	var value []byte
	err := store.View(context.Background(), func(r kv.Reader) error {
		var err error
		value, err = r.Get([]byte(key))
		return err
	})
	return value, err
}

func testGetMissing(t *testing.T, open Factory) {
	store := newStore(t, open)
	_, err := get(t, store, "missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	err = store.View(context.Background(), func(r kv.Reader) error {
		present, err := r.Has([]byte("missing"))
		require.NoError(t, err)
		assert.False(t, present)
		return nil
	})
	require.NoError(t, err)
}

func testSetGet(t *testing.T, open Factory) {
	store := newStore(t, open)
	set(t, store, "a", "one")
	set(t, store, "a", "two")

	value, err := get(t, store, "a")
	require.NoError(t, err)
	assert.Equal(t, "two", string(value))
}

func testDelete(t *testing.T, open Factory) {
	store := newStore(t, open)
	set(t, store, "a", "one")

	err := store.Update(context.Background(), func(txn kv.Txn) error {
		if err := txn.Delete([]byte("a")); err != nil {
			return err
		}
		return txn.Delete([]byte("never-written"))
	})
	require.NoError(t, err)

	_, err = get(t, store, "a")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testRollback(t *testing.T, open Factory) {
	store := newStore(t, open)
	set(t, store, "kept", "yes")

	failure := errors.New("abort")
	err := store.Update(context.Background(), func(txn kv.Txn) error {
		require.NoError(t, txn.Set([]byte("dropped"), []byte("x")))
		require.NoError(t, txn.Delete([]byte("kept")))
		return failure
	})
	assert.ErrorIs(t, err, failure)

	_, err = get(t, store, "dropped")
	assert.ErrorIs(t, err, kv.ErrNotFound)
	value, err := get(t, store, "kept")
	require.NoError(t, err)
	assert.Equal(t, "yes", string(value))
}

func testReadYourWrites(t *testing.T, open Factory) {
	store := newStore(t, open)
	set(t, store, "p/1", "old")

	err := store.Update(context.Background(), func(txn kv.Txn) error {
		require.NoError(t, txn.Set([]byte("p/1"), []byte("new")))
		require.NoError(t, txn.Set([]byte("p/2"), []byte("two")))

		value, err := txn.Get([]byte("p/1"))
		require.NoError(t, err)
		assert.Equal(t, "new", string(value))

		require.NoError(t, txn.Delete([]byte("p/2")))
		present, err := txn.Has([]byte("p/2"))
		require.NoError(t, err)
		assert.False(t, present)

		var keys []string
		err = txn.Iterate([]byte("p/"), func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"p/1"}, keys)
		return nil
	})
	require.NoError(t, err)
}

func testIteratePrefix(t *testing.T, open Factory) {
	store := newStore(t, open)
	for _, key := range []string{"b/2", "a/1", "b/1", "b/10", "c/1", "b"} {
		set(t, store, key, "v-"+key)
	}

	var keys, values []string
	err := store.View(context.Background(), func(r kv.Reader) error {
		return r.Iterate([]byte("b/"), func(key, value []byte) error {
			keys = append(keys, string(key))
			values = append(values, string(value))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b/1", "b/10", "b/2"}, keys)
	assert.Equal(t, []string{"v-b/1", "v-b/10", "v-b/2"}, values)
}

func testIterateStop(t *testing.T, open Factory) {
	store := newStore(t, open)
	for i := range 5 {
		set(t, store, fmt.Sprintf("n/%d", i), "x")
	}

	stop := errors.New("stop")
	visited := 0
	err := store.View(context.Background(), func(r kv.Reader) error {
		return r.Iterate([]byte("n/"), func(_, _ []byte) error {
			visited++
			if visited == 2 {
				return stop
			}
			return nil
		})
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, visited)
}

func testValueOwnership(t *testing.T, open Factory) {
	store := newStore(t, open)
	input := []byte("original")
	err := store.Update(context.Background(), func(txn kv.Txn) error {
		return txn.Set([]byte("k"), input)
	})
	require.NoError(t, err)
	input[0] = 'X'

	value, err := get(t, store, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(value))

	value[0] = 'Y'
	again, err := get(t, store, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

// testConcurrentUpdates increments a counter from many goroutines;
// serialized Update calls must not lose increments.
func testConcurrentUpdates(t *testing.T, open Factory) {
	store := newStore(t, open)
	set(t, store, "counter", "0")

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				errs <- store.Update(context.Background(), func(txn kv.Txn) error {
					value, err := txn.Get([]byte("counter"))
					if err != nil {
						return err
					}
					var n int
					if _, err := fmt.Sscanf(string(value), "%d", &n); err != nil {
						return err
					}
					return txn.Set([]byte("counter"), []byte(fmt.Sprintf("%d", n+1)))
				})
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	value, err := get(t, store, "counter")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", workers*perWorker), string(value))
}

func testClosed(t *testing.T, open Factory) {
	store := open(t)
	require.NoError(t, store.Close())

	err := store.View(context.Background(), func(kv.Reader) error { return nil })
	assert.ErrorIs(t, err, kv.ErrClosed)
	err = store.Update(context.Background(), func(kv.Txn) error { return nil })
	assert.ErrorIs(t, err, kv.ErrClosed)
}
