// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package memkv is an in-process kv.Store. Committed state is an
// immutable map published through an atomic pointer: readers load the
// pointer once and see a stable snapshot without taking a lock, and
// a commit builds the next map and swaps it in.
//
// Every commit copies the key set, so memkv suits tests and
// small ephemeral stores, not large datasets.
package memkv

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/TechnicallyWeb3/esp/lib/kv"
)

// Store is an in-memory kv.Store.
type Store struct {
	// writeMu serializes Update calls.
	writeMu sync.Mutex
	state   atomic.Pointer[map[string][]byte]
	closed  atomic.Bool
}

// New returns an empty store.
func New() *Store {
	store := &Store{}
	empty := make(map[string][]byte)
	store.state.Store(&empty)
	return store
}

// View runs fn against the current committed snapshot.
func (s *Store) View(ctx context.Context, fn func(kv.Reader) error) error {
	if s.closed.Load() {
		return kv.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(snapshot{data: *s.state.Load()})
}

// Update runs fn with a private overlay and publishes the result
// only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(kv.Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return kv.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	base := *s.state.Load()
	txn := &txn{
		snapshot: snapshot{data: base},
		pending:  make(map[string][]byte),
		deleted:  make(map[string]struct{}),
	}
	if err := fn(txn); err != nil {
		return err
	}
	if len(txn.pending) == 0 && len(txn.deleted) == 0 {
		return nil
	}

	next := make(map[string][]byte, len(base)+len(txn.pending))
	for key, value := range base {
		if _, gone := txn.deleted[key]; gone {
			continue
		}
		next[key] = value
	}
	for key, value := range txn.pending {
		next[key] = value
	}
	s.state.Store(&next)
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// Len returns the number of committed keys.
func (s *Store) Len() int {
	return len(*s.state.Load())
}

type snapshot struct {
	data map[string][]byte
}

func (r snapshot) Get(key []byte) ([]byte, error) {
	value, ok := r.data[string(key)]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return bytes.Clone(value), nil
}

func (r snapshot) Has(key []byte) (bool, error) {
	_, ok := r.data[string(key)]
	return ok, nil
}

func (r snapshot) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return iterateSorted(r.data, nil, nil, prefix, fn)
}

// txn layers pending writes and deletes over a committed snapshot.
type txn struct {
	snapshot
	pending map[string][]byte
	deleted map[string]struct{}
}

func (t *txn) Get(key []byte) ([]byte, error) {
	name := string(key)
	if value, ok := t.pending[name]; ok {
		return bytes.Clone(value), nil
	}
	if _, gone := t.deleted[name]; gone {
		return nil, kv.ErrNotFound
	}
	return t.snapshot.Get(key)
}

func (t *txn) Has(key []byte) (bool, error) {
	name := string(key)
	if _, ok := t.pending[name]; ok {
		return true, nil
	}
	if _, gone := t.deleted[name]; gone {
		return false, nil
	}
	return t.snapshot.Has(key)
}

func (t *txn) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return iterateSorted(t.data, t.pending, t.deleted, prefix, fn)
}

func (t *txn) Set(key, value []byte) error {
	name := string(key)
	t.pending[name] = bytes.Clone(value)
	delete(t.deleted, name)
	return nil
}

func (t *txn) Delete(key []byte) error {
	name := string(key)
	delete(t.pending, name)
	t.deleted[name] = struct{}{}
	return nil
}

// iterateSorted merges base and pending (minus deleted) for keys with
// prefix and visits them in ascending order.
func iterateSorted(base, pending map[string][]byte, deleted map[string]struct{}, prefix []byte, fn func(key, value []byte) error) error {
	wanted := string(prefix)
	merged := make(map[string][]byte)
	for key, value := range base {
		if !strings.HasPrefix(key, wanted) {
			continue
		}
		if _, gone := deleted[key]; gone {
			continue
		}
		merged[key] = value
	}
	for key, value := range pending {
		if strings.HasPrefix(key, wanted) {
			merged[key] = value
		}
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := fn([]byte(key), bytes.Clone(merged[key])); err != nil {
			return err
		}
	}
	return nil
}
