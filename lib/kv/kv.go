// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package kv defines the transactional key/value contract every ESP
// component persists through, and the prefix helpers they share.
//
// A mutating engine operation (register, chunk write, header update,
// royalty collection) runs as one [Store.Update] call: every backend
// serializes Update calls behind a single write mutex and applies the
// transaction atomically, so an operation either lands completely or
// not at all. Read-only operations run in [Store.View] and observe a
// consistent snapshot; they never see a half-applied Update.
//
// Backends live in subpackages:
//
//   - memkv: in-process copy-on-write map, for tests and ephemeral use
//   - badgerkv: github.com/dgraph-io/badger/v3, the default durable backend
//   - sqlitekv: zombiezen.com/go/sqlite, a single-file WAL database
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Reader.Get when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// ErrClosed is returned by View and Update after Close.
var ErrClosed = errors.New("kv: store closed")

// Reader is the read half of a transaction. Values returned by Get
// and passed to Iterate callbacks are owned by the caller and remain
// valid after the transaction ends.
type Reader interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Has reports whether key is present without copying its value.
	Has(key []byte) (bool, error)

	// Iterate calls fn for every key with the given prefix in
	// ascending byte order. Returning an error from fn stops the
	// iteration and returns that error.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// Txn is a read-write transaction.
type Txn interface {
	Reader

	// Set stores value under key, replacing any existing value. Values
	// must be non-empty.
	Set(key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error
}

// Store is a transactional key/value store.
type Store interface {
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Reader) error) error

	// Update runs fn in a serialized read-write transaction. If fn
	// returns an error, nothing fn wrote is applied.
	Update(ctx context.Context, fn func(Txn) error) error

	// Close releases the backend. Further calls return ErrClosed.
	Close() error
}

// Key joins a namespace prefix and a suffix into a single key. The
// namespace is separated from the suffix by a '/' byte.
func Key(namespace string, suffix []byte) []byte {
	key := make([]byte, 0, len(namespace)+1+len(suffix))
	key = append(key, namespace...)
	key = append(key, '/')
	key = append(key, suffix...)
	return key
}

// PrefixEnd returns the smallest key greater than every key that
// starts with prefix, or nil when no such key exists (prefix is empty
// or all 0xFF). Backends use it to bound range scans.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
