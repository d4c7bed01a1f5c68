// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TechnicallyWeb3/esp/lib/kv"
	"github.com/TechnicallyWeb3/esp/lib/metrics"
	"github.com/TechnicallyWeb3/esp/lib/status"
)

var (
	// ErrEmptyInput is returned when writing zero bytes.
	ErrEmptyInput = status.NewError(status.BadRequest, "content: empty input")

	// ErrNotFound is returned when no record exists at an address.
	ErrNotFound = status.NewError(status.NotFound, "content: not found")

	// ErrAddressOccupied is returned when an address already holds
	// different bytes. Reaching it means a hash collision or a
	// corrupted store.
	ErrAddressOccupied = status.NewError(status.InternalError, "content: address occupied by different bytes")
)

// Config configures a Store.
type Config struct {
	// Backend holds the records. Required.
	Backend kv.Store

	// Compression is the at-rest encoding for new records. The zero
	// value is CompressionNone; use CompressionAuto to probe.
	Compression Compression

	// CacheMB bounds the decoded-content read cache. Zero disables it.
	CacheMB int

	Metrics *metrics.Metrics

	// Logger receives write and cache diagnostics. Nil discards.
	Logger *slog.Logger
}

// Store is the content-addressed record store.
type Store struct {
	backend     kv.Store
	compression Compression
	cache       *readCache
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// WriteResult describes a WriteTx outcome.
type WriteResult struct {
	Address Address

	// Size is the uncompressed length.
	Size int64

	// Compression is the at-rest encoding used. Meaningful only when
	// Created is true.
	Compression Compression

	// Created is false when identical bytes were already stored.
	Created bool
}

// New returns a Store over cfg.Backend.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, errors.New("contentstore: Backend is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	switch cfg.Compression {
	case CompressionNone, CompressionLZ4, CompressionZstd, CompressionAuto:
	default:
		return nil, fmt.Errorf("contentstore: unsupported compression %s", cfg.Compression)
	}

	store := &Store{
		backend:     cfg.Backend,
		compression: cfg.Compression,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
	if cfg.CacheMB > 0 {
		cache, err := newReadCache(ctx, cfg.CacheMB)
		if err != nil {
			return nil, fmt.Errorf("contentstore: creating read cache: %w", err)
		}
		store.cache = cache
	}
	return store, nil
}

// Backend returns the kv store records live in, so callers can fold
// content writes into their own transactions.
func (s *Store) Backend() kv.Store {
	return s.backend
}

// Close releases the read cache. The backend is owned by the caller.
func (s *Store) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.close()
}

// Write stores data in its own transaction and returns its address.
func (s *Store) Write(ctx context.Context, data []byte) (Address, error) {
	var result WriteResult
	err := s.backend.Update(ctx, func(txn kv.Txn) error {
		var err error
		result, err = s.WriteTx(txn, data)
		return err
	})
	if err != nil {
		return Address{}, err
	}
	s.Committed(result)
	return result.Address, nil
}

// Committed records metrics and logs for a WriteTx result after the
// enclosing transaction commits.
func (s *Store) Committed(result WriteResult) {
	if !result.Created {
		return
	}
	s.metrics.ContentWritten(result.Compression.String())
	s.logger.Debug("content stored",
		"address", result.Address.Short(),
		"size", result.Size,
		"compression", result.Compression.String(),
	)
}

// WriteTx stores data within txn. Writing bytes that are already
// stored is a no-op that reports Created false.
func (s *Store) WriteTx(txn kv.Txn, data []byte) (WriteResult, error) {
	if len(data) == 0 {
		return WriteResult{}, ErrEmptyInput
	}
	address := CalculateAddress(data)
	result := WriteResult{Address: address, Size: int64(len(data))}

	existing, err := s.ReadTx(txn, address)
	switch {
	case err == nil:
		if !bytes.Equal(existing, data) {
			return WriteResult{}, fmt.Errorf("writing %s: %w", address.Short(), ErrAddressOccupied)
		}
		return result, nil
	case !errors.Is(err, ErrNotFound):
		return WriteResult{}, err
	}

	payload, compression, err := encodePayload(data, s.compression)
	if err != nil {
		return WriteResult{}, fmt.Errorf("encoding %s: %w", address.Short(), err)
	}
	if err := txn.Set(payloadKey(address), payload); err != nil {
		return WriteResult{}, err
	}
	if err := txn.Set(sizeKey(address), encodeSize(len(data))); err != nil {
		return WriteResult{}, err
	}

	result.Compression = compression
	result.Created = true
	return result, nil
}

// Read returns the bytes stored at address, or ErrNotFound.
func (s *Store) Read(ctx context.Context, address Address) ([]byte, error) {
	if data, ok := s.cached(address); ok {
		return data, nil
	}
	var data []byte
	err := s.backend.View(ctx, func(r kv.Reader) error {
		var err error
		data, err = s.readBackend(r, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.remember(address, data)
	return data, nil
}

// ReadTx returns the bytes stored at address as seen by r. The read
// cache is consulted but not filled, since r may hold uncommitted
// writes.
func (s *Store) ReadTx(r kv.Reader, address Address) ([]byte, error) {
	if data, ok := s.cached(address); ok {
		return data, nil
	}
	return s.readBackend(r, address)
}

// Size returns the uncompressed length stored at address, or 0 if
// there is no record. It never reads the payload.
func (s *Store) Size(ctx context.Context, address Address) (int64, error) {
	var size int64
	err := s.backend.View(ctx, func(r kv.Reader) error {
		var err error
		size, err = s.SizeTx(r, address)
		return err
	})
	return size, err
}

// SizeTx is Size within an existing transaction.
func (s *Store) SizeTx(r kv.Reader, address Address) (int64, error) {
	value, err := r.Get(sizeKey(address))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading size of %s: %w", address.Short(), err)
	}
	return decodeSize(value)
}

// Exists reports whether a record is stored at address.
func (s *Store) Exists(ctx context.Context, address Address) (bool, error) {
	size, err := s.Size(ctx, address)
	return size > 0, err
}

func (s *Store) readBackend(r kv.Reader, address Address) ([]byte, error) {
	sizeValue, err := r.Get(sizeKey(address))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("reading %s: %w", address.Short(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading size of %s: %w", address.Short(), err)
	}
	size, err := decodeSize(sizeValue)
	if err != nil {
		return nil, err
	}

	payload, err := r.Get(payloadKey(address))
	if err != nil {
		return nil, fmt.Errorf("reading payload of %s: %w", address.Short(), err)
	}
	data, err := decodePayload(payload, int(size))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", address.Short(), err)
	}
	return data, nil
}

func (s *Store) cached(address Address) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok := s.cache.get(address)
	s.metrics.CacheLookup(ok)
	return data, ok
}

func (s *Store) remember(address Address, data []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.set(address, data); err != nil {
		s.logger.Debug("content cache set failed", "address", address.Short(), "error", err)
	}
}

const (
	payloadNamespace = "content/d"
	sizeNamespace    = "content/s"
)

func payloadKey(address Address) []byte { return kv.Key(payloadNamespace, address[:]) }

func sizeKey(address Address) []byte { return kv.Key(sizeNamespace, address[:]) }

func encodeSize(size int) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(size))
}

func decodeSize(value []byte) (int64, error) {
	if len(value) != 8 {
		return 0, fmt.Errorf("stored size is %d bytes, want 8", len(value))
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}
