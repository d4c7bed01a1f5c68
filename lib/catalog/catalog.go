// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TechnicallyWeb3/esp/lib/authz"
	"github.com/TechnicallyWeb3/esp/lib/clock"
	"github.com/TechnicallyWeb3/esp/lib/codec"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/events"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/kv"
	"github.com/TechnicallyWeb3/esp/lib/metrics"
	"github.com/TechnicallyWeb3/esp/lib/royalty"
	"github.com/TechnicallyWeb3/esp/lib/status"
)

// Chunk size limits in bytes.
const (
	RecommendedChunkSize = 32 << 10
	MaxChunkSize         = 42 << 10
)

// Event operation names.
const (
	OperationWriteChunk       = "write_chunk"
	OperationUploadBatch      = "upload_batch"
	OperationDeleteResource   = "delete_resource"
	OperationUpdateMetadata   = "update_metadata"
	OperationCreateHeader     = "create_header"
	OperationUpdateHeader     = "update_header"
	OperationSetDefaultHeader = "set_default_header"
)

// Properties are the caller-settable parts of a resource's metadata.
type Properties struct {
	ContentType string `json:"content_type,omitempty"`
	Charset     string `json:"charset,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	Language    string `json:"language,omitempty"`

	// Header selects the resource's header record. The zero ref means
	// the catalog default.
	Header HeaderRef `json:"header"`
}

// ResourceMetadata describes one path.
type ResourceMetadata struct {
	Path       string               `json:"path"`
	Properties Properties           `json:"properties"`
	Size       int64                `json:"size"`
	ChunkCount int                  `json:"chunk_count"`
	// Fingerprint is contentstore.Fingerprint over the resource's
	// assembled bytes, maintained by every chunk write.
	Fingerprint  contentstore.Address `json:"fingerprint"`
	Version      uint64               `json:"version"`
	LastModified time.Time            `json:"last_modified"`
}

// Config configures a Catalog.
type Config struct {
	// Ledger registers every chunk. Required. Its content store's
	// backend also holds the catalog's records.
	Ledger *royalty.Ledger

	// MaxChunkSize is the hard chunk limit. Zero means MaxChunkSize.
	MaxChunkSize int

	// Authorizer is consulted before every mutation. Nil allows all.
	Authorizer authz.Checker

	Events  *events.Emitter
	Metrics *metrics.Metrics
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Catalog maps paths to chunk lists, metadata and headers.
type Catalog struct {
	ledger       *royalty.Ledger
	content      *contentstore.Store
	backend      kv.Store
	maxChunkSize int
	authorizer   authz.Checker
	events       *events.Emitter
	metrics      *metrics.Metrics
	clock        clock.Clock
	logger       *slog.Logger
}

// New returns a Catalog.
func New(cfg Config) (*Catalog, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("catalog: Ledger is required")
	}
	maxChunk := cfg.MaxChunkSize
	if maxChunk == 0 {
		maxChunk = MaxChunkSize
	}
	if maxChunk < 0 {
		return nil, fmt.Errorf("catalog: MaxChunkSize %d is negative", maxChunk)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	content := cfg.Ledger.Content()
	return &Catalog{
		ledger:       cfg.Ledger,
		content:      content,
		backend:      content.Backend(),
		maxChunkSize: maxChunk,
		authorizer:   authz.OrAllow(cfg.Authorizer),
		events:       cfg.Events,
		metrics:      cfg.Metrics,
		clock:        clk,
		logger:       logger,
	}, nil
}

// Content returns the content store chunks are kept in.
func (c *Catalog) Content() *contentstore.Store {
	return c.content
}

// MaxChunk returns the hard chunk size limit.
func (c *Catalog) MaxChunk() int {
	return c.maxChunkSize
}

// Metadata returns the metadata of path.
func (c *Catalog) Metadata(ctx context.Context, path string) (ResourceMetadata, error) {
	if err := validatePath(path); err != nil {
		return ResourceMetadata{}, err
	}
	var metadata ResourceMetadata
	err := c.backend.View(ctx, func(r kv.Reader) error {
		var err error
		metadata, err = requireMetadata(r, path)
		return err
	})
	return metadata, err
}

// UpdateMetadata replaces the properties of an existing resource and
// bumps its version.
func (c *Catalog) UpdateMetadata(ctx context.Context, caller identity.ID, path string, properties Properties) (ResourceMetadata, error) {
	if err := validatePath(path); err != nil {
		return ResourceMetadata{}, err
	}
	if !c.authorizer.CanInvoke(ctx, caller, path, authz.OpDefine) {
		c.emitFailure(ctx, OperationUpdateMetadata, caller, path, ErrForbidden)
		return ResourceMetadata{}, ErrForbidden
	}

	var metadata ResourceMetadata
	err := c.backend.Update(ctx, func(txn kv.Txn) error {
		var err error
		metadata, err = requireMetadata(txn, path)
		if err != nil {
			return err
		}
		if !properties.Header.IsZero() {
			if _, err := headerTx(txn, properties.Header); err != nil {
				return err
			}
		}
		metadata.Properties = properties
		c.touch(&metadata)
		return putMetadata(txn, metadata)
	})
	if err != nil {
		c.emitFailure(ctx, OperationUpdateMetadata, caller, path, err)
		return ResourceMetadata{}, err
	}

	c.metrics.Operation(OperationUpdateMetadata, status.OK.String())
	c.logger.Info("resource metadata updated", "path", path, "version", metadata.Version)
	c.events.Emit(ctx, events.Event{
		Operation: OperationUpdateMetadata,
		Path:      path,
		Actor:     caller,
		Outcome:   status.OK.String(),
		Detail:    map[string]string{"version": fmt.Sprint(metadata.Version)},
	})
	return metadata, nil
}

// UpdateMetadataStats bumps the version and modification time of an
// existing resource. Chunk mutations do this themselves inside their
// own transaction.
func (c *Catalog) UpdateMetadataStats(ctx context.Context, path string) (ResourceMetadata, error) {
	if err := validatePath(path); err != nil {
		return ResourceMetadata{}, err
	}
	var metadata ResourceMetadata
	err := c.backend.Update(ctx, func(txn kv.Txn) error {
		var err error
		metadata, err = requireMetadata(txn, path)
		if err != nil {
			return err
		}
		c.touch(&metadata)
		return putMetadata(txn, metadata)
	})
	return metadata, err
}

// touch advances the version and modification time.
func (c *Catalog) touch(metadata *ResourceMetadata) {
	metadata.Version++
	metadata.LastModified = c.clock.Now()
}

func (c *Catalog) emitFailure(ctx context.Context, operation string, caller identity.ID, path string, err error) {
	outcome := status.FromError(err).String()
	c.metrics.Operation(operation, outcome)
	c.logger.Debug("catalog operation failed", "operation", operation, "path", path, "error", err)
	c.events.Emit(ctx, events.Event{
		Operation: operation,
		Path:      path,
		Actor:     caller,
		Outcome:   outcome,
	})
}

// validatePath requires an absolute path without NUL bytes. NUL
// separates the path from the chunk index in chunk keys.
func validatePath(path string) error {
	if path == "" || path[0] != '/' {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, path)
	}
	if strings.IndexByte(path, 0) >= 0 {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, path)
	}
	return nil
}

const (
	metadataNamespace = "catalog/m"
	chunkNamespace    = "catalog/c"
	headerNamespace   = "catalog/h"
	defaultHeaderKey  = "catalog/default"
)

func metadataKey(path string) []byte {
	return kv.Key(metadataNamespace, []byte(path))
}

// chunkPrefix is followed by a 4-byte big-endian index, so a prefix
// scan visits chunks in index order.
func chunkPrefix(path string) []byte {
	return append(kv.Key(chunkNamespace, []byte(path)), 0)
}

func chunkKey(path string, index int) []byte {
	return binary.BigEndian.AppendUint32(chunkPrefix(path), uint32(index))
}

func metadataTx(r kv.Reader, path string) (ResourceMetadata, bool, error) {
	value, err := r.Get(metadataKey(path))
	if errors.Is(err, kv.ErrNotFound) {
		return ResourceMetadata{}, false, nil
	}
	if err != nil {
		return ResourceMetadata{}, false, err
	}
	var metadata ResourceMetadata
	if err := codec.Unmarshal(value, &metadata); err != nil {
		return ResourceMetadata{}, false, fmt.Errorf("decoding metadata of %s: %w", path, err)
	}
	return metadata, true, nil
}

func requireMetadata(r kv.Reader, path string) (ResourceMetadata, error) {
	metadata, found, err := metadataTx(r, path)
	if err != nil {
		return ResourceMetadata{}, err
	}
	if !found {
		return ResourceMetadata{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return metadata, nil
}

func putMetadata(txn kv.Txn, metadata ResourceMetadata) error {
	encoded, err := codec.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	return txn.Set(metadataKey(metadata.Path), encoded)
}

func chunkTx(r kv.Reader, path string, index int) (contentstore.Address, error) {
	value, err := r.Get(chunkKey(path, index))
	if err != nil {
		return contentstore.Address{}, fmt.Errorf("chunk %d of %s: %w", index, path, err)
	}
	var address contentstore.Address
	if len(value) != len(address) {
		return address, fmt.Errorf("chunk %d of %s is %d bytes, want %d", index, path, len(value), len(address))
	}
	copy(address[:], value)
	return address, nil
}
