// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"fmt"

	"github.com/TechnicallyWeb3/esp/lib/authz"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/events"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/kv"
	"github.com/TechnicallyWeb3/esp/lib/royalty"
	"github.com/TechnicallyWeb3/esp/lib/status"
	"github.com/TechnicallyWeb3/esp/lib/tracing"
)

// ChunkWrite writes Data at Index of Path. Index may name an existing
// chunk, which is replaced, or equal the chunk count, which appends.
// Payment covers the royalty if Data was published by someone else.
type ChunkWrite struct {
	Caller    identity.ID
	Path      string
	Data      []byte
	Publisher identity.ID
	Index     int
	Payment   royalty.Amount
}

// ChunkResult describes a committed chunk write.
type ChunkResult struct {
	Address  contentstore.Address
	Index    int
	Appended bool
	Metadata ResourceMetadata

	// Registration is the ledger's view of the chunk, including any
	// royalty charged and the unspent payment.
	Registration royalty.RegisterResult
}

// CreateOrAppendChunk registers write.Data with the ledger and stores
// its address at write.Index, creating the resource on its first
// chunk.
func (c *Catalog) CreateOrAppendChunk(ctx context.Context, write ChunkWrite) (result ChunkResult, err error) {
	ctx, finish := tracing.Start(ctx, "catalog.CreateOrAppendChunk",
		tracing.KeyPath.String(write.Path),
		tracing.KeyCaller.String(write.Caller.String()),
	)
	defer func() { finish(err) }()

	if err := validatePath(write.Path); err != nil {
		return ChunkResult{}, err
	}
	if !c.authorizer.CanInvoke(ctx, write.Caller, write.Path, authz.OpPut) {
		c.emitFailure(ctx, OperationWriteChunk, write.Caller, write.Path, ErrForbidden)
		return ChunkResult{}, ErrForbidden
	}
	if len(write.Data) > c.maxChunkSize {
		return ChunkResult{}, fmt.Errorf("%w: %d bytes, limit %d", ErrChunkTooLarge, len(write.Data), c.maxChunkSize)
	}

	err = c.backend.Update(ctx, func(txn kv.Txn) error {
		metadata, found, err := metadataTx(txn, write.Path)
		if err != nil {
			return err
		}
		if !found {
			metadata = ResourceMetadata{Path: write.Path}
		}
		if write.Index < 0 || write.Index > metadata.ChunkCount {
			return fmt.Errorf("%w: index %d with %d chunks", ErrIndexOutOfBounds, write.Index, metadata.ChunkCount)
		}

		registered, err := c.ledger.RegisterTx(txn, royalty.RegisterRequest{
			Caller:    write.Caller,
			Data:      write.Data,
			Publisher: write.Publisher,
			Payment:   write.Payment,
		})
		if err != nil {
			return err
		}

		appended := write.Index == metadata.ChunkCount
		if appended {
			metadata.ChunkCount++
		} else {
			previous, err := chunkTx(txn, write.Path, write.Index)
			if err != nil {
				return err
			}
			previousSize, err := c.content.SizeTx(txn, previous)
			if err != nil {
				return err
			}
			metadata.Size -= previousSize
		}
		metadata.Size += int64(len(write.Data))

		address := registered.Address
		if err := txn.Set(chunkKey(write.Path, write.Index), address[:]); err != nil {
			return err
		}
		if metadata.Fingerprint, err = c.fingerprintTx(txn, write.Path, metadata.ChunkCount); err != nil {
			return err
		}
		c.touch(&metadata)
		if err := putMetadata(txn, metadata); err != nil {
			return err
		}
		result = ChunkResult{
			Address:      address,
			Index:        write.Index,
			Appended:     appended,
			Metadata:     metadata,
			Registration: registered,
		}
		return nil
	})
	if err != nil {
		c.emitFailure(ctx, OperationWriteChunk, write.Caller, write.Path, err)
		return ChunkResult{}, err
	}

	c.ledger.Committed(ctx, write.Caller, result.Registration)
	c.metrics.Operation(OperationWriteChunk, status.OK.String())
	c.logger.Info("chunk written",
		"path", write.Path,
		"index", write.Index,
		"address", result.Address.Short(),
		"appended", result.Appended,
		"version", result.Metadata.Version,
	)
	c.events.Emit(ctx, events.Event{
		Operation: OperationWriteChunk,
		Path:      write.Path,
		Address:   result.Address.String(),
		Actor:     write.Caller,
		Outcome:   status.OK.String(),
		Detail: map[string]string{
			"index":   fmt.Sprint(write.Index),
			"version": fmt.Sprint(result.Metadata.Version),
		},
	})
	return result, nil
}

// ChunkUpload is one chunk of a BatchUpload.
type ChunkUpload struct {
	Data      []byte
	Publisher identity.ID
}

// BatchUpload replaces the whole chunk list of Path. Payment is a pool
// the chunks' royalties are drawn from in order.
type BatchUpload struct {
	Caller  identity.ID
	Path    string
	Chunks  []ChunkUpload
	Payment royalty.Amount

	// Properties, when non-nil, replaces the resource's properties in
	// the same transaction.
	Properties *Properties
}

// BatchResult describes a committed batch upload.
type BatchResult struct {
	Addresses []contentstore.Address
	Metadata  ResourceMetadata

	// Owed is the total royalty charged across all chunks.
	Owed royalty.Amount

	// Refund is the part of the payment pool not consumed.
	Refund royalty.Amount

	registrations []royalty.RegisterResult
}

// UploadBatch registers every chunk in order from index 0 and makes
// them the resource's entire chunk list. Either every chunk is
// registered and stored or nothing changes.
func (c *Catalog) UploadBatch(ctx context.Context, upload BatchUpload) (result BatchResult, err error) {
	ctx, finish := tracing.Start(ctx, "catalog.UploadBatch",
		tracing.KeyPath.String(upload.Path),
		tracing.KeyCaller.String(upload.Caller.String()),
	)
	defer func() { finish(err) }()

	if err := validatePath(upload.Path); err != nil {
		return BatchResult{}, err
	}
	if !c.authorizer.CanInvoke(ctx, upload.Caller, upload.Path, authz.OpPut) {
		c.emitFailure(ctx, OperationUploadBatch, upload.Caller, upload.Path, ErrForbidden)
		return BatchResult{}, ErrForbidden
	}
	if len(upload.Chunks) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	for i, chunk := range upload.Chunks {
		if len(chunk.Data) > c.maxChunkSize {
			return BatchResult{}, fmt.Errorf("%w: chunk %d is %d bytes, limit %d", ErrChunkTooLarge, i, len(chunk.Data), c.maxChunkSize)
		}
	}

	err = c.backend.Update(ctx, func(txn kv.Txn) error {
		metadata, found, err := metadataTx(txn, upload.Path)
		if err != nil {
			return err
		}
		if !found {
			metadata = ResourceMetadata{Path: upload.Path}
		}
		if upload.Properties != nil {
			if !upload.Properties.Header.IsZero() {
				if _, err := headerTx(txn, upload.Properties.Header); err != nil {
					return err
				}
			}
			metadata.Properties = *upload.Properties
		}

		batch := BatchResult{
			Addresses:     make([]contentstore.Address, 0, len(upload.Chunks)),
			registrations: make([]royalty.RegisterResult, 0, len(upload.Chunks)),
		}
		remaining := upload.Payment
		var size int64
		fingerprint := contentstore.NewFingerprintHasher()
		for i, chunk := range upload.Chunks {
			registered, err := c.ledger.RegisterTx(txn, royalty.RegisterRequest{
				Caller:    upload.Caller,
				Data:      chunk.Data,
				Publisher: chunk.Publisher,
				Payment:   remaining,
			})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			remaining = registered.Refund
			batch.Owed += registered.Owed

			address := registered.Address
			if err := txn.Set(chunkKey(upload.Path, i), address[:]); err != nil {
				return err
			}
			batch.Addresses = append(batch.Addresses, address)
			batch.registrations = append(batch.registrations, registered)
			size += int64(len(chunk.Data))
			fingerprint.Write(chunk.Data)
		}
		for i := len(upload.Chunks); i < metadata.ChunkCount; i++ {
			if err := txn.Delete(chunkKey(upload.Path, i)); err != nil {
				return err
			}
		}

		metadata.ChunkCount = len(upload.Chunks)
		metadata.Size = size
		metadata.Fingerprint = fingerprint.Sum()
		c.touch(&metadata)
		if err := putMetadata(txn, metadata); err != nil {
			return err
		}
		batch.Metadata = metadata
		batch.Refund = remaining
		result = batch
		return nil
	})
	if err != nil {
		c.emitFailure(ctx, OperationUploadBatch, upload.Caller, upload.Path, err)
		return BatchResult{}, err
	}

	for _, registered := range result.registrations {
		c.ledger.Committed(ctx, upload.Caller, registered)
	}
	c.metrics.Operation(OperationUploadBatch, status.OK.String())
	c.logger.Info("resource uploaded",
		"path", upload.Path,
		"chunks", len(result.Addresses),
		"size", result.Metadata.Size,
		"owed", uint64(result.Owed),
		"version", result.Metadata.Version,
	)
	c.events.Emit(ctx, events.Event{
		Operation: OperationUploadBatch,
		Path:      upload.Path,
		Actor:     upload.Caller,
		Outcome:   status.OK.String(),
		Detail: map[string]string{
			"chunks":  fmt.Sprint(len(result.Addresses)),
			"size":    fmt.Sprint(result.Metadata.Size),
			"owed":    result.Owed.String(),
			"version": fmt.Sprint(result.Metadata.Version),
		},
	})
	return result, nil
}

// fingerprintTx rehashes the first count chunks of path in index
// order. It reads every chunk, so a single-chunk write costs time
// proportional to the whole resource.
func (c *Catalog) fingerprintTx(r kv.Reader, path string, count int) (contentstore.Address, error) {
	hasher := contentstore.NewFingerprintHasher()
	for i := range count {
		address, err := chunkTx(r, path, i)
		if err != nil {
			return contentstore.Address{}, err
		}
		data, err := c.content.ReadTx(r, address)
		if err != nil {
			return contentstore.Address{}, fmt.Errorf("chunk %d: %w", i, err)
		}
		hasher.Write(data)
	}
	return hasher.Sum(), nil
}

// ReadChunks returns the addresses of the chunks r selects, in index
// order.
func (c *Catalog) ReadChunks(ctx context.Context, path string, r ChunkRange) (addresses []contentstore.Address, err error) {
	ctx, finish := tracing.Start(ctx, "catalog.ReadChunks", tracing.KeyPath.String(path))
	defer func() { finish(err) }()

	resource, err := c.ReadResource(ctx, path, r)
	if err != nil {
		return nil, err
	}
	addresses = make([]contentstore.Address, len(resource.Chunks))
	for i, chunk := range resource.Chunks {
		addresses[i] = chunk.Address
	}
	return addresses, nil
}

// ChunkInfo locates one chunk.
type ChunkInfo struct {
	Index   int                  `json:"index"`
	Address contentstore.Address `json:"address"`
	Size    int64                `json:"size"`
}

// Resource is a consistent view of one path: its metadata, effective
// header and a range of its chunks with their sizes.
type Resource struct {
	Metadata ResourceMetadata
	Header   HeaderRecord
	Chunks   []ChunkInfo
}

// ReadResource reads everything about path in one snapshot. Chunk
// sizes come from the content store's size records; no chunk bytes
// are read.
func (c *Catalog) ReadResource(ctx context.Context, path string, r ChunkRange) (Resource, error) {
	if err := validatePath(path); err != nil {
		return Resource{}, err
	}
	var resource Resource
	err := c.backend.View(ctx, func(reader kv.Reader) error {
		metadata, err := requireMetadata(reader, path)
		if err != nil {
			return err
		}
		header, err := effectiveHeaderTx(reader, metadata.Properties.Header)
		if err != nil {
			return err
		}
		first, last, err := r.resolve(metadata.ChunkCount)
		if err != nil {
			return fmt.Errorf("%w: {%d,%d} with %d chunks", err, r.Start, r.End, metadata.ChunkCount)
		}
		chunks := make([]ChunkInfo, 0, last-first+1)
		for i := first; i <= last; i++ {
			address, err := chunkTx(reader, path, i)
			if err != nil {
				return err
			}
			size, err := c.content.SizeTx(reader, address)
			if err != nil {
				return err
			}
			chunks = append(chunks, ChunkInfo{Index: i, Address: address, Size: size})
		}
		resource = Resource{Metadata: metadata, Header: header, Chunks: chunks}
		return nil
	})
	return resource, err
}

// DeleteResource removes the metadata and chunk list of path. The
// chunks' content records are untouched and stay readable by address.
func (c *Catalog) DeleteResource(ctx context.Context, caller identity.ID, path string) (err error) {
	ctx, finish := tracing.Start(ctx, "catalog.DeleteResource",
		tracing.KeyPath.String(path),
		tracing.KeyCaller.String(caller.String()),
	)
	defer func() { finish(err) }()

	if err := validatePath(path); err != nil {
		return err
	}
	if !c.authorizer.CanInvoke(ctx, caller, path, authz.OpDelete) {
		c.emitFailure(ctx, OperationDeleteResource, caller, path, ErrForbidden)
		return ErrForbidden
	}

	var removed ResourceMetadata
	err = c.backend.Update(ctx, func(txn kv.Txn) error {
		metadata, err := requireMetadata(txn, path)
		if err != nil {
			return err
		}
		for i := range metadata.ChunkCount {
			if err := txn.Delete(chunkKey(path, i)); err != nil {
				return err
			}
		}
		removed = metadata
		return txn.Delete(metadataKey(path))
	})
	if err != nil {
		c.emitFailure(ctx, OperationDeleteResource, caller, path, err)
		return err
	}

	tracing.Event(ctx, "chunks cleared", tracing.KeyPath.String(path))
	c.metrics.Operation(OperationDeleteResource, status.OK.String())
	c.logger.Info("resource deleted", "path", path, "chunks", removed.ChunkCount, "version", removed.Version)
	c.events.Emit(ctx, events.Event{
		Operation: OperationDeleteResource,
		Path:      path,
		Actor:     caller,
		Outcome:   status.OK.String(),
		Detail:    map[string]string{"chunks": fmt.Sprint(removed.ChunkCount)},
	})
	return nil
}
