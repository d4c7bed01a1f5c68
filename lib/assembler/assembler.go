// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TechnicallyWeb3/esp/lib/authz"
	"github.com/TechnicallyWeb3/esp/lib/catalog"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/metrics"
	"github.com/TechnicallyWeb3/esp/lib/status"
	"github.com/TechnicallyWeb3/esp/lib/tracing"
)

var (
	// ErrMethodNotAllowed is returned when the caller may not use the
	// method on the path, or the path's header does not offer it.
	ErrMethodNotAllowed = status.NewError(status.MethodNotAllowed, "assembler: method not allowed")

	// ErrRangeNotSatisfiable is returned for a byte range outside the
	// resource.
	ErrRangeNotSatisfiable = status.NewError(status.RangeNotSatisfiable, "assembler: range not satisfiable")

	// ErrResourceLimit is returned when a response would exceed the
	// configured size ceiling.
	ErrResourceLimit = status.NewError(status.PayloadTooLarge, "assembler: response exceeds size limit")

	// ErrCorruptChunk is returned when a chunk read back does not match
	// its address or recorded size.
	ErrCorruptChunk = status.NewError(status.InternalError, "assembler: chunk does not match its address")
)

// Operation names for metrics.
const (
	OperationLocate  = "locate"
	OperationResolve = "resolve"
	OperationHead    = "head"
	OperationOptions = "options"
)

// Reader reads content by address.
type Reader interface {
	Read(ctx context.Context, address contentstore.Address) ([]byte, error)
}

// Config configures an Assembler.
type Config struct {
	// Catalog is required.
	Catalog *catalog.Catalog

	// Content reads chunk bytes. Nil uses the catalog's content store.
	Content Reader

	// Authorizer is consulted before every request. Nil allows all.
	Authorizer authz.Checker

	// MaxResponseBytes caps the bytes one Resolve may return. Zero
	// means no limit.
	MaxResponseBytes int64

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Assembler answers locate and range requests.
type Assembler struct {
	catalog    *catalog.Catalog
	content    Reader
	authorizer authz.Checker
	maxBytes   int64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New returns an Assembler.
func New(cfg Config) (*Assembler, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("assembler: Catalog is required")
	}
	if cfg.MaxResponseBytes < 0 {
		return nil, fmt.Errorf("assembler: MaxResponseBytes %d is negative", cfg.MaxResponseBytes)
	}
	content := cfg.Content
	if content == nil {
		content = cfg.Catalog.Content()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{
		catalog:    cfg.Catalog,
		content:    content,
		authorizer: authz.OrAllow(cfg.Authorizer),
		maxBytes:   cfg.MaxResponseBytes,
		metrics:    cfg.Metrics,
		logger:     logger,
	}, nil
}

// Location is the result of Locate.
type Location struct {
	Metadata catalog.ResourceMetadata
	Header   catalog.HeaderRecord
	Chunks   []catalog.ChunkInfo

	// TotalSize is the sum of the located chunks' sizes.
	TotalSize int64
}

// Locate lists the chunks r selects with their sizes, without reading
// any chunk bytes.
func (a *Assembler) Locate(ctx context.Context, caller identity.ID, path string, r catalog.ChunkRange) (location Location, err error) {
	ctx, finish := tracing.Start(ctx, "assembler.Locate",
		tracing.KeyPath.String(path),
		tracing.KeyCaller.String(caller.String()),
	)
	defer func() {
		a.metrics.Operation(OperationLocate, status.FromError(err).String())
		finish(err)
	}()

	resource, err := a.open(ctx, caller, path, r, catalog.MethodLocate)
	if err != nil {
		return Location{}, err
	}
	location = Location{Metadata: resource.Metadata, Header: resource.Header, Chunks: resource.Chunks}
	for _, chunk := range resource.Chunks {
		location.TotalSize += chunk.Size
	}
	return location, nil
}

// ByteRange selects bytes by inclusive offset. Negative offsets count
// from the end and {0, 0} selects everything.
type ByteRange struct {
	Start int64
	End   int64
}

// Request is a conditional range read.
type Request struct {
	Caller identity.ID
	Path   string

	// Chunks selects the chunks Range is relative to. The zero value
	// is every chunk.
	Chunks catalog.ChunkRange
	Range  ByteRange

	// IfNoneMatch, when it equals the current ETag or the hex
	// fingerprint of the whole resource, makes the response
	// NotModified.
	IfNoneMatch string

	// IfModifiedSince, when the resource has not changed after it,
	// makes the response NotModified. Ignored if IfNoneMatch is set.
	IfModifiedSince time.Time
}

// Response is the result of Resolve or Head.
type Response struct {
	// Status is OK, PartialContent, NotModified, or the header's
	// redirect code.
	Status status.Status

	// Content holds the requested bytes for OK and PartialContent.
	Content []byte

	// Fingerprint is contentstore.Fingerprint of Content.
	Fingerprint contentstore.Address

	ETag     string
	Metadata catalog.ResourceMetadata
	Header   catalog.HeaderRecord

	// Chunks are the chunks Content was assembled from, or every chunk
	// for Head.
	Chunks []catalog.ChunkInfo

	// First and Last are the inclusive offsets of Content within the
	// located chunks, which are the whole resource unless
	// Request.Chunks narrows them.
	First int64
	Last  int64

	// TotalSize is the size of the located chunks.
	TotalSize int64

	// Location is the redirect target when Status is a redirect.
	Location string
}

// Resolve answers a GET for a byte range of a resource.
func (a *Assembler) Resolve(ctx context.Context, request Request) (response Response, err error) {
	ctx, finish := tracing.Start(ctx, "assembler.Resolve",
		tracing.KeyPath.String(request.Path),
		tracing.KeyCaller.String(request.Caller.String()),
	)
	defer func() {
		a.metrics.Operation(OperationResolve, status.FromError(err).String())
		finish(err)
	}()

	resource, err := a.open(ctx, request.Caller, request.Path, request.Chunks, catalog.MethodGet)
	if err != nil {
		return Response{}, err
	}
	response = describe(resource)
	if response.Status.IsRedirect() {
		return response, nil
	}
	if notModified(request, response) {
		response.Status = status.NotModified
		return response, nil
	}

	first, last, ok := catalog.ResolveRange(request.Range.Start, request.Range.End, response.TotalSize)
	if !ok {
		return Response{}, fmt.Errorf("%w: bytes {%d,%d} of %d", ErrRangeNotSatisfiable, request.Range.Start, request.Range.End, response.TotalSize)
	}
	if length := last - first + 1; a.maxBytes > 0 && length > a.maxBytes {
		return Response{}, fmt.Errorf("%w: %d bytes, limit %d", ErrResourceLimit, length, a.maxBytes)
	}

	content, chunks, err := a.assemble(ctx, resource.Chunks, first, last)
	if err != nil {
		return Response{}, err
	}
	response.Content = content
	response.Chunks = chunks
	response.Fingerprint = contentstore.Fingerprint(content)
	response.First = first
	response.Last = last
	if first == 0 && last == response.TotalSize-1 {
		response.Status = status.OK
	} else {
		response.Status = status.PartialContent
	}

	a.metrics.Assembled(len(chunks), len(content))
	a.logger.Debug("range assembled",
		"path", request.Path,
		"first", first,
		"last", last,
		"chunks", len(chunks),
		"status", response.Status.String(),
	)
	return response, nil
}

// Head answers a HEAD: metadata, header and ETag, no content.
func (a *Assembler) Head(ctx context.Context, caller identity.ID, path string) (response Response, err error) {
	ctx, finish := tracing.Start(ctx, "assembler.Head",
		tracing.KeyPath.String(path),
		tracing.KeyCaller.String(caller.String()),
	)
	defer func() {
		a.metrics.Operation(OperationHead, status.FromError(err).String())
		finish(err)
	}()

	resource, err := a.open(ctx, caller, path, catalog.AllChunks, catalog.MethodHead)
	if err != nil {
		return Response{}, err
	}
	return describe(resource), nil
}

// Options returns the methods the header in effect for path offers.
// It works for paths with no resource.
func (a *Assembler) Options(ctx context.Context, caller identity.ID, path string) (methods catalog.MethodSet, err error) {
	defer func() { a.metrics.Operation(OperationOptions, status.FromError(err).String()) }()

	if !a.authorizer.CanInvoke(ctx, caller, path, authz.OpOptions) {
		return 0, ErrMethodNotAllowed
	}
	header, err := a.catalog.ReadHeader(ctx, path)
	if err != nil {
		return 0, err
	}
	return header.CORSMethods, nil
}

// open checks that caller may locate path and use method on it, then
// reads the resource snapshot.
func (a *Assembler) open(ctx context.Context, caller identity.ID, path string, r catalog.ChunkRange, method catalog.Method) (catalog.Resource, error) {
	if !a.authorizer.CanInvoke(ctx, caller, path, authz.OpLocate) {
		return catalog.Resource{}, ErrMethodNotAllowed
	}
	if op := method.Operation(); op != authz.OpLocate && !a.authorizer.CanInvoke(ctx, caller, path, op) {
		return catalog.Resource{}, ErrMethodNotAllowed
	}
	resource, err := a.catalog.ReadResource(ctx, path, r)
	if err != nil {
		return catalog.Resource{}, err
	}
	if !resource.Header.Allows(method) {
		return catalog.Resource{}, fmt.Errorf("%w: %s on %s", ErrMethodNotAllowed, method, path)
	}
	return resource, nil
}

// describe fills everything but the content from a snapshot.
func describe(resource catalog.Resource) Response {
	response := Response{
		Status:   status.OK,
		ETag:     ETag(resource.Metadata),
		Metadata: resource.Metadata,
		Header:   resource.Header,
		Chunks:   resource.Chunks,
	}
	for _, chunk := range resource.Chunks {
		response.TotalSize += chunk.Size
	}
	if resource.Header.RedirectCode != 0 {
		response.Status = resource.Header.RedirectCode
		response.Location = resource.Header.RedirectLocation
	}
	return response
}

func notModified(request Request, response Response) bool {
	if request.IfNoneMatch != "" {
		if request.IfNoneMatch == response.ETag {
			return true
		}
		fingerprint := response.Metadata.Fingerprint
		return !fingerprint.IsZero() && strings.Trim(request.IfNoneMatch, `"`) == fingerprint.String()
	}
	if !request.IfModifiedSince.IsZero() {
		return !response.Metadata.LastModified.After(request.IfModifiedSince)
	}
	return false
}

// assemble reads the chunks overlapping [first, last] and trims the
// ends to the range.
func (a *Assembler) assemble(ctx context.Context, chunks []catalog.ChunkInfo, first, last int64) ([]byte, []catalog.ChunkInfo, error) {
	content := make([]byte, 0, last-first+1)
	var used []catalog.ChunkInfo
	var offset int64
	for _, chunk := range chunks {
		start, end := offset, offset+chunk.Size-1
		offset += chunk.Size
		if end < first {
			continue
		}
		if start > last {
			break
		}

		data, err := a.content.Read(ctx, chunk.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("reading chunk %d: %w", chunk.Index, err)
		}
		if int64(len(data)) != chunk.Size || contentstore.CalculateAddress(data) != chunk.Address {
			return nil, nil, fmt.Errorf("%w: chunk %d (%s)", ErrCorruptChunk, chunk.Index, chunk.Address.Short())
		}
		low := max(first-start, 0)
		high := min(last, end) - start + 1
		content = append(content, data[low:high]...)
		used = append(used, chunk)
	}
	return content, used, nil
}
