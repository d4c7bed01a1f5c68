// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import "github.com/TechnicallyWeb3/esp/lib/status"

var (
	// ErrNotFound is returned for a path with no resource.
	ErrNotFound = status.NewError(status.NotFound, "catalog: resource not found")

	// ErrIndexOutOfBounds is returned for a chunk index past the
	// current count.
	ErrIndexOutOfBounds = status.NewError(status.BadRequest, "catalog: chunk index out of bounds")

	// ErrRangeOutOfBounds is returned when a chunk range resolves
	// outside the resource.
	ErrRangeOutOfBounds = status.NewError(status.BadRequest, "catalog: chunk range out of bounds")

	// ErrChunkTooLarge is returned for a chunk above the hard limit.
	ErrChunkTooLarge = status.NewError(status.PayloadTooLarge, "catalog: chunk exceeds size limit")

	// ErrInvalidPath is returned for a path that is empty, relative,
	// or contains a NUL byte.
	ErrInvalidPath = status.NewError(status.BadRequest, "catalog: invalid path")

	// ErrInvalidHeader is returned by HeaderRecord.Validate.
	ErrInvalidHeader = status.NewError(status.BadRequest, "catalog: invalid header")

	// ErrHeaderNotFound is returned for an unknown header ref.
	ErrHeaderNotFound = status.NewError(status.NotFound, "catalog: header not found")

	// ErrEmptyBatch is returned for an upload with no chunks.
	ErrEmptyBatch = status.NewError(status.BadRequest, "catalog: batch has no chunks")

	// ErrForbidden is returned when the authorization check refuses a
	// mutation. It carries no detail.
	ErrForbidden = status.NewError(status.Forbidden, "catalog: forbidden")
)
