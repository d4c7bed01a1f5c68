// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package assembler serves byte ranges of catalog resources.
//
// A request is answered from one consistent catalog snapshot: the
// resource's metadata, effective header and every chunk's address and
// size. The byte range is resolved against the total size, and only
// the chunks overlapping it are read from the content store; the first
// and last are trimmed to the range. A range over k of N chunks costs
// k reads.
//
// Every failure is decided before any chunk is read: unknown path,
// refused method, unsatisfiable range, or a response above the
// configured size ceiling. Conditional requests whose ETag or
// modification time match return NotModified without reading chunks.
//
// The assembler holds no state between requests and never retries.
package assembler
