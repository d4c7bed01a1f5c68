// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentstore is the immutable, content-addressed layer of
// the engine. A record's [Address] is the BLAKE3 keyed hash of its
// bytes followed by the format version byte, so identical bytes always
// land at the same address and a write of bytes already present is a
// no-op.
//
// Records are never mutated or deleted. Removing a resource at the
// catalog layer only drops references; the bytes stay readable by
// address for anyone who kept it.
//
// Each record is persisted as two kv entries: the payload (prefixed by
// a one-byte compression tag) and its uncompressed size. Size and
// existence checks read only the size entry. Compression is applied at
// rest and is invisible to callers: addresses are always computed over
// the uncompressed bytes, so deduplication holds across compression
// choices.
//
// Every operation has a transactional variant (WriteTx, ReadTx, SizeTx)
// that runs against a caller-supplied kv transaction, which is how the
// royalty ledger and catalog fold a content write into a larger atomic
// unit.
package contentstore
