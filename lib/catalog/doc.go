// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog maps logical paths to ordered sequences of content
// addresses, per-path [ResourceMetadata], and shared [HeaderRecord]s
// carrying CORS, cache and redirect settings.
//
// A resource's chunks occupy dense indices from 0. A write may replace
// the chunk at an existing index or append at exactly the current
// count; anything past the end is rejected, so there are never holes.
// Every chunk's bytes go through the royalty ledger, which stores them
// in the content store and charges royalties for content someone else
// published first.
//
// Deleting a resource drops its metadata and chunk list. The content
// records stay in the content store and remain readable by address.
//
// Each mutating call runs in one kv transaction: the ledger
// registration, the chunk slot and the metadata update commit
// together or not at all, and readers see the chunk list either
// before or after a write, never in between.
package catalog
