// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// every persisted ESP record: registration records, publisher
// balances, header records, resource metadata, and chunk arrays.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. Same logical data always produces identical bytes, which is
// what lets a header record be addressed by the hash of its encoding.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types that are only ever persisted use `cbor` struct tags. Types
// that are also printed by the CLI as JSON use `json` tags, which
// fxamacker/cbor reads as a fallback. Never put both on one field.
package codec
