// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity defines the opaque caller and publisher identifier
// handed to the engine by the identity collaborator. The engine never
// inspects an identifier's structure; it only distinguishes the null
// identifier from everything else.
package identity

import (
	"fmt"
	"strings"
)

// ID is an opaque account identifier (a wallet address, a key
// fingerprint, a user name). Comparison is exact.
type ID string

// Null is the null identifier. Registering content with a Null
// publisher waives royalties for that content permanently.
const Null ID = ""

// IsNull reports whether id is the null identifier.
func (id ID) IsNull() bool { return id == Null }

// String returns the identifier, or "<null>" for Null so log lines
// never show an empty value.
func (id ID) String() string {
	if id.IsNull() {
		return "<null>"
	}
	return string(id)
}

// Parse trims surrounding whitespace and returns the identifier.
// Parse accepts the empty string and the literal "null" as Null;
// callers that require a non-null identifier use ParseRequired.
func Parse(value string) ID {
	value = strings.TrimSpace(value)
	if value == "null" {
		return Null
	}
	return ID(value)
}

// ParseRequired is Parse, but rejects the null identifier.
func ParseRequired(value string) (ID, error) {
	id := Parse(value)
	if id.IsNull() {
		return Null, fmt.Errorf("identifier is required")
	}
	return id, nil
}
