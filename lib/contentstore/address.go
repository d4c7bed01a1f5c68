// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// FormatVersion is appended to content bytes before hashing. Bumping
// it moves every address into a new space.
const FormatVersion byte = 1

// Address is a 32-byte content address.
type Address [32]byte

// domainKey is a 32-byte BLAKE3 key. The same bytes hashed under
// different domain keys never collide across domains.
type domainKey [32]byte

// The keys are the ASCII domain names zero-padded to 32 bytes.
// Changing one invalidates every hash in its domain.
var (
	contentDomainKey = domainKey{
		'e', 's', 'p', '.', 'c', 'o', 'n', 't', 'e', 'n', 't', '.', 'c', 'h', 'u', 'n',
		'k', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	fingerprintDomainKey = domainKey{
		'e', 's', 'p', '.', 'c', 'o', 'n', 't', 'e', 'n', 't', '.', 'f', 'i', 'n', 'g',
		'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// CalculateAddress returns the address Write stores data under. It
// has no side effects.
func CalculateAddress(data []byte) Address {
	hasher := newHasher(contentDomainKey)
	hasher.Write(data)
	hasher.Write([]byte{FormatVersion})
	var address Address
	copy(address[:], hasher.Sum(nil))
	return address
}

// Fingerprint hashes an assembled byte sequence for caller-side
// integrity checks. It lives in its own domain so a fingerprint can
// never be mistaken for a content address.
func Fingerprint(data []byte) Address {
	hasher := newHasher(fingerprintDomainKey)
	hasher.Write(data)
	var sum Address
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// Hasher is an incremental fingerprint hasher.
type Hasher struct {
	inner *blake3.Hasher
}

// NewFingerprintHasher returns a Hasher whose Sum equals
// Fingerprint over everything written.
func NewFingerprintHasher() *Hasher {
	return &Hasher{inner: newHasher(fingerprintDomainKey)}
}

// Write adds data to the running hash. It never fails.
func (h *Hasher) Write(data []byte) (int, error) {
	return h.inner.Write(data)
}

// Sum returns the fingerprint of everything written so far.
func (h *Hasher) Sum() Address {
	var sum Address
	copy(sum[:], h.inner.Sum(nil))
	return sum
}

func newHasher(key domainKey) *blake3.Hasher {
	// NewKeyed only fails on a key that is not 32 bytes.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("contentstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

// IsZero reports whether the address is all zeros, which no stored
// record has.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the lowercase hex form.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns the first 12 hex characters, for logs and CLI output.
func (a Address) Short() string {
	return hex.EncodeToString(a[:6])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a 64-character hex string.
func ParseAddress(text string) (Address, error) {
	var address Address
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return address, fmt.Errorf("parsing content address: %w", err)
	}
	if len(decoded) != len(address) {
		return address, fmt.Errorf("content address is %d bytes, want %d", len(decoded), len(address))
	}
	copy(address[:], decoded)
	return address, nil
}
