// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package assembler

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/TechnicallyWeb3/esp/lib/catalog"
)

// ETag returns a strong entity tag for a resource's representation:
// its content fingerprint, size and content properties. It changes
// whenever the bytes or how they are described change, and not when
// identical content is uploaded again.
func ETag(metadata catalog.ResourceMetadata) string {
	hasher := blake3.New()
	hasher.Write([]byte("esp.assembler.etag\x00"))
	hasher.Write(binary.BigEndian.AppendUint64(nil, uint64(metadata.Size)))
	for _, field := range []string{
		metadata.Properties.ContentType,
		metadata.Properties.Charset,
		metadata.Properties.Encoding,
		metadata.Properties.Language,
	} {
		hasher.Write(binary.BigEndian.AppendUint32(nil, uint32(len(field))))
		hasher.Write([]byte(field))
	}
	hasher.Write(metadata.Fingerprint[:])
	sum := hasher.Sum(nil)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
