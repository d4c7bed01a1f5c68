// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the at-rest encoding of a stored payload.
// The tag is the first byte of every stored payload, so the values
// are part of the on-disk format.
type Compression uint8

const (
	// CompressionNone stores bytes as given.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level: better ratio on
	// text-like content.
	CompressionZstd Compression = 2

	// CompressionAuto is a configuration value only. It probes each
	// payload with zstd and picks zstd, lz4 or none by ratio. It is
	// never stored.
	CompressionAuto Compression = 0xFF
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionAuto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name. The empty string
// means auto.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "auto":
		return CompressionAuto, nil
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// errIncompressible means the encoded form was not smaller than the
// input; the caller stores the bytes uncompressed instead.
var errIncompressible = errors.New("data is incompressible")

// encoder and decoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("contentstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("contentstore: zstd decoder initialization failed: " + err.Error())
	}
}

// selectCompression resolves CompressionAuto by probing data with
// zstd: a ratio of at least 1.5 picks zstd, at least 1.1 picks lz4,
// anything less is stored uncompressed. Payloads under 64 bytes are
// never worth the tag overhead.
func selectCompression(data []byte, configured Compression) Compression {
	if configured != CompressionAuto {
		return configured
	}
	if len(data) < 64 {
		return CompressionNone
	}
	compressed := zstdEncoder.EncodeAll(data, nil)
	ratio := float64(len(data)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return CompressionZstd
	case ratio >= 1.1:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// encodePayload returns the stored form of data: one compression tag
// byte followed by the (possibly compressed) bytes. Incompressible
// data falls back to CompressionNone.
func encodePayload(data []byte, configured Compression) ([]byte, Compression, error) {
	tag := selectCompression(data, configured)

	var body []byte
	var err error
	switch tag {
	case CompressionNone:
		body = data
	case CompressionLZ4:
		body, err = compressLZ4(data)
	case CompressionZstd:
		body, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression %s", tag)
	}
	if errors.Is(err, errIncompressible) {
		tag, body, err = CompressionNone, data, nil
	}
	if err != nil {
		return nil, 0, err
	}

	payload := make([]byte, 1+len(body))
	payload[0] = byte(tag)
	copy(payload[1:], body)
	return payload, tag, nil
}

// decodePayload reverses encodePayload. size is the uncompressed
// length recorded alongside the payload and is verified.
func decodePayload(payload []byte, size int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("stored payload is empty")
	}
	tag, body := Compression(payload[0]), payload[1:]
	switch tag {
	case CompressionNone:
		if len(body) != size {
			return nil, fmt.Errorf("stored payload is %d bytes, expected %d", len(body), size)
		}
		return body, nil
	case CompressionLZ4:
		return decompressLZ4(body, size)
	case CompressionZstd:
		return decompressZstd(body, size)
	default:
		return nil, fmt.Errorf("unsupported stored compression tag %d", uint8(tag))
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
