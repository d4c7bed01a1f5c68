// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechnicallyWeb3/esp/lib/contentstore"
)

func randomBytes(seed int64, n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

func TestFixedSplitter(t *testing.T) {
	chunks := Split([]byte("abcdefghij"), FixedSplitter{Size: 4})
	require.Len(t, chunks, 3)
	assert.Equal(t, []byte("abcd"), chunks[0])
	assert.Equal(t, []byte("efgh"), chunks[1])
	assert.Equal(t, []byte("ij"), chunks[2])

	assert.Empty(t, Split(nil, FixedSplitter{Size: 4}))
	assert.Len(t, Split([]byte("abc"), FixedSplitter{}), 3)
}

func TestSplitChunksDoNotAlias(t *testing.T) {
	data := []byte("abcdefgh")
	chunks := Split(data, FixedSplitter{Size: 4})
	chunks[0] = append(chunks[0], 'X')
	assert.Equal(t, []byte("abcdefgh"), data)
}

func TestGearSplitterBounds(t *testing.T) {
	splitter := NewGearSplitter(RecommendedChunkSize)
	assert.Equal(t, 8<<10, splitter.Min)
	assert.Equal(t, RecommendedChunkSize, splitter.Max)

	data := randomBytes(1, 1<<20)
	chunks := Split(data, splitter)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), splitter.Max, "chunk %d", i)
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, len(chunk), splitter.Min, "chunk %d", i)
		}
	}
	assert.Equal(t, data, bytes.Join(chunks, nil))

	small := randomBytes(2, 1000)
	assert.Equal(t, [][]byte{small}, Split(small, splitter))
}

func TestGearSplitterResynchronizes(t *testing.T) {
	splitter := NewGearSplitter(RecommendedChunkSize)
	original := randomBytes(3, 1<<20)
	const at = 400 << 10
	edited := append(append(append([]byte{}, original[:at]...), []byte("inserted bytes")...), original[at:]...)

	addresses := make(map[contentstore.Address]bool)
	var prefix int
	offset := 0
	for _, chunk := range Split(original, splitter) {
		addresses[contentstore.CalculateAddress(chunk)] = true
		offset += len(chunk)
		if offset <= at {
			prefix++
		}
	}

	var sharedBefore, sharedAfter int
	offset = 0
	for _, chunk := range Split(edited, splitter) {
		start := offset
		offset += len(chunk)
		if !addresses[contentstore.CalculateAddress(chunk)] {
			continue
		}
		if start < at {
			sharedBefore++
		} else {
			sharedAfter++
		}
	}
	assert.Equal(t, prefix, sharedBefore)
	assert.Positive(t, sharedAfter)
}

func TestParseSplitter(t *testing.T) {
	splitter, err := ParseSplitter("", RecommendedChunkSize)
	require.NoError(t, err)
	assert.Equal(t, FixedSplitter{Size: RecommendedChunkSize}, splitter)

	splitter, err = ParseSplitter("fixed", 1024)
	require.NoError(t, err)
	assert.Equal(t, FixedSplitter{Size: 1024}, splitter)

	splitter, err = ParseSplitter("GEAR", RecommendedChunkSize)
	require.NoError(t, err)
	assert.Equal(t, NewGearSplitter(RecommendedChunkSize), splitter)

	_, err = ParseSplitter("rabin", MaxChunkSize)
	assert.Error(t, err)
	_, err = ParseSplitter("fixed", 0)
	assert.Error(t, err)
}

func TestSplitProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	splitters := map[string]Splitter{
		"fixed": FixedSplitter{Size: 7},
		"gear":  GearSplitter{Min: 16, Max: 64, Mask: 0xF000000000000000},
	}
	for name, splitter := range splitters {
		properties.Property(name+" chunks concatenate to the input", prop.ForAll(
			func(data []byte) bool {
				chunks := Split(data, splitter)
				for _, chunk := range chunks {
					if len(chunk) == 0 {
						return false
					}
				}
				return bytes.Equal(bytes.Join(chunks, nil), data)
			},
			gen.SliceOf(gen.UInt8()),
		))
	}

	properties.TestingRun(t)
}
