// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Splitter cuts a payload into chunk-sized pieces.
type Splitter interface {
	// Next returns the length of the first chunk of data, which is
	// never empty.
	Next(data []byte) int
}

// Split cuts data into consecutive chunks with s. The chunks are
// subslices of data. Empty data yields no chunks.
func Split(data []byte, s Splitter) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := s.Next(data)
		chunks = append(chunks, data[:n:n])
		data = data[n:]
	}
	return chunks
}

// FixedSplitter cuts every Size bytes.
type FixedSplitter struct {
	Size int
}

// Next implements Splitter.
func (f FixedSplitter) Next(data []byte) int {
	return min(len(data), max(f.Size, 1))
}

// GearSplitter places boundaries where a GearHash rolling hash of the
// content matches a mask, so an insertion only changes the chunks
// around it and the rest keep their addresses.
type GearSplitter struct {
	Min  int
	Max  int
	Mask uint64
}

// gearMask gives a boundary probability of 1/2^14 per byte past Min.
const gearMask uint64 = 0xFFFC000000000000

// NewGearSplitter returns a GearSplitter whose chunks never exceed
// maxChunk.
func NewGearSplitter(maxChunk int) GearSplitter {
	maxChunk = max(maxChunk, 1)
	return GearSplitter{
		Min:  min(8<<10, maxChunk/4),
		Max:  maxChunk,
		Mask: gearMask,
	}
}

// Next implements Splitter.
func (g GearSplitter) Next(data []byte) int {
	limit := max(g.Max, 1)
	if len(data) <= limit {
		return len(data)
	}
	// No boundary can occur before Min, and the hash only depends on
	// the last 64 bytes, so the first Min-65 bytes need not be
	// hashed.
	var hash uint64
	position := max(g.Min-64-1, 0)
	for position < limit {
		hash = (hash << 1) + gearTable[data[position]]
		position++
		if position >= g.Min && hash&g.Mask == 0 {
			return position
		}
	}
	return limit
}

// ParseSplitter returns the splitter named name ("fixed", or "gear"
// for content-defined boundaries) producing chunks of at most size
// bytes.
func ParseSplitter(name string, size int) (Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size %d is not positive", size)
	}
	switch strings.ToLower(name) {
	case "", "fixed":
		return FixedSplitter{Size: size}, nil
	case "gear", "cdc":
		return NewGearSplitter(size), nil
	default:
		return nil, fmt.Errorf("unknown splitter %q (want fixed or gear)", name)
	}
}

// gearTable holds one pseudo-random 64-bit value per byte value,
// derived from BLAKE3 so boundaries are stable across releases.
var gearTable = func() [256]uint64 {
	var table [256]uint64
	seed := []byte("esp.catalog.gear\x00")
	for i := range table {
		seed[len(seed)-1] = byte(i)
		sum := blake3.Sum256(seed)
		table[i] = binary.LittleEndian.Uint64(sum[:8])
	}
	return table
}()
