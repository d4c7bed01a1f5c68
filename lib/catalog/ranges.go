// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

// ChunkRange selects chunks by inclusive index. Negative indices count
// from the end (-1 is the last chunk) and {0, 0} selects every chunk.
type ChunkRange struct {
	Start int
	End   int
}

// AllChunks selects every chunk.
var AllChunks = ChunkRange{}

// ResolveRange turns an inclusive start/end pair with the
// negative-from-end and {0,0}-means-all conventions into absolute
// bounds within [0, total-1]. It reports false when the pair falls
// outside. For total 0 only {0,0} resolves, to the empty span
// first=0, last=-1.
func ResolveRange(start, end, total int64) (first, last int64, ok bool) {
	if start == 0 && end == 0 {
		return 0, total - 1, true
	}
	if start < 0 {
		start += total
	}
	if end < 0 {
		end += total
	}
	if start < 0 || end >= total || start > end {
		return 0, 0, false
	}
	return start, end, true
}

// resolve returns absolute chunk bounds for count chunks.
func (r ChunkRange) resolve(count int) (first, last int, err error) {
	f, l, ok := ResolveRange(int64(r.Start), int64(r.End), int64(count))
	if !ok {
		return 0, 0, ErrRangeOutOfBounds
	}
	return int(f), int(l), nil
}
