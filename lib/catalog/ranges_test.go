// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRange(t *testing.T) {
	tests := []struct {
		start, end, total int64
		first, last       int64
		ok                bool
	}{
		{0, 0, 5, 0, 4, true},
		{0, 0, 0, 0, -1, true},
		{-3, -1, 5, 2, 4, true},
		{-1, -1, 5, 4, 4, true},
		{1, 2, 5, 1, 2, true},
		{0, 4, 5, 0, 4, true},
		{2, -1, 5, 2, 4, true},
		{0, 5, 5, 0, 0, false},
		{3, 1, 5, 0, 0, false},
		{-6, -1, 5, 0, 0, false},
		{0, 1, 0, 0, 0, false},
		{800, 1700, 2500, 800, 1700, true},
		{0, 2500, 2500, 0, 0, false},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d,%d/%d", test.start, test.end, test.total), func(t *testing.T) {
			first, last, ok := ResolveRange(test.start, test.end, test.total)
			assert.Equal(t, test.ok, ok)
			if test.ok {
				assert.Equal(t, test.first, first)
				assert.Equal(t, test.last, last)
			}
		})
	}
}
