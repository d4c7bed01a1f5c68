// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/TechnicallyWeb3/esp/lib/kv"
)

func nonEmptyBytes() gopter.Gen {
	return gen.SliceOf(gen.UInt8()).SuchThat(func(data []uint8) bool {
		return len(data) > 0
	})
}

func TestStoreProperties(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, Config{Compression: CompressionAuto})

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("write returns CalculateAddress and reads back", prop.ForAll(
		func(data []byte) bool {
			address, err := store.Write(ctx, data)
			if err != nil || address != CalculateAddress(data) {
				return false
			}
			read, err := store.Read(ctx, address)
			return err == nil && bytes.Equal(read, data)
		},
		nonEmptyBytes(),
	))

	properties.Property("second write is a no-op", prop.ForAll(
		func(data []byte) bool {
			if _, err := store.Write(ctx, data); err != nil {
				return false
			}
			var result WriteResult
			err := store.Backend().Update(ctx, func(txn kv.Txn) error {
				var err error
				result, err = store.WriteTx(txn, data)
				return err
			})
			if err != nil || result.Created {
				return false
			}
			size, err := store.Size(ctx, result.Address)
			return err == nil && size == int64(len(data))
		},
		nonEmptyBytes(),
	))

	properties.Property("distinct bytes have distinct addresses", prop.ForAll(
		func(first, second []byte) bool {
			if bytes.Equal(first, second) {
				return true
			}
			return CalculateAddress(first) != CalculateAddress(second)
		},
		nonEmptyBytes(),
		nonEmptyBytes(),
	))

	properties.TestingRun(t)
}
