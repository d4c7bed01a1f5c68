// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/TechnicallyWeb3/esp/lib/catalog"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/royalty"
)

// Upload is a whole payload to publish at one path.
type Upload struct {
	Caller    identity.ID
	Path      string
	Data      []byte
	Publisher identity.ID

	// Payment covers royalties owed on chunks other publishers
	// registered first. The unused remainder is refunded.
	Payment royalty.Amount

	// Properties, when set, replace the resource properties.
	Properties *catalog.Properties
}

// Publish splits the payload with the engine's splitter and replaces
// the resource at the upload path with the resulting chunks in one
// transaction.
func (e *Engine) Publish(ctx context.Context, upload Upload) (catalog.BatchResult, error) {
	pieces := catalog.Split(upload.Data, e.Splitter)
	chunks := make([]catalog.ChunkUpload, len(pieces))
	for i, piece := range pieces {
		chunks[i] = catalog.ChunkUpload{Data: piece, Publisher: upload.Publisher}
	}
	return e.Catalog.UploadBatch(ctx, catalog.BatchUpload{
		Caller:     upload.Caller,
		Path:       upload.Path,
		Chunks:     chunks,
		Payment:    upload.Payment,
		Properties: upload.Properties,
	})
}

// Quote is the cost estimate for publishing a payload.
type Quote struct {
	// Chunks is the number of chunks the payload splits into.
	Chunks int

	// New counts chunks that would be registered for the first time,
	// and Cost is the sum of their first-write costs.
	New  int
	Cost royalty.Amount

	// Royalty is the payment Publish needs for chunks other
	// publishers registered first.
	Royalty royalty.Amount
}

// Quote estimates what publishing data as caller on behalf of
// publisher would cost now. Repeated chunks inside the payload are
// priced as the batch would price them.
func (e *Engine) Quote(ctx context.Context, caller, publisher identity.ID, data []byte) (Quote, error) {
	pieces := catalog.Split(data, e.Splitter)
	pricing := e.Ledger.Pricing()
	pending := make(map[contentstore.Address]royalty.Registration)

	quote := Quote{Chunks: len(pieces)}
	for i, piece := range pieces {
		address := contentstore.CalculateAddress(piece)
		registration, seen := pending[address]
		if !seen {
			var err error
			registration, err = e.Ledger.Registration(ctx, address)
			if errors.Is(err, royalty.ErrNotRegistered) {
				_, cost, err := pricing.Quote(len(piece))
				if err != nil {
					return Quote{}, fmt.Errorf("chunk %d: %w", i, err)
				}
				pending[address] = royalty.Registration{Address: address, Publisher: publisher, Cost: cost}
				quote.New++
				if quote.Cost, err = quote.Cost.Add(cost); err != nil {
					return Quote{}, fmt.Errorf("write cost through chunk %d: %w", i, err)
				}
				continue
			}
			if err != nil {
				return Quote{}, fmt.Errorf("chunk %d: %w", i, err)
			}
			pending[address] = registration
		}
		if registration.Waived() || registration.Publisher == caller {
			continue
		}
		var err error
		if quote.Royalty, err = quote.Royalty.Add(registration.Cost); err != nil {
			return Quote{}, fmt.Errorf("royalty through chunk %d: %w", i, err)
		}
	}
	return quote, nil
}
