// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The catalog stamps ResourceMetadata.LastModified, the ledger stamps
// registrations, and every emitted event carries a timestamp. All of
// them read time through a Clock so tests can pin it:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	catalog := catalog.New(ledger, store, catalog.Options{Clock: c})
//	c.Advance(time.Minute)
package clock
