// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package royalty attributes content to publishers and meters
// re-registration.
//
// The first registration of an address writes the content and records
// a [Registration] carrying the publisher (possibly null) and the cost
// of that first write, priced by [Pricing]. The cost is captured once
// and is the perpetual royalty for the address: anyone else who later
// registers the same bytes pays it, the publisher is credited 90% and
// the protocol treasury 10%. A null publisher waives royalties for the
// address permanently, and a publisher re-registering their own
// content pays nothing.
//
// Every mutation runs in one kv transaction in the order checks,
// effects, notification: payment and balance checks happen before
// any balance moves, and events are emitted only after commit.
package royalty
