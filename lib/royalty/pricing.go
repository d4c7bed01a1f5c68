// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package royalty

import (
	"errors"
	"math/bits"
	"strconv"
)

// Amount is a quantity of payment units.
type Amount uint64

// String returns the decimal form.
func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// ErrOverflow is returned when an amount computation exceeds 64 bits.
var ErrOverflow = errors.New("royalty: amount overflow")

// Pricing converts a content size into the cost of its first write.
//
//	units = BaseUnits + UnitsPerWord * ceil(size / 32)
//	cost  = units * UnitPrice
type Pricing struct {
	BaseUnits    uint64 `yaml:"base_units"`
	UnitsPerWord uint64 `yaml:"units_per_word"`
	UnitPrice    uint64 `yaml:"unit_price"`
}

// WordSize is the byte width of one priced storage word.
const WordSize = 32

// DefaultPricing charges a 21000-unit base plus 20000 units per
// 32-byte word at a unit price of 1.
func DefaultPricing() Pricing {
	return Pricing{BaseUnits: 21000, UnitsPerWord: 20000, UnitPrice: 1}
}

// Quote returns the cost units and cost of writing size bytes.
func (p Pricing) Quote(size int) (uint64, Amount, error) {
	if size < 0 {
		return 0, 0, errors.New("royalty: negative size")
	}
	words := (uint64(size) + WordSize - 1) / WordSize

	hi, perWord := bits.Mul64(p.UnitsPerWord, words)
	if hi != 0 {
		return 0, 0, ErrOverflow
	}
	units, carry := bits.Add64(p.BaseUnits, perWord, 0)
	if carry != 0 {
		return 0, 0, ErrOverflow
	}
	hi, cost := bits.Mul64(units, p.UnitPrice)
	if hi != 0 {
		return 0, 0, ErrOverflow
	}
	return units, Amount(cost), nil
}

// ProtocolShareDivisor sets the protocol's cut of each royalty: one
// tenth.
const ProtocolShareDivisor = 10

// Split divides an owed royalty into the publisher's and protocol's
// shares. The protocol takes owed/10 rounded down; the rounding
// remainder goes to the publisher, so the shares always sum to owed.
func Split(owed Amount) (publisher, protocol Amount) {
	protocol = owed / ProtocolShareDivisor
	return owed - protocol, protocol
}

// Add returns a+b, or ErrOverflow if the sum exceeds 64 bits.
func (a Amount) Add(b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return Amount(sum), nil
}
