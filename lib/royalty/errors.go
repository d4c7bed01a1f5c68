// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package royalty

import (
	"fmt"

	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/status"
)

var (
	// ErrInsufficientRoyaltyPayment matches *InsufficientRoyaltyPaymentError.
	ErrInsufficientRoyaltyPayment = status.NewError(status.PaymentRequired, "royalty: insufficient royalty payment")

	// ErrInsufficientBalance matches *InsufficientBalanceError.
	ErrInsufficientBalance = status.NewError(status.BadRequest, "royalty: insufficient balance")

	// ErrUnauthorized is returned when the caller is not the
	// publisher of record, or the authorization check refuses.
	ErrUnauthorized = status.NewError(status.Forbidden, "royalty: unauthorized")

	// ErrInvalidPublisher is returned when a new publisher is null.
	ErrInvalidPublisher = status.NewError(status.BadRequest, "royalty: invalid publisher")

	// ErrInvalidRecipient is returned when a withdrawal names no
	// recipient.
	ErrInvalidRecipient = status.NewError(status.BadRequest, "royalty: invalid withdrawal recipient")

	// ErrInvalidAmount is returned for a zero withdrawal.
	ErrInvalidAmount = status.NewError(status.BadRequest, "royalty: amount must be positive")

	// ErrNotRegistered is returned when an address has no
	// registration record.
	ErrNotRegistered = status.NewError(status.NotFound, "royalty: address not registered")
)

// InsufficientRoyaltyPaymentError reports the exact royalty owed so
// the caller can retry with a corrected payment.
type InsufficientRoyaltyPaymentError struct {
	Address contentstore.Address
	Owed    Amount
	Paid    Amount
}

func (e *InsufficientRoyaltyPaymentError) Error() string {
	return fmt.Sprintf("royalty: %s requires a royalty of %d, paid %d", e.Address.Short(), e.Owed, e.Paid)
}

// Is matches ErrInsufficientRoyaltyPayment.
func (e *InsufficientRoyaltyPaymentError) Is(target error) bool {
	return target == ErrInsufficientRoyaltyPayment
}

// StatusCode implements status.Coded.
func (e *InsufficientRoyaltyPaymentError) StatusCode() status.Status {
	return status.PaymentRequired
}

// InsufficientBalanceError reports how much is available to withdraw.
type InsufficientBalanceError struct {
	Requested Amount
	Available Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("royalty: requested %d, only %d available", e.Requested, e.Available)
}

// Is matches ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// StatusCode implements status.Coded.
func (e *InsufficientBalanceError) StatusCode() status.Status {
	return status.BadRequest
}
