// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package royalty

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TechnicallyWeb3/esp/lib/authz"
	"github.com/TechnicallyWeb3/esp/lib/clock"
	"github.com/TechnicallyWeb3/esp/lib/codec"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/events"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/kv"
	"github.com/TechnicallyWeb3/esp/lib/metrics"
	"github.com/TechnicallyWeb3/esp/lib/status"
)

// DefaultTreasury receives the protocol share when no treasury is
// configured.
const DefaultTreasury identity.ID = "esp:treasury"

// Event operation names.
const (
	OperationRegister        = "register"
	OperationCollect         = "collect_royalties"
	OperationUpdatePublisher = "update_publisher"
)

// Registration is the immutable attribution record of an address.
// Only Publisher changes, through UpdatePublisherAddress.
type Registration struct {
	Address   contentstore.Address `json:"address"`
	Publisher identity.ID          `json:"publisher"`

	// Cost is the price of the first write and the royalty every
	// later registrant owes.
	Cost      Amount    `json:"cost"`
	CostUnits uint64    `json:"cost_units"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Waived reports whether re-registration is free for everyone.
func (r Registration) Waived() bool {
	return r.Publisher.IsNull() || r.Cost == 0
}

// Config configures a Ledger.
type Config struct {
	// Content stores the bytes. Its backend holds the ledger's
	// records too, so content writes and balance changes commit
	// together. Required.
	Content *contentstore.Store

	Pricing Pricing

	// Treasury is credited the protocol share. Null uses
	// DefaultTreasury.
	Treasury identity.ID

	// Authorizer is consulted before each mutating call. Nil allows
	// everything.
	Authorizer authz.Checker

	Events  *events.Emitter
	Metrics *metrics.Metrics
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Ledger tracks registrations and publisher balances.
type Ledger struct {
	content    *contentstore.Store
	backend    kv.Store
	pricing    Pricing
	treasury   identity.ID
	authorizer authz.Checker
	events     *events.Emitter
	metrics    *metrics.Metrics
	clock      clock.Clock
	logger     *slog.Logger
}

// New returns a Ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Content == nil {
		return nil, errors.New("royalty: Content is required")
	}
	treasury := cfg.Treasury
	if treasury.IsNull() {
		treasury = DefaultTreasury
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ledger{
		content:    cfg.Content,
		backend:    cfg.Content.Backend(),
		pricing:    cfg.Pricing,
		treasury:   treasury,
		authorizer: authz.OrAllow(cfg.Authorizer),
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		clock:      clk,
		logger:     logger,
	}, nil
}

// Content returns the underlying content store.
func (l *Ledger) Content() *contentstore.Store {
	return l.content
}

// Treasury returns the identity credited with the protocol share.
func (l *Ledger) Treasury() identity.ID {
	return l.treasury
}

// Pricing returns the pricing used for new registrations.
func (l *Ledger) Pricing() Pricing {
	return l.pricing
}

// RegisterRequest registers Data on behalf of Caller. A non-null
// Publisher opts the content into royalties if this is its first
// registration. Payment covers the royalty owed if it is not.
type RegisterRequest struct {
	Caller    identity.ID
	Data      []byte
	Publisher identity.ID
	Payment   Amount
}

// RegisterResult describes a registration.
type RegisterResult struct {
	Address contentstore.Address

	// New is true when this call created the registration record.
	New bool

	Registration Registration

	// Owed is the royalty charged, zero for new, waived or
	// self-registrations.
	Owed           Amount
	PublisherShare Amount
	ProtocolShare  Amount

	// Refund is the part of the payment not consumed.
	Refund Amount

	content contentstore.WriteResult
}

// Register registers content in its own transaction.
func (l *Ledger) Register(ctx context.Context, request RegisterRequest) (RegisterResult, error) {
	address := contentstore.CalculateAddress(request.Data)
	if !l.authorizer.CanInvoke(ctx, request.Caller, address.String(), authz.OpRegister) {
		l.emitFailure(ctx, OperationRegister, request.Caller, address.String(), ErrUnauthorized)
		return RegisterResult{}, ErrUnauthorized
	}

	var result RegisterResult
	err := l.backend.Update(ctx, func(txn kv.Txn) error {
		var err error
		result, err = l.RegisterTx(txn, request)
		return err
	})
	if err != nil {
		l.emitFailure(ctx, OperationRegister, request.Caller, address.String(), err)
		return RegisterResult{}, err
	}
	l.Committed(ctx, request.Caller, result)
	return result, nil
}

// RegisterTx performs a registration inside txn without an
// authorization check or notification. Callers that compose it into
// a larger operation call Committed after their transaction commits.
func (l *Ledger) RegisterTx(txn kv.Txn, request RegisterRequest) (RegisterResult, error) {
	if len(request.Data) == 0 {
		return RegisterResult{}, contentstore.ErrEmptyInput
	}
	address := contentstore.CalculateAddress(request.Data)

	existing, found, err := l.registrationTx(txn, address)
	if err != nil {
		return RegisterResult{}, err
	}
	if !found {
		return l.registerNew(txn, address, request)
	}

	result := RegisterResult{Address: address, Registration: existing, Refund: request.Payment}
	// The content record may predate the registration (written
	// directly through the content store); WriteTx is a no-op then.
	result.content, err = l.content.WriteTx(txn, request.Data)
	if err != nil {
		return RegisterResult{}, err
	}
	if existing.Waived() || request.Caller == existing.Publisher {
		return result, nil
	}

	// Checks.
	owed := existing.Cost
	if request.Payment < owed {
		return RegisterResult{}, &InsufficientRoyaltyPaymentError{Address: address, Owed: owed, Paid: request.Payment}
	}
	publisherShare, protocolShare := Split(owed)

	// Effects.
	if err := l.creditTx(txn, existing.Publisher, publisherShare); err != nil {
		return RegisterResult{}, err
	}
	if err := l.creditTx(txn, l.treasury, protocolShare); err != nil {
		return RegisterResult{}, err
	}

	result.Owed = owed
	result.PublisherShare = publisherShare
	result.ProtocolShare = protocolShare
	result.Refund = request.Payment - owed
	return result, nil
}

func (l *Ledger) registerNew(txn kv.Txn, address contentstore.Address, request RegisterRequest) (RegisterResult, error) {
	units, cost, err := l.pricing.Quote(len(request.Data))
	if err != nil {
		return RegisterResult{}, err
	}
	written, err := l.content.WriteTx(txn, request.Data)
	if err != nil {
		return RegisterResult{}, err
	}

	registration := Registration{
		Address:   address,
		Publisher: request.Publisher,
		Cost:      cost,
		CostUnits: units,
		Size:      int64(len(request.Data)),
		CreatedAt: l.clock.Now(),
	}
	// A null publisher is recorded too: it is what makes the waiver
	// permanent.
	if err := putRegistration(txn, registration); err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{
		Address:      address,
		New:          true,
		Registration: registration,
		Refund:       request.Payment,
		content:      written,
	}, nil
}

// Committed records metrics, logs and emits the register event for a
// RegisterTx result after the enclosing transaction commits.
func (l *Ledger) Committed(ctx context.Context, caller identity.ID, result RegisterResult) {
	l.content.Committed(result.content)
	if result.Owed > 0 {
		l.metrics.RoyaltyPaid(uint64(result.PublisherShare), uint64(result.ProtocolShare))
	}
	l.metrics.Operation(OperationRegister, status.OK.String())

	if result.New {
		l.logger.Info("content registered",
			"address", result.Address.Short(),
			"publisher", result.Registration.Publisher.String(),
			"cost", uint64(result.Registration.Cost),
			"size", result.Registration.Size,
		)
	} else if result.Owed > 0 {
		l.logger.Info("royalty paid",
			"address", result.Address.Short(),
			"payer", caller.String(),
			"publisher", result.Registration.Publisher.String(),
			"owed", uint64(result.Owed),
		)
	}

	l.events.Emit(ctx, events.Event{
		Operation: OperationRegister,
		Address:   result.Address.String(),
		Actor:     caller,
		Outcome:   status.OK.String(),
		Detail: map[string]string{
			"new":             fmt.Sprint(result.New),
			"publisher":       result.Registration.Publisher.String(),
			"owed":            result.Owed.String(),
			"publisher_share": result.PublisherShare.String(),
			"protocol_share":  result.ProtocolShare.String(),
		},
	})
}

// Registration returns the registration record of address.
func (l *Ledger) Registration(ctx context.Context, address contentstore.Address) (Registration, error) {
	var registration Registration
	err := l.backend.View(ctx, func(r kv.Reader) error {
		var found bool
		var err error
		registration, found, err = l.registrationTx(r, address)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("registration of %s: %w", address.Short(), ErrNotRegistered)
		}
		return nil
	})
	return registration, err
}

// RoyaltyOwed returns what a third party would pay to register the
// content at address now: zero when the registration is waived.
func (l *Ledger) RoyaltyOwed(ctx context.Context, address contentstore.Address) (Amount, error) {
	registration, err := l.Registration(ctx, address)
	if err != nil {
		return 0, err
	}
	if registration.Waived() {
		return 0, nil
	}
	return registration.Cost, nil
}

// RoyaltyBalance returns the withdrawable balance of publisher.
func (l *Ledger) RoyaltyBalance(ctx context.Context, publisher identity.ID) (Amount, error) {
	var balance Amount
	err := l.backend.View(ctx, func(r kv.Reader) error {
		var err error
		balance, err = balanceTx(r, publisher)
		return err
	})
	return balance, err
}

// Withdrawal is the transfer signalled by CollectRoyalties.
type Withdrawal struct {
	ID        uuid.UUID   `json:"id"`
	Publisher identity.ID `json:"publisher"`
	To        identity.ID `json:"to"`
	Amount    Amount      `json:"amount"`
	Remaining Amount      `json:"remaining"`
	At        time.Time   `json:"at"`
}

// CollectRoyalties debits amount from the caller's balance and
// signals a transfer to withdrawTo. The debit commits before the
// transfer is announced, so a balance can never be withdrawn twice.
func (l *Ledger) CollectRoyalties(ctx context.Context, caller identity.ID, amount Amount, withdrawTo identity.ID) (Withdrawal, error) {
	fail := func(err error) (Withdrawal, error) {
		l.emitFailure(ctx, OperationCollect, caller, "", err)
		return Withdrawal{}, err
	}
	if caller.IsNull() || !l.authorizer.CanInvoke(ctx, caller, "", authz.OpCollect) {
		return fail(ErrUnauthorized)
	}
	if withdrawTo.IsNull() {
		return fail(ErrInvalidRecipient)
	}
	if amount == 0 {
		return fail(ErrInvalidAmount)
	}

	withdrawal := Withdrawal{
		ID:        uuid.New(),
		Publisher: caller,
		To:        withdrawTo,
		Amount:    amount,
		At:        l.clock.Now(),
	}
	err := l.backend.Update(ctx, func(txn kv.Txn) error {
		balance, err := balanceTx(txn, caller)
		if err != nil {
			return err
		}
		if amount > balance {
			return &InsufficientBalanceError{Requested: amount, Available: balance}
		}
		withdrawal.Remaining = balance - amount
		return putBalance(txn, caller, withdrawal.Remaining)
	})
	if err != nil {
		return fail(err)
	}

	l.metrics.Withdrawn(uint64(amount))
	l.metrics.Operation(OperationCollect, status.OK.String())
	l.logger.Info("royalties collected",
		"publisher", caller.String(),
		"to", withdrawTo.String(),
		"amount", uint64(amount),
		"remaining", uint64(withdrawal.Remaining),
	)
	l.events.Emit(ctx, events.Event{
		ID:        withdrawal.ID,
		Operation: OperationCollect,
		Actor:     caller,
		Outcome:   status.OK.String(),
		At:        withdrawal.At,
		Detail: map[string]string{
			"to":        withdrawTo.String(),
			"amount":    amount.String(),
			"remaining": withdrawal.Remaining.String(),
		},
	})
	return withdrawal, nil
}

// UpdatePublisherAddress reassigns the publisher of address. Only the
// current publisher may do so, and waived (null-publisher) content
// cannot be claimed. Balances already credited stay where they are.
func (l *Ledger) UpdatePublisherAddress(ctx context.Context, caller identity.ID, address contentstore.Address, newPublisher identity.ID) error {
	fail := func(err error) error {
		l.emitFailure(ctx, OperationUpdatePublisher, caller, address.String(), err)
		return err
	}
	if newPublisher.IsNull() {
		return fail(ErrInvalidPublisher)
	}
	if !l.authorizer.CanInvoke(ctx, caller, address.String(), authz.OpTransfer) {
		return fail(ErrUnauthorized)
	}

	var previous identity.ID
	err := l.backend.Update(ctx, func(txn kv.Txn) error {
		registration, found, err := l.registrationTx(txn, address)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("registration of %s: %w", address.Short(), ErrNotRegistered)
		}
		if registration.Publisher.IsNull() || registration.Publisher != caller {
			return ErrUnauthorized
		}
		previous = registration.Publisher
		registration.Publisher = newPublisher
		return putRegistration(txn, registration)
	})
	if err != nil {
		return fail(err)
	}

	l.metrics.Operation(OperationUpdatePublisher, status.OK.String())
	l.logger.Info("publisher updated",
		"address", address.Short(),
		"from", previous.String(),
		"to", newPublisher.String(),
	)
	l.events.Emit(ctx, events.Event{
		Operation: OperationUpdatePublisher,
		Address:   address.String(),
		Actor:     caller,
		Outcome:   status.OK.String(),
		Detail:    map[string]string{"publisher": newPublisher.String()},
	})
	return nil
}

func (l *Ledger) emitFailure(ctx context.Context, operation string, caller identity.ID, address string, err error) {
	outcome := status.FromError(err).String()
	l.metrics.Operation(operation, outcome)
	l.events.Emit(ctx, events.Event{
		Operation: operation,
		Address:   address,
		Actor:     caller,
		Outcome:   outcome,
	})
}

const (
	registrationNamespace = "royalty/r"
	balanceNamespace      = "royalty/b"
)

func (l *Ledger) registrationTx(r kv.Reader, address contentstore.Address) (Registration, bool, error) {
	value, err := r.Get(kv.Key(registrationNamespace, address[:]))
	if errors.Is(err, kv.ErrNotFound) {
		return Registration{}, false, nil
	}
	if err != nil {
		return Registration{}, false, err
	}
	var registration Registration
	if err := codec.Unmarshal(value, &registration); err != nil {
		return Registration{}, false, fmt.Errorf("decoding registration of %s: %w", address.Short(), err)
	}
	return registration, true, nil
}

func putRegistration(txn kv.Txn, registration Registration) error {
	encoded, err := codec.Marshal(registration)
	if err != nil {
		return fmt.Errorf("encoding registration: %w", err)
	}
	return txn.Set(kv.Key(registrationNamespace, registration.Address[:]), encoded)
}

func balanceTx(r kv.Reader, publisher identity.ID) (Amount, error) {
	value, err := r.Get(kv.Key(balanceNamespace, []byte(publisher)))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("balance of %s is %d bytes, want 8", publisher, len(value))
	}
	return Amount(binary.BigEndian.Uint64(value)), nil
}

func putBalance(txn kv.Txn, publisher identity.ID, balance Amount) error {
	return txn.Set(kv.Key(balanceNamespace, []byte(publisher)), binary.BigEndian.AppendUint64(nil, uint64(balance)))
}

// creditTx adds amount to publisher's balance. Credits are the only
// way a balance grows.
func (l *Ledger) creditTx(txn kv.Txn, publisher identity.ID, amount Amount) error {
	if amount == 0 {
		return nil
	}
	balance, err := balanceTx(txn, publisher)
	if err != nil {
		return err
	}
	balance, err = balance.Add(amount)
	if err != nil {
		return fmt.Errorf("crediting %s: %w", publisher, err)
	}
	return putBalance(txn, publisher, balance)
}
