// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package royalty

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechnicallyWeb3/esp/lib/authz"
	"github.com/TechnicallyWeb3/esp/lib/clock"
	"github.com/TechnicallyWeb3/esp/lib/contentstore"
	"github.com/TechnicallyWeb3/esp/lib/events"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/kv"
	"github.com/TechnicallyWeb3/esp/lib/kv/memkv"
	"github.com/TechnicallyWeb3/esp/lib/metrics"
	"github.com/TechnicallyWeb3/esp/lib/status"
)

const (
	publisherOne identity.ID = "P1"
	publisherTwo identity.ID = "P2"
	reader       identity.ID = "reader"
	treasury     identity.ID = "treasury"
)

type testLedger struct {
	*Ledger
	bus     *events.Bus
	events  []events.Event
	metrics *metrics.Metrics
}

func newTestLedger(t *testing.T, checker authz.Checker) *testLedger {
	t.Helper()
	ctx := context.Background()
	content, err := contentstore.New(ctx, contentstore.Config{Backend: memkv.New()})
	require.NoError(t, err)

	harness := &testLedger{bus: events.NewBus(), metrics: metrics.New(nil)}
	_, err = harness.bus.Subscribe(func(event events.Event) {
		harness.events = append(harness.events, event)
	})
	require.NoError(t, err)

	fake := clock.Fake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	harness.Ledger, err = New(Config{
		Content:    content,
		Pricing:    DefaultPricing(),
		Treasury:   treasury,
		Authorizer: checker,
		Events:     events.NewEmitter(harness.bus, fake, nil),
		Metrics:    harness.metrics,
		Clock:      fake,
	})
	require.NoError(t, err)
	return harness
}

func (h *testLedger) balance(t *testing.T, publisher identity.ID) Amount {
	t.Helper()
	balance, err := h.RoyaltyBalance(context.Background(), publisher)
	require.NoError(t, err)
	return balance
}

func TestFirstRegistration(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("Hello, ESP!")

	result, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne, Payment: 7})
	require.NoError(t, err)
	assert.True(t, result.New)
	assert.Equal(t, contentstore.CalculateAddress(data), result.Address)
	assert.Equal(t, Amount(41000), result.Registration.Cost)
	assert.Equal(t, uint64(41000), result.Registration.CostUnits)
	assert.Equal(t, Amount(7), result.Refund)
	assert.Zero(t, result.Owed)

	read, err := ledger.Content().Read(ctx, result.Address)
	require.NoError(t, err)
	assert.Equal(t, data, read)

	registration, err := ledger.Registration(ctx, result.Address)
	require.NoError(t, err)
	assert.Equal(t, publisherOne, registration.Publisher)
	assert.Equal(t, int64(len(data)), registration.Size)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), registration.CreatedAt)

	owed, err := ledger.RoyaltyOwed(ctx, result.Address)
	require.NoError(t, err)
	assert.Equal(t, Amount(41000), owed)

	require.Len(t, ledger.events, 1)
	assert.Equal(t, OperationRegister, ledger.events[0].Operation)
	assert.Equal(t, "true", ledger.events[0].Detail["new"])
}

func TestReRegistrationWithoutPaymentFails(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("royalty bearing")

	_, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)

	_, err = ledger.Register(ctx, RegisterRequest{Caller: reader, Data: data, Publisher: reader})
	require.ErrorIs(t, err, ErrInsufficientRoyaltyPayment)
	assert.Equal(t, status.PaymentRequired, status.FromError(err))

	var shortfall *InsufficientRoyaltyPaymentError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, Amount(41000), shortfall.Owed)
	assert.Zero(t, shortfall.Paid)

	_, err = ledger.Register(ctx, RegisterRequest{Caller: reader, Data: data, Payment: 40999})
	assert.ErrorIs(t, err, ErrInsufficientRoyaltyPayment)

	assert.Zero(t, ledger.balance(t, publisherOne))
	assert.Zero(t, ledger.balance(t, treasury))
	assert.Equal(t, "Payment Required", ledger.events[len(ledger.events)-1].Outcome)
}

func TestReRegistrationWithExactPayment(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("royalty bearing")

	first, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)
	cost := first.Registration.Cost

	result, err := ledger.Register(ctx, RegisterRequest{Caller: reader, Data: data, Publisher: reader, Payment: cost})
	require.NoError(t, err)
	assert.False(t, result.New)
	assert.Equal(t, first.Address, result.Address)
	assert.Equal(t, cost, result.Owed)
	assert.Zero(t, result.Refund)

	assert.Equal(t, cost*9/10, ledger.balance(t, publisherOne))
	assert.Equal(t, cost/10, ledger.balance(t, treasury))

	// The first publisher keeps the registration.
	registration, err := ledger.Registration(ctx, first.Address)
	require.NoError(t, err)
	assert.Equal(t, publisherOne, registration.Publisher)

	assert.Equal(t, float64(cost*9/10), testutil.ToFloat64(ledger.metrics.RoyaltiesPaid.WithLabelValues("publisher")))
}

func TestOverpaymentIsRefunded(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("x")

	first, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)

	result, err := ledger.Register(ctx, RegisterRequest{Caller: reader, Data: data, Payment: first.Registration.Cost + 500})
	require.NoError(t, err)
	assert.Equal(t, Amount(500), result.Refund)
}

func TestRoyaltyPriceIsFixed(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("fixed price")

	first, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)

	for range 3 {
		result, err := ledger.Register(ctx, RegisterRequest{Caller: reader, Data: data, Payment: first.Registration.Cost})
		require.NoError(t, err)
		assert.Equal(t, first.Registration.Cost, result.Owed)
	}
	assert.Equal(t, 3*(first.Registration.Cost*9/10), ledger.balance(t, publisherOne))
}

func TestNullPublisherWaivesRoyalties(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("public domain")

	_, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: identity.Null})
	require.NoError(t, err)

	// Anyone re-registers for free, and naming a publisher later does
	// not claim the content.
	result, err := ledger.Register(ctx, RegisterRequest{Caller: reader, Data: data, Publisher: publisherTwo})
	require.NoError(t, err)
	assert.False(t, result.New)
	assert.Zero(t, result.Owed)
	assert.True(t, result.Registration.Publisher.IsNull())

	owed, err := ledger.RoyaltyOwed(ctx, result.Address)
	require.NoError(t, err)
	assert.Zero(t, owed)

	err = ledger.UpdatePublisherAddress(ctx, identity.Null, result.Address, publisherTwo)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPublisherReRegistersOwnContentFree(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("mine")

	_, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)
	result, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)
	assert.Zero(t, result.Owed)
	assert.Zero(t, ledger.balance(t, publisherOne))
}

func TestRegisterEmpty(t *testing.T) {
	ledger := newTestLedger(t, nil)
	_, err := ledger.Register(context.Background(), RegisterRequest{Caller: publisherOne, Publisher: publisherOne})
	assert.ErrorIs(t, err, contentstore.ErrEmptyInput)
}

func TestRegisterContentWrittenDirectly(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("written before registration")

	address, err := ledger.Content().Write(ctx, data)
	require.NoError(t, err)

	result, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)
	assert.True(t, result.New)
	assert.Equal(t, address, result.Address)
}

func TestCollectRoyalties(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("earning")

	first, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)
	_, err = ledger.Register(ctx, RegisterRequest{Caller: reader, Data: data, Payment: first.Registration.Cost})
	require.NoError(t, err)
	earned := ledger.balance(t, publisherOne)

	_, err = ledger.CollectRoyalties(ctx, publisherOne, earned+1, "wallet")
	require.ErrorIs(t, err, ErrInsufficientBalance)
	var shortfall *InsufficientBalanceError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, earned, shortfall.Available)
	assert.Equal(t, earned, ledger.balance(t, publisherOne))

	withdrawal, err := ledger.CollectRoyalties(ctx, publisherOne, 1000, "wallet")
	require.NoError(t, err)
	assert.Equal(t, earned-1000, withdrawal.Remaining)
	assert.Equal(t, identity.ID("wallet"), withdrawal.To)

	withdrawal, err = ledger.CollectRoyalties(ctx, publisherOne, earned-1000, "wallet")
	require.NoError(t, err)
	assert.Zero(t, withdrawal.Remaining)
	assert.Zero(t, ledger.balance(t, publisherOne))

	_, err = ledger.CollectRoyalties(ctx, publisherOne, 1, "wallet")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	last := ledger.events[len(ledger.events)-2]
	assert.Equal(t, OperationCollect, last.Operation)
	assert.Equal(t, withdrawal.ID, last.ID)
	assert.Equal(t, "wallet", last.Detail["to"])

	// The treasury withdraws like any publisher.
	_, err = ledger.CollectRoyalties(ctx, treasury, first.Registration.Cost/10, "ops")
	require.NoError(t, err)
}

func TestCollectRoyaltiesValidation(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()

	_, err := ledger.CollectRoyalties(ctx, identity.Null, 1, "wallet")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = ledger.CollectRoyalties(ctx, publisherOne, 1, identity.Null)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	_, err = ledger.CollectRoyalties(ctx, publisherOne, 0, "wallet")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestUpdatePublisherAddress(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("transferable")

	first, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)

	err = ledger.UpdatePublisherAddress(ctx, publisherTwo, first.Address, publisherTwo)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, status.Forbidden, status.FromError(err))

	err = ledger.UpdatePublisherAddress(ctx, publisherOne, first.Address, identity.Null)
	assert.ErrorIs(t, err, ErrInvalidPublisher)

	require.NoError(t, ledger.UpdatePublisherAddress(ctx, publisherOne, first.Address, publisherTwo))
	registration, err := ledger.Registration(ctx, first.Address)
	require.NoError(t, err)
	assert.Equal(t, publisherTwo, registration.Publisher)
	assert.Equal(t, first.Registration.Cost, registration.Cost)

	_, err = ledger.Register(ctx, RegisterRequest{Caller: reader, Data: data, Payment: registration.Cost})
	require.NoError(t, err)
	assert.Zero(t, ledger.balance(t, publisherOne))
	assert.Equal(t, registration.Cost*9/10, ledger.balance(t, publisherTwo))

	missing := contentstore.CalculateAddress([]byte("nobody"))
	err = ledger.UpdatePublisherAddress(ctx, publisherOne, missing, publisherTwo)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Equal(t, status.NotFound, status.FromError(err))
}

func TestAuthorizerDenies(t *testing.T) {
	checker := authz.Func(func(_ context.Context, caller identity.ID, _ string, _ authz.Operation) bool {
		return caller != "blocked"
	})
	ledger := newTestLedger(t, checker)
	ctx := context.Background()

	_, err := ledger.Register(ctx, RegisterRequest{Caller: "blocked", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = ledger.CollectRoyalties(ctx, "blocked", 1, "wallet")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegisterTxRollsBackWithEnclosingTransaction(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	data := []byte("paid then aborted")

	first, err := ledger.Register(ctx, RegisterRequest{Caller: publisherOne, Data: data, Publisher: publisherOne})
	require.NoError(t, err)

	abort := errors.New("abort")
	err = ledger.Content().Backend().Update(ctx, func(txn kv.Txn) error {
		_, err := ledger.RegisterTx(txn, RegisterRequest{Caller: reader, Data: data, Payment: first.Registration.Cost})
		require.NoError(t, err)
		return abort
	})
	assert.ErrorIs(t, err, abort)
	assert.Zero(t, ledger.balance(t, publisherOne))
	assert.Zero(t, ledger.balance(t, treasury))
}
