// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"

	evbus "github.com/asaskevich/EventBus"
)

// TopicAll receives every event. Each event is also published on
// TopicPrefix + event.Operation.
const (
	TopicAll    = "esp:event"
	TopicPrefix = "esp:event:"
)

// Bus is an in-process publish/subscribe sink. Subscribers registered
// with Subscribe run synchronously on the publishing goroutine, after
// the operation's transaction has committed.
type Bus struct {
	bus evbus.Bus
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Publish delivers event to TopicAll and the operation topic.
func (b *Bus) Publish(_ context.Context, event Event) error {
	b.bus.Publish(TopicAll, event)
	b.bus.Publish(TopicPrefix+event.Operation, event)
	return nil
}

// Subscribe registers handler for every event. The returned function
// unsubscribes it.
func (b *Bus) Subscribe(handler func(Event)) (func(), error) {
	return b.SubscribeTopic(TopicAll, handler)
}

// SubscribeOperation registers handler for one operation's events.
func (b *Bus) SubscribeOperation(operation string, handler func(Event)) (func(), error) {
	return b.SubscribeTopic(TopicPrefix+operation, handler)
}

// SubscribeTopic registers handler on an explicit topic.
func (b *Bus) SubscribeTopic(topic string, handler func(Event)) (func(), error) {
	if err := b.bus.Subscribe(topic, handler); err != nil {
		return nil, err
	}
	return func() { _ = b.bus.Unsubscribe(topic, handler) }, nil
}

// SubscribeAsync registers handler to run on its own goroutine per
// event. Call WaitAsync to drain in-flight handlers.
func (b *Bus) SubscribeAsync(handler func(Event)) error {
	return b.bus.SubscribeAsync(TopicAll, handler, false)
}

// WaitAsync blocks until every asynchronous handler has returned.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}
