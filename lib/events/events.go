// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package events carries the structured notification every mutating
// engine operation emits. Notifications are the only way to enumerate
// historical activity: the engine has no "list all paths" query.
//
// Components hold an [*Emitter], which stamps each event with an ID
// and time and hands it to a [Sink]. Sink failures are logged and
// never fail the operation that produced the event, since the state
// change has already committed.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TechnicallyWeb3/esp/lib/clock"
	"github.com/TechnicallyWeb3/esp/lib/identity"
)

// Event is one operation notification.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Operation string            `json:"operation"`
	Path      string            `json:"path,omitempty"`
	Address   string            `json:"address,omitempty"`
	Actor     identity.ID       `json:"actor,omitempty"`
	Outcome   string            `json:"outcome"`
	Detail    map[string]string `json:"detail,omitempty"`
	At        time.Time         `json:"at"`
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Multi fans an event out to every sink, returning the joined errors.
type Multi []Sink

// Publish delivers event to each sink in order.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emitter stamps and publishes events. A nil *Emitter drops events.
type Emitter struct {
	sink   Sink
	clock  clock.Clock
	logger *slog.Logger
}

// NewEmitter returns an Emitter publishing to sink. A nil clock uses
// the real clock; a nil logger discards sink failures.
func NewEmitter(sink Sink, clk clock.Clock, logger *slog.Logger) *Emitter {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Emitter{sink: sink, clock: clk, logger: logger}
}

// Emit fills in ID and At when unset and publishes the event.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.sink == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.At.IsZero() {
		event.At = e.clock.Now()
	}
	if err := e.sink.Publish(ctx, event); err != nil {
		e.logger.Warn("event publish failed",
			"operation", event.Operation,
			"event_id", event.ID.String(),
			"error", err,
		)
	}
}
