// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"log/slog"
)

// LogSink writes each event as one structured log line.
type LogSink struct {
	Logger *slog.Logger
}

// Publish logs event at info level.
func (s LogSink) Publish(ctx context.Context, event Event) error {
	args := []any{
		"event_id", event.ID.String(),
		"operation", event.Operation,
		"outcome", event.Outcome,
	}
	if event.Path != "" {
		args = append(args, "path", event.Path)
	}
	if event.Address != "" {
		args = append(args, "address", event.Address)
	}
	if !event.Actor.IsNull() {
		args = append(args, "actor", string(event.Actor))
	}
	for key, value := range event.Detail {
		args = append(args, key, value)
	}
	s.Logger.InfoContext(ctx, "engine event", args...)
	return nil
}
