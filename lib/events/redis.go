// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream key events are appended to.
const DefaultStream = "esp:events"

// RedisStream appends events to a Redis stream for external indexers.
// Each entry is a flat field map; detail entries are prefixed with
// "detail.".
type RedisStream struct {
	Client redis.UniversalClient
	Stream string

	// MaxLen caps the stream length approximately. Zero keeps
	// everything.
	MaxLen int64
}

// NewRedisStream connects to the Redis server at addr.
func NewRedisStream(addr, password string, db int, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &RedisStream{Client: client, Stream: stream, MaxLen: maxLen}
}

// Publish appends event with XADD.
func (s *RedisStream) Publish(ctx context.Context, event Event) error {
	values := map[string]any{
		"id":        event.ID.String(),
		"operation": event.Operation,
		"outcome":   event.Outcome,
		"at":        event.At.UTC().Format(time.RFC3339Nano),
	}
	if event.Path != "" {
		values["path"] = event.Path
	}
	if event.Address != "" {
		values["address"] = event.Address
	}
	if !event.Actor.IsNull() {
		values["actor"] = string(event.Actor)
	}
	for key, value := range event.Detail {
		values["detail."+key] = value
	}

	args := &redis.XAddArgs{Stream: s.Stream, Values: values}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	if err := s.Client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("appending event to %s: %w", s.Stream, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStream) Close() error {
	return s.Client.Close()
}
