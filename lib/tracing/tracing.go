// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracing wraps OpenTelemetry span handling for engine
// operations. Spans go to whatever TracerProvider is installed
// globally; with none installed they are no-ops.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TechnicallyWeb3/esp/lib/status"
)

// Instrumentation scope for every engine span.
const scope = "github.com/TechnicallyWeb3/esp"

// Attribute keys.
const (
	KeyPath    = attribute.Key("esp.path")
	KeyAddress = attribute.Key("esp.address")
	KeyCaller  = attribute.Key("esp.caller")
	KeyStatus  = attribute.Key("esp.status")
)

// Start begins an internal span named operation. The returned finish
// function records err (if any) and its outcome code, then ends the
// span.
//
//	ctx, finish := tracing.Start(ctx, "catalog.DeleteResource", tracing.KeyPath.String(path))
//	defer func() { finish(err) }()
func Start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(scope).Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		code := status.FromError(err)
		span.SetAttributes(KeyStatus.Int(code.Code()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, code.String())
		}
		span.End()
	}
}

// Event adds a named event to the span in ctx.
func Event(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
