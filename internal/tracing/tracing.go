// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package tracing wraps the gateway's two network-facing surfaces in
// OpenTelemetry spans: the WebSocket upgrade endpoint and the overflow
// scanner's outbound calls to the serverless prediction API. Span idiom
// (package-level otel.Tracer, ctx/span pair from tracer.Start, deferred
// span.End) is grounded on apresai-podcaster's MCP tool handlers, the one
// file in the retrieval pack that calls the otel tracer API directly
// rather than carrying it as an indirect dependency of something else.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/readvox/synthbridge"

var tracer = otel.Tracer(instrumentationName)

// WrapHandler instruments h with an otelhttp span named operation,
// recording method/route/status as span attributes the way otelhttp's
// middleware does by default.
func WrapHandler(h http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(h, operation)
}

// StartSpan opens a span for a unit of work outside the HTTP handler
// chain — the overflow scanner's submit/poll calls to the serverless
// predictor. Callers must defer the returned end func.
func StartSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// Tracer exposes the package tracer for callers that need direct access
// to trace.Tracer's full API (span events, links) beyond StartSpan's
// error-recording shortcut.
func Tracer() trace.Tracer {
	return tracer
}
