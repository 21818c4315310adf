// internal/otelbridge/otelbridge.go
// Span bridge for the router and service registry: links a routed frame's
// span to the sender's in-flight span when the frame's header carries one.
// Disabled unless configured, so the hot path pays only a no-op tracer call.
package otelbridge

import (
	"context"
	"encoding/hex"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TraceHeaderKey is the optional frame header field carrying a sender's
// current trace id in hex.
const TraceHeaderKey = "trace"

// Bridge starts spans around routing and invocation, disabled (returning a
// no-op tracer) unless explicitly enabled.
type Bridge struct {
	enabled bool
	tracer  trace.Tracer
}

// New returns a Bridge. When enabled is false every Start* call is a no-op
// that still returns a valid, inert span so callers never need a nil check.
func New(enabled bool) *Bridge {
	var tracer trace.Tracer
	if enabled {
		tracer = otel.Tracer("github.com/Voskan/hyphagw")
	} else {
		tracer = noop.NewTracerProvider().Tracer("github.com/Voskan/hyphagw")
	}
	return &Bridge{enabled: enabled, tracer: tracer}
}

// Enabled reports whether this bridge produces real spans.
func (b *Bridge) Enabled() bool { return b.enabled }

// StartRoute starts a span around one Router.Route dispatch, carrying the
// frame's addressing as attributes. traceHex, if non-empty, is
// parsed as the sender's current trace id and linked via an attribute since
// Route has no incoming context to propagate a parent span through.
func (b *Bridge) StartRoute(ctx context.Context, from, to, traceHex string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("hypha.from", from),
		attribute.String("hypha.to", to),
	}
	if traceHex != "" {
		attrs = append(attrs, attribute.String("hypha.linked_trace_id", traceHex))
	}
	return b.tracer.Start(ctx, "hypha.route", trace.WithAttributes(attrs...))
}

// StartInvoke starts a span around one registry.Callable invocation routed
// through the correlator.
func (b *Bridge) StartInvoke(ctx context.Context, to, member string) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "hypha.invoke", trace.WithAttributes(
		attribute.String("hypha.to", to),
		attribute.String("hypha.member", member),
	))
}

// EncodeTraceID renders span's trace id as the hex string TraceHeaderKey
// expects, or "" if span carries no valid context.
func EncodeTraceID(span trace.Span) string {
	sc := span.SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	tid := sc.TraceID()
	return hex.EncodeToString(tid[:])
}
