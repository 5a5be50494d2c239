package otelx

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	headerTraceparent = "traceparent"
	headerTracestate  = "tracestate"
)

// TraceContextStrings returns the W3C header values for the span in ctx.
// Outbox rows store them so the publisher can continue the request's trace.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier[headerTraceparent], carrier[headerTracestate]
}

// ContextWithTraceContext restores a span context captured by
// TraceContextStrings. Empty values leave ctx unchanged.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{headerTraceparent: traceparent}
	if tracestate != "" {
		carrier[headerTracestate] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectHeaders writes trace headers for ctx into h. NATS message headers
// share the http.Header layout, so both use this.
func InjectHeaders(ctx context.Context, h map[string][]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(h)))
}

// ExtractHeaders returns ctx with the span context carried in h, if any.
func ExtractHeaders(ctx context.Context, h map[string][]string) context.Context {
	if len(h) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(http.Header(h)))
}
