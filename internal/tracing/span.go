package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// SpanName names the client span wrapped around each request to a target.
func SpanName(kind, endpoint string) string {
	if endpoint == "" {
		return kind + " request"
	}
	return kind + " " + endpoint
}

// AnnotateRequest tags the span in ctx, if any, with the target it hits.
func AnnotateRequest(ctx context.Context, kind, endpoint string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.String("loadrunner.target", kind))
	if endpoint != "" {
		span.SetAttributes(attribute.String("loadrunner.endpoint", endpoint))
	}
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
