package tracing_test

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
	"github.com/bimalkant-lauhny/loadrunner/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func TestInitDisabledByDefault(t *testing.T) {
	p, err := tracing.Init(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.ShouldPropagate() {
		t.Error("ShouldPropagate() = true, want false when tracing disabled")
	}
	if p.Tracer() != nil {
		t.Error("Tracer() should be nil when nothing is exported")
	}
	_, span := p.TracerOrNoop().Start(context.Background(), "noop")
	span.End()
	if span.SpanContext().IsValid() {
		t.Error("no-op tracer should not produce valid span contexts")
	}
}

func TestInitPropagateOnly(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := tracing.Init(context.Background(), config.TracingConfig{Propagate: true, SampleRate: 1})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if !p.ShouldPropagate() {
		t.Error("ShouldPropagate() = false, want true")
	}
	if p.Tracer() != nil {
		t.Error("propagation without an endpoint should not export spans")
	}
}

func TestInitWithEndpointEnablesTracing(t *testing.T) {
	// otlp exporters connect lazily, so no collector is needed here.
	tests := []struct {
		name     string
		protocol string
		endpoint string
	}{
		{"grpc", "grpc", "localhost:4317"},
		{"http", "http", "localhost:4318"},
		{"default protocol", "", "localhost:4317"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:    tt.endpoint,
				Protocol:    tt.protocol,
				ServiceName: "test-service",
				SampleRate:  1.0,
				Insecure:    true,
			})
			if err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

			if !p.ShouldPropagate() {
				t.Error("ShouldPropagate() = false, want true when tracing enabled")
			}
			if p.Tracer() == nil {
				t.Error("Tracer() = nil with an endpoint configured")
			}
		})
	}
}

func TestInitUnsupportedProtocol(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:   "localhost:4317",
		Protocol:   "thrift",
		Insecure:   true,
		SampleRate: 1,
	})
	if err == nil {
		t.Fatal("Init() with unsupported protocol should return error")
	}
}

func TestInitInvalidSampleRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"negative", -0.5},
		{"above one", 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:   "localhost:4317",
				Insecure:   true,
				SampleRate: tt.rate,
			})
			if err == nil {
				t.Fatalf("Init() with sample_rate=%g should return error", tt.rate)
			}
		})
	}
}

func TestNilProviderSafety(t *testing.T) {
	var p *tracing.Provider
	if p.ShouldPropagate() {
		t.Error("nil provider ShouldPropagate() = true, want false")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown() error = %v", err)
	}
	if p.Tracer() != nil {
		t.Error("nil provider Tracer() should be nil")
	}
	_, span := p.TracerOrNoop().Start(context.Background(), "test")
	span.End()
}

func TestSpanName(t *testing.T) {
	tests := []struct {
		kind, endpoint, want string
	}{
		{"http", "GET /health", "http GET /health"},
		{"redis", "", "redis request"},
	}
	for _, tt := range tests {
		if got := tracing.SpanName(tt.kind, tt.endpoint); got != tt.want {
			t.Errorf("SpanName(%q, %q) = %q, want %q", tt.kind, tt.endpoint, got, tt.want)
		}
	}
}

func TestAnnotateRequest(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "annotated")
	tracing.AnnotateRequest(ctx, "postgres", "featurestore")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	if attrs["loadrunner.target"] != "postgres" || attrs["loadrunner.endpoint"] != "featurestore" {
		t.Errorf("attributes = %v", attrs)
	}

	// No span in context: must not panic.
	tracing.AnnotateRequest(context.Background(), "sleep", "")
}

func TestInjectHTTPHeaders(t *testing.T) {
	_, tracer := setupTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "test-inject")
	defer span.End()

	headers := make(http.Header)
	tracing.InjectHTTPHeaders(ctx, headers)

	got := headers.Get("Traceparent")
	if got == "" {
		t.Fatal("traceparent header not injected")
	}
	// version-traceid-spanid-flags
	if len(got) < 55 {
		t.Errorf("traceparent header too short: %q", got)
	}
}

func TestInjectHTTPHeadersNoSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
	))
	headers := make(http.Header)
	tracing.InjectHTTPHeaders(context.Background(), headers)

	if got := headers.Get("Traceparent"); got != "" {
		t.Errorf("traceparent header should be empty without span, got %q", got)
	}
}
