package target

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
)

func httpConfig(url string) config.TargetConfig {
	cfg := config.Default().Target
	cfg.Kind = config.TargetHTTP
	cfg.URL = url
	return cfg
}

func TestHTTPSendsConfiguredRequest(t *testing.T) {
	var gotMethod, gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Run")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := httpConfig(srv.URL)
	cfg.Method = "post"
	cfg.Body = `{"hello":"world"}`
	cfg.Headers = map[string]string{"x-run": "nightly"}

	h, err := NewHTTP(cfg, false)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Do(context.Background()))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "nightly", gotHeader)
	assert.Equal(t, `{"hello":"world"}`, gotBody)
	assert.Equal(t, "POST "+srv.URL, h.Endpoint())
}

func TestHTTPStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h, err := NewHTTP(httpConfig(srv.URL), false)
	require.NoError(t, err)

	err = h.Do(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "overloaded", se.Body)
}

func TestHTTPPropagatesTraceContext(t *testing.T) {
	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
	}))
	defer srv.Close()

	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	defer span.End()

	h, err := NewHTTP(httpConfig(srv.URL), true)
	require.NoError(t, err)
	require.NoError(t, h.Do(ctx))
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}

func TestHTTPRejectsBadHeaders(t *testing.T) {
	cfg := httpConfig("http://example.com")
	cfg.Headers = map[string]string{"X-Bad": "a\r\nb"}
	_, err := NewHTTP(cfg, false)
	assert.Error(t, err)

	cfg.Headers = map[string]string{" ": "v"}
	_, err = NewHTTP(cfg, false)
	assert.Error(t, err)
}

func TestHTTPTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h, err := NewHTTP(httpConfig(url), false)
	require.NoError(t, err)
	assert.Error(t, h.Do(context.Background()))
}
