package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
	"github.com/bimalkant-lauhny/loadrunner/internal/tracing"
)

const maxErrorBody = 512

// StatusError reports a response with a 4xx or 5xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTP issues one request per operation and treats any status >= 400 as a
// failure. The response body is drained so connections are reused.
type HTTP struct {
	client    *http.Client
	method    string
	url       string
	headers   http.Header
	body      []byte
	propagate bool
}

func NewHTTP(cfg config.TargetConfig, propagate bool) (*HTTP, error) {
	target := strings.TrimSpace(cfg.URL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers, err := buildHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}

	return &HTTP{
		client:    NewHTTPClient(cfg.Timeout),
		method:    method,
		url:       target,
		headers:   headers,
		body:      []byte(cfg.Body),
		propagate: propagate,
	}, nil
}

func buildHeaders(in map[string]string) (http.Header, error) {
	headers := http.Header{}
	for key, value := range in {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}
	return headers, nil
}

// Endpoint describes the request, e.g. "GET https://api.example.com/health".
func (h *HTTP) Endpoint() string {
	return h.method + " " + h.url
}

func (h *HTTP) Do(ctx context.Context) error {
	req, err := h.newRequest(ctx)
	if err != nil {
		return err
	}
	tracing.AnnotateRequest(ctx, string(config.TargetHTTP), h.Endpoint())
	if h.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

func (h *HTTP) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(h.body) > 0 {
		body = bytes.NewReader(h.body)
	}
	req, err := http.NewRequestWithContext(ctx, h.method, h.url, body)
	if err != nil {
		return nil, err
	}
	req.Header = h.headers.Clone()
	if len(h.body) > 0 {
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(h.body)), nil
		}
	}
	return req, nil
}

// Close drops idle keep-alive connections.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// NewHTTPClient returns a client tuned for many concurrent requests to one host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
