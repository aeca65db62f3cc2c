package runner

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

// NewLoggingSink returns a FailureSink that logs each failure at warn level.
func NewLoggingSink(logger logrus.FieldLogger) FailureSink {
	if logger == nil {
		return nil
	}
	return FailureSinkFunc(func(err error) {
		logger.WithFields(logrus.Fields{
			"kind": metrics.FriendlyErrorName(fmt.Sprintf("%T", err)),
		}).WithError(err).Warn("request failed")
	})
}

// MultiSink fans a failure out to every non-nil sink.
func MultiSink(sinks ...FailureSink) FailureSink {
	var live []FailureSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return FailureSinkFunc(func(err error) {
		for _, s := range live {
			s.RecordFailure(err)
		}
	})
}

type tracedOperation struct {
	inner  Operation
	tracer trace.Tracer
	name   string
}

// WithTracing wraps every operation produced by newOp in a client span.
func WithTracing(newOp Factory, tracer trace.Tracer, name string) Factory {
	if tracer == nil {
		return newOp
	}
	return func() Operation {
		return &tracedOperation{inner: newOp(), tracer: tracer, name: name}
	}
}

func (t *tracedOperation) Do(ctx context.Context) error {
	ctx, span := t.tracer.Start(ctx, t.name, trace.WithSpanKind(trace.SpanKindClient))
	err := t.inner.Do(ctx)
	endSpan(span, err)
	return err
}

type tracedAsyncOperation struct {
	inner  AsyncOperation
	tracer trace.Tracer
	name   string
}

// WithAsyncTracing is WithTracing for async operations. The span ends when
// the future resolves.
func WithAsyncTracing(newOp AsyncFactory, tracer trace.Tracer, name string) AsyncFactory {
	if tracer == nil {
		return newOp
	}
	return func() AsyncOperation {
		return &tracedAsyncOperation{inner: newOp(), tracer: tracer, name: name}
	}
}

func (t *tracedAsyncOperation) Start(ctx context.Context) <-chan error {
	ctx, span := t.tracer.Start(ctx, t.name, trace.WithSpanKind(trace.SpanKindClient))
	inner := startSafely(ctx, t.inner)
	out := make(chan error, 1)
	go func() {
		select {
		case err := <-inner:
			endSpan(span, err)
			out <- err
		case <-ctx.Done():
			endSpan(span, ctx.Err())
			out <- ctx.Err()
		}
	}()
	return out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
