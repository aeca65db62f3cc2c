package runner

import (
	"context"
	"errors"
	"fmt"
)

// Operation is a synchronous request: Do blocks until the request succeeds or
// fails. Latency is measured around the call.
type Operation interface {
	Do(ctx context.Context) error
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context) error

func (f OperationFunc) Do(ctx context.Context) error { return f(ctx) }

// AsyncOperation is a non-blocking request. Start initiates the request and
// returns a future that yields exactly one value: nil on success, the failure
// otherwise. Latency is measured from Start until the future resolves.
type AsyncOperation interface {
	Start(ctx context.Context) <-chan error
}

// AsyncFunc adapts a function to AsyncOperation.
type AsyncFunc func(ctx context.Context) <-chan error

func (f AsyncFunc) Start(ctx context.Context) <-chan error { return f(ctx) }

// Factory produces the operation for one scheduled request.
type Factory func() Operation

// AsyncFactory produces the async operation for one scheduled request.
type AsyncFactory func() AsyncOperation

// Shared returns a Factory that hands out op for every request.
// op must be safe for concurrent use.
func Shared(op Operation) Factory {
	return func() Operation { return op }
}

// SharedAsync returns an AsyncFactory that hands out op for every request.
func SharedAsync(op AsyncOperation) AsyncFactory {
	return func() AsyncOperation { return op }
}

// Go turns a blocking function into an AsyncOperation resolved from its own
// goroutine.
func Go(fn func(ctx context.Context) error) AsyncOperation {
	return AsyncFunc(func(ctx context.Context) <-chan error {
		done := make(chan error, 1)
		go func() {
			done <- fn(ctx)
		}()
		return done
	})
}

// Resolved returns an already completed future.
func Resolved(err error) <-chan error {
	done := make(chan error, 1)
	done <- err
	return done
}

var errNilFuture = errors.New("async operation returned a nil future")

// callSafely runs op.Do and turns a panic into an error so a misbehaving
// operation cannot take a worker down with it.
func callSafely(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op.Do(ctx)
}

// startSafely is the AsyncOperation counterpart of callSafely.
func startSafely(ctx context.Context, op AsyncOperation) (future <-chan error) {
	defer func() {
		if r := recover(); r != nil {
			future = Resolved(fmt.Errorf("operation panicked: %v", r))
		}
	}()
	future = op.Start(ctx)
	if future == nil {
		return Resolved(errNilFuture)
	}
	return future
}
