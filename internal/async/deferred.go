// Package async provides a lazy deferred computation type. A Deferred does
// no work until it is awaited; subscription and completion are discrete
// callback events, and the computation itself runs on its own goroutine.
package async

import (
	"context"

	"go.uber.org/atomic"
)

// Delivery states for one Await. Exactly one side claims the outcome: the
// worker before it runs completion callbacks, or the awaiter on
// cancellation.
const (
	statePending int32 = iota
	stateCompleting
	stateCancelled
)

// Outcome carries the terminal result of a deferred computation.
// Exactly one of Item or Err is meaningful.
type Outcome[T any] struct {
	Item T
	Err  error
}

// Deferred is an asynchronous result that produces its value or failure
// only once awaited. Derived deferreds share the underlying computation
// and accumulate lifecycle callbacks.
type Deferred[T any] struct {
	compute      func(context.Context) (T, error)
	onSubscribe  []func()
	onCompletion []func(T, error)
}

// New creates a deferred around the given computation. The computation is
// not started until Await is called.
func New[T any](compute func(context.Context) (T, error)) *Deferred[T] {
	return &Deferred[T]{compute: compute}
}

// Resolve creates a deferred that completes immediately with item.
func Resolve[T any](item T) *Deferred[T] {
	return New(func(context.Context) (T, error) { return item, nil })
}

// Reject creates a deferred that completes immediately with err.
func Reject[T any](err error) *Deferred[T] {
	return New(func(context.Context) (T, error) {
		var zero T
		return zero, err
	})
}

// OnSubscribe returns a derived deferred that invokes fn when the
// computation is subscribed to. Callbacks run on the awaiting goroutine,
// before the computation starts.
func (d *Deferred[T]) OnSubscribe(fn func()) *Deferred[T] {
	return &Deferred[T]{
		compute:      d.compute,
		onSubscribe:  append(append([]func(){}, d.onSubscribe...), fn),
		onCompletion: d.onCompletion,
	}
}

// OnCompletion returns a derived deferred that invokes fn with the value
// and error once the computation finishes. Callbacks run on the worker
// goroutine, before the outcome is delivered to the awaiter.
func (d *Deferred[T]) OnCompletion(fn func(T, error)) *Deferred[T] {
	return &Deferred[T]{
		compute:      d.compute,
		onSubscribe:  d.onSubscribe,
		onCompletion: append(append([]func(T, error){}, d.onCompletion...), fn),
	}
}

// Await subscribes to the deferred, runs the computation on a separate
// goroutine and blocks until it completes or ctx is cancelled. The value
// or error is returned exactly as the computation produced it.
//
// If ctx is cancelled before the computation finishes, the computation is
// abandoned: completion callbacks never fire and the context error is
// returned instead. When cancellation and completion race, whichever side
// claims the outcome first wins, so completion callbacks never run after
// Await has returned.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	for _, fn := range d.onSubscribe {
		fn()
	}

	var state atomic.Int32
	done := make(chan Outcome[T], 1)
	go func() {
		item, err := d.compute(ctx)
		if !state.CompareAndSwap(statePending, stateCompleting) {
			// Abandoned: the awaiter already returned.
			return
		}
		for _, fn := range d.onCompletion {
			fn(item, err)
		}
		done <- Outcome[T]{Item: item, Err: err}
	}()

	select {
	case out := <-done:
		return out.Item, out.Err
	case <-ctx.Done():
		if state.CompareAndSwap(statePending, stateCancelled) {
			var zero T
			return zero, ctx.Err()
		}
		// The worker claimed completion first; its callbacks are
		// already running, so wait for the outcome.
		out := <-done
		return out.Item, out.Err
	}
}

// Wrappable lets instrumentation attach lifecycle callbacks to a deferred
// without knowing its payload type. The returned value is the same concrete
// deferred type as the receiver.
type Wrappable interface {
	WithHooks(onSubscribe func(), onCompletion func(item any, err error)) Wrappable
}

// WithHooks implements Wrappable. Nil callbacks are skipped.
func (d *Deferred[T]) WithHooks(onSubscribe func(), onCompletion func(item any, err error)) Wrappable {
	out := d
	if onSubscribe != nil {
		out = out.OnSubscribe(onSubscribe)
	}
	if onCompletion != nil {
		out = out.OnCompletion(func(item T, err error) {
			onCompletion(item, err)
		})
	}
	return out
}
