package tracepool

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Unit states. A one-shot unit leaves pending exactly once, by running or by
// being discarded; a repeating unit stays pending until discarded.
const (
	unitPending int32 = iota
	unitRan
	unitDiscarded
)

// TracedRunnable runs its delegate with a captured trace context active.
type TracedRunnable struct {
	delegate  Runnable
	captured  *Captured
	repeating bool
	state     atomic.Int32
}

// WrapRunnable binds r to the trace context captured from ctx.
// The result is one-shot: its capture is consumed by the first Run.
func WrapRunnable(ctx context.Context, b Backend, r Runnable) (*TracedRunnable, error) {
	c, err := Capture(ctx, b)
	if err != nil {
		return nil, err
	}
	return &TracedRunnable{delegate: r, captured: c}, nil
}

// WrapRepeating binds r to the trace context captured from ctx for periodic
// execution. Every Run activates and releases the same capture; Discard ends
// its use.
func WrapRepeating(ctx context.Context, b Backend, r Runnable) (*TracedRunnable, error) {
	c, err := Capture(ctx, b)
	if err != nil {
		return nil, err
	}
	return &TracedRunnable{delegate: r, captured: c, repeating: true}, nil
}

// Run activates the capture, runs the delegate and releases the activation.
func (t *TracedRunnable) Run(ctx context.Context) error {
	if t.captured == nil {
		return t.delegate.Run(ctx)
	}
	if t.repeating {
		if t.state.Load() == unitDiscarded {
			return ErrContinuationConsumed
		}
	} else if !t.state.CompareAndSwap(unitPending, unitRan) {
		return ErrContinuationConsumed
	}

	actx, scope, err := t.captured.Activate(ctx)
	if err != nil {
		if !t.repeating {
			t.captured.Discard()
		}
		return fmt.Errorf("%w: %w", ErrActivation, err)
	}
	defer func() {
		scope.Release()
		if !t.repeating {
			t.captured.Discard()
		}
	}()

	return t.delegate.Run(actx)
}

// Discard releases the capture without running. Idempotent; does nothing
// once a one-shot unit has run.
func (t *TracedRunnable) Discard() {
	if !t.state.CompareAndSwap(unitPending, unitDiscarded) {
		return
	}
	t.captured.Discard()
	if d, ok := t.delegate.(Discarder); ok {
		d.Discard()
	}
}

func (t *TracedRunnable) ran() bool {
	return t.state.Load() == unitRan
}

// Captured returns the capture, nil when no context was active.
func (t *TracedRunnable) Captured() *Captured {
	return t.captured
}

// TracedCallable calls its delegate with a captured trace context active.
type TracedCallable struct {
	delegate Callable
	captured *Captured
	state    atomic.Int32
}

// WrapCallable binds c to the trace context captured from ctx.
func WrapCallable(ctx context.Context, b Backend, c Callable) (*TracedCallable, error) {
	captured, err := Capture(ctx, b)
	if err != nil {
		return nil, err
	}
	return &TracedCallable{delegate: c, captured: captured}, nil
}

// Call activates the capture, calls the delegate and releases the activation.
func (t *TracedCallable) Call(ctx context.Context) (any, error) {
	if t.captured == nil {
		return t.delegate.Call(ctx)
	}
	if !t.state.CompareAndSwap(unitPending, unitRan) {
		return nil, ErrContinuationConsumed
	}

	actx, scope, err := t.captured.Activate(ctx)
	if err != nil {
		t.captured.Discard()
		return nil, fmt.Errorf("%w: %w", ErrActivation, err)
	}
	defer func() {
		scope.Release()
		t.captured.Discard()
	}()

	return t.delegate.Call(actx)
}

// Discard releases the capture without calling. Idempotent; does nothing
// once the unit has been called.
func (t *TracedCallable) Discard() {
	if !t.state.CompareAndSwap(unitPending, unitDiscarded) {
		return
	}
	t.captured.Discard()
	if d, ok := t.delegate.(Discarder); ok {
		d.Discard()
	}
}

func (t *TracedCallable) ran() bool {
	return t.state.Load() == unitRan
}

// Captured returns the capture, nil when no context was active.
func (t *TracedCallable) Captured() *Captured {
	return t.captured
}

func newTracedRunnable(r Runnable, c *Captured, repeating bool) *TracedRunnable {
	return &TracedRunnable{delegate: r, captured: c, repeating: repeating}
}

func newTracedCallable(c Callable, captured *Captured) *TracedCallable {
	return &TracedCallable{delegate: c, captured: captured}
}
