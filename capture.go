package tracepool

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Captured is a capture of the trace context active at submission time.
//
// A nil *Captured means no context was active. All methods are safe on a nil
// receiver: Activate returns ctx unchanged and Discard does nothing.
type Captured struct {
	tc        TraceContext
	cont      Continuation
	shared    *sharedContinuation
	discarded atomic.Bool
}

// sharedContinuation is one continuation wrapped into several sibling units.
// The last sibling to discard discards it.
type sharedContinuation struct {
	cont      Continuation
	remaining atomic.Int64
}

// Capture captures the trace context active on ctx.
// Returns nil, nil when no context is active.
func Capture(ctx context.Context, b Backend) (*Captured, error) {
	tc := b.ActiveContext(ctx)
	if tc == nil {
		return nil, nil
	}
	return captureFrom(b, tc)
}

func captureFrom(b Backend, tc TraceContext) (*Captured, error) {
	if !b.Capabilities().DetachedContinuations {
		return &Captured{tc: tc}, nil
	}
	capturer, ok := tc.(Capturer)
	if !ok {
		return nil, ErrCaptureUnsupported
	}
	cont, err := capturer.Capture()
	if err != nil {
		return nil, fmt.Errorf("tracepool: capture trace context: %w", err)
	}
	return &Captured{tc: tc, cont: cont}, nil
}

// captureBatch captures tc for n sibling units, in order.
// Reference-counted backends get one continuation per sibling so each pending
// unit holds its own retain; otherwise one continuation is shared.
func captureBatch(b Backend, tc TraceContext, n int) ([]*Captured, error) {
	out := make([]*Captured, n)
	if tc == nil || n == 0 {
		return out, nil
	}

	caps := b.Capabilities()
	if n == 1 || caps.RefCounted || !caps.DetachedContinuations {
		for i := range out {
			c, err := captureFrom(b, tc)
			if err != nil {
				discardAll(out[:i])
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}

	first, err := captureFrom(b, tc)
	if err != nil {
		return nil, err
	}
	shared := &sharedContinuation{cont: first.cont}
	shared.remaining.Store(int64(n))
	for i := range out {
		out[i] = &Captured{tc: tc, cont: first.cont, shared: shared}
	}
	return out, nil
}

// Activate reactivates the capture on ctx.
func (c *Captured) Activate(ctx context.Context) (context.Context, Scope, error) {
	if c == nil {
		return ctx, noopScope{}, nil
	}
	if c.discarded.Load() {
		return ctx, nil, ErrContinuationConsumed
	}
	if c.cont != nil {
		return c.cont.Activate(ctx)
	}
	return c.tc.Activate(ctx)
}

// Discard releases what the capture retains. Idempotent.
func (c *Captured) Discard() {
	if c == nil || !c.discarded.CompareAndSwap(false, true) {
		return
	}
	if c.shared != nil {
		if c.shared.remaining.Add(-1) == 0 {
			c.shared.cont.Discard()
		}
		return
	}
	if c.cont != nil {
		c.cont.Discard()
	}
}

// Context returns the captured trace context, or nil.
func (c *Captured) Context() TraceContext {
	if c == nil {
		return nil
	}
	return c.tc
}

func discardAll(cs []*Captured) {
	for _, c := range cs {
		c.Discard()
	}
}
