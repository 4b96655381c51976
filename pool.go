package tracepool

import (
	"context"
	"time"
)

// Pool decorates an ExecutorService. Every operation reads the active trace
// context once and wraps each submitted unit with it.
type Pool struct {
	*Dispatcher
	svc ExecutorService
}

var _ ExecutorService = (*Pool)(nil)

// NewPool decorates svc with trace propagation from b.
func NewPool(svc ExecutorService, b Backend, opts ...Option) *Pool {
	return &Pool{
		Dispatcher: NewDispatcher(svc, b, opts...),
		svc:        svc,
	}
}

// Submit submits c and returns the pool's future unchanged.
func (p *Pool) Submit(ctx context.Context, c Callable) (Future, error) {
	return dispatch(p.Dispatcher, ctx, OpSubmit, 1, func(cs []*Captured) (Future, error) {
		if cs[0] == nil {
			return p.svc.Submit(ctx, c)
		}
		t := newTracedCallable(c, cs[0])
		f, err := p.svc.Submit(ctx, t)
		if err != nil {
			p.reject(t)
		}
		return f, err
	})
}

// SubmitRunnable submits r; its future completes with result.
func (p *Pool) SubmitRunnable(ctx context.Context, r Runnable, result any) (Future, error) {
	return dispatch(p.Dispatcher, ctx, OpSubmit, 1, func(cs []*Captured) (Future, error) {
		if cs[0] == nil {
			return p.svc.SubmitRunnable(ctx, r, result)
		}
		t := newTracedRunnable(r, cs[0], false)
		f, err := p.svc.SubmitRunnable(ctx, t, result)
		if err != nil {
			p.reject(t)
		}
		return f, err
	})
}

// InvokeAll runs every unit as siblings under one trace context and returns
// the pool's futures in input order.
func (p *Pool) InvokeAll(ctx context.Context, cs []Callable) ([]Future, error) {
	return invokeBatch(p, ctx, OpInvokeAll, cs, func(wrapped []Callable) ([]Future, error) {
		return p.svc.InvokeAll(ctx, wrapped)
	})
}

// InvokeAllTimeout is InvokeAll with the pool's own timeout handling.
func (p *Pool) InvokeAllTimeout(ctx context.Context, cs []Callable, timeout time.Duration) ([]Future, error) {
	return invokeBatch(p, ctx, OpInvokeAll, cs, func(wrapped []Callable) ([]Future, error) {
		return p.svc.InvokeAllTimeout(ctx, wrapped, timeout)
	})
}

// InvokeAny runs every unit as siblings under one trace context and returns
// whatever the pool selects.
func (p *Pool) InvokeAny(ctx context.Context, cs []Callable) (any, error) {
	return invokeBatch(p, ctx, OpInvokeAny, cs, func(wrapped []Callable) (any, error) {
		return p.svc.InvokeAny(ctx, wrapped)
	})
}

// InvokeAnyTimeout is InvokeAny with the pool's own timeout handling.
func (p *Pool) InvokeAnyTimeout(ctx context.Context, cs []Callable, timeout time.Duration) (any, error) {
	return invokeBatch(p, ctx, OpInvokeAny, cs, func(wrapped []Callable) (any, error) {
		return p.svc.InvokeAnyTimeout(ctx, wrapped, timeout)
	})
}

// Shutdown calls the pool's Shutdown.
func (p *Pool) Shutdown() { p.svc.Shutdown() }

// ShutdownNow calls the pool's ShutdownNow.
func (p *Pool) ShutdownNow() int { return p.svc.ShutdownNow() }

// IsShutdown calls the pool's IsShutdown.
func (p *Pool) IsShutdown() bool { return p.svc.IsShutdown() }

// IsTerminated calls the pool's IsTerminated.
func (p *Pool) IsTerminated() bool { return p.svc.IsTerminated() }

// AwaitTermination calls the pool's AwaitTermination.
func (p *Pool) AwaitTermination(ctx context.Context) error { return p.svc.AwaitTermination(ctx) }

// invokeBatch wraps cs and hands them to call. When call fails, every wrapped
// unit that has not run is discarded, whether or not the pool discarded it.
func invokeBatch[R any](p *Pool, ctx context.Context, op string, cs []Callable, call func(wrapped []Callable) (R, error)) (R, error) {
	return dispatch(p.Dispatcher, ctx, op, len(cs), func(captured []*Captured) (R, error) {
		wrapped, traced := wrapCallables(cs, captured)
		v, err := call(wrapped)
		if err != nil && len(traced) > 0 {
			p.reject(traced...)
		}
		return v, err
	})
}

// wrapCallables pairs cs[i] with captured[i]. Units without a capture are
// passed through unwrapped; the wrapped ones are also returned in traced.
func wrapCallables(cs []Callable, captured []*Captured) (out []Callable, traced []tracedUnit) {
	out = make([]Callable, len(cs))
	for i, c := range cs {
		if captured[i] == nil {
			out[i] = c
			continue
		}
		t := newTracedCallable(c, captured[i])
		out[i] = t
		traced = append(traced, t)
	}
	return out, traced
}
