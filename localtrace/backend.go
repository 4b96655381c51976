package localtrace

import (
	"context"
	"sync/atomic"

	"github.com/zoobzio/tracepool"
)

// ScopeStats counts captures and activations made through the backend.
type ScopeStats struct {
	Captured  int64
	Discarded int64
	Activated int64
	Released  int64
}

type scopeCounters struct {
	captured  atomic.Int64
	discarded atomic.Int64
	activated atomic.Int64
	released  atomic.Int64
}

func (s *scopeCounters) snapshot() ScopeStats {
	return ScopeStats{
		Captured:  s.captured.Load(),
		Discarded: s.discarded.Load(),
		Activated: s.activated.Load(),
		Released:  s.released.Load(),
	}
}

func (s *scopeCounters) reset() {
	s.captured.Store(0)
	s.discarded.Store(0)
	s.activated.Store(0)
	s.released.Store(0)
}

// Backend returns the tracer as a tracepool.Backend.
func (t *Tracer) Backend() tracepool.Backend {
	return backend{t}
}

type backend struct {
	t *Tracer
}

func (b backend) ActiveContext(ctx context.Context) tracepool.TraceContext {
	if a := getActive(ctx); a != nil {
		return traceContext{a}
	}
	return nil
}

func (b backend) StartSpan(ctx context.Context, name string) (context.Context, tracepool.Span) {
	ctx, a := b.t.StartSpan(ctx, name)
	return ctx, spanHandle{a}
}

func (b backend) Capabilities() tracepool.Capabilities {
	return tracepool.Capabilities{
		DetachedContinuations: true,
		RefCounted:            b.t.refCounted,
	}
}

type spanHandle struct {
	*ActiveSpan
}

func (s spanHandle) Context() tracepool.TraceContext {
	return traceContext{s.ActiveSpan}
}

// traceContext is an ActiveSpan seen as a tracepool.TraceContext.
type traceContext struct {
	a *ActiveSpan
}

// Activate places the span on ctx without capturing it.
func (c traceContext) Activate(ctx context.Context) (context.Context, tracepool.Scope, error) {
	return c.a.activate(ctx)
}

// Capture retains the span (with reference counting) until the continuation
// is discarded.
func (c traceContext) Capture() (tracepool.Continuation, error) {
	if c.a.tracer.refCounted {
		c.a.retain()
	}
	c.a.tracer.scopes.captured.Add(1)
	return &continuation{a: c.a}, nil
}

type continuation struct {
	a         *ActiveSpan
	discarded atomic.Bool
}

func (c *continuation) Activate(ctx context.Context) (context.Context, tracepool.Scope, error) {
	return c.a.activate(ctx)
}

func (c *continuation) Discard() {
	if !c.discarded.CompareAndSwap(false, true) {
		return
	}
	c.a.tracer.scopes.discarded.Add(1)
	if c.a.tracer.refCounted {
		c.a.release()
	}
}

func (a *ActiveSpan) activate(ctx context.Context) (context.Context, tracepool.Scope, error) {
	if a.tracer.refCounted {
		a.retain()
	}
	a.tracer.scopes.activated.Add(1)
	return a.Context(ctx), &scope{a: a}, nil
}

type scope struct {
	a        *ActiveSpan
	released atomic.Bool
}

func (s *scope) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	s.a.tracer.scopes.released.Add(1)
	if s.a.tracer.refCounted {
		s.a.release()
	}
}
