package tracepool

import (
	"context"
	"sync/atomic"
)

type fakeKey struct{}

// fakeContext records what the decorators do with it.
type fakeContext struct {
	name        string
	activateErr error
	captureErr  error

	captures    atomic.Int64
	discards    atomic.Int64
	activations atomic.Int64
	releases    atomic.Int64
}

func (c *fakeContext) Activate(ctx context.Context) (context.Context, Scope, error) {
	if c.activateErr != nil {
		return ctx, nil, c.activateErr
	}
	c.activations.Add(1)
	return context.WithValue(ctx, fakeKey{}, c), &fakeScope{c: c}, nil
}

func (c *fakeContext) Capture() (Continuation, error) {
	if c.captureErr != nil {
		return nil, c.captureErr
	}
	c.captures.Add(1)
	return &fakeContinuation{c: c}, nil
}

type fakeContinuation struct {
	c *fakeContext
}

func (f *fakeContinuation) Activate(ctx context.Context) (context.Context, Scope, error) {
	return f.c.Activate(ctx)
}

func (f *fakeContinuation) Discard() {
	f.c.discards.Add(1)
}

type fakeScope struct {
	c *fakeContext
}

func (s *fakeScope) Release() {
	s.c.releases.Add(1)
}

// valueContext cannot be captured.
type valueContext struct{}

func (valueContext) Activate(ctx context.Context) (context.Context, Scope, error) {
	return ctx, noopScope{}, nil
}

type fakeBackend struct {
	caps Capabilities
}

func (b fakeBackend) ActiveContext(ctx context.Context) TraceContext {
	if tc, ok := ctx.Value(fakeKey{}).(TraceContext); ok {
		return tc
	}
	return nil
}

func (b fakeBackend) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	fc := &fakeContext{name: name}
	return context.WithValue(ctx, fakeKey{}, TraceContext(fc)), fakeSpan{fc}
}

func (b fakeBackend) Capabilities() Capabilities {
	return b.caps
}

type fakeSpan struct {
	c *fakeContext
}

func (s fakeSpan) Context() TraceContext { return s.c }
func (s fakeSpan) Finish()               {}

func withFake(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, fakeKey{}, tc)
}

func activeFake(ctx context.Context) *fakeContext {
	fc, _ := ctx.Value(fakeKey{}).(*fakeContext)
	return fc
}

var (
	detached   = fakeBackend{caps: Capabilities{DetachedContinuations: true}}
	refCounted = fakeBackend{caps: Capabilities{DetachedContinuations: true, RefCounted: true}}
	byValue    = fakeBackend{}
)
