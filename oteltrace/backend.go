// Package oteltrace adapts an OpenTelemetry tracer to tracepool.Backend.
//
// OpenTelemetry spans are values carried by context.Context and have no
// reference-counted lifetime, so the adapter propagates by value: the span
// active at submission is put on the worker's context when the unit runs.
package oteltrace

import (
	"context"

	"github.com/zoobzio/tracepool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultInstrumentationName names the tracer used by New when none is given.
const DefaultInstrumentationName = "github.com/zoobzio/tracepool"

// Backend propagates OpenTelemetry spans.
type Backend struct {
	tracer   trace.Tracer
	spanOpts []trace.SpanStartOption
}

var _ tracepool.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithTracerProvider takes the tracer from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Backend) {
		b.tracer = tp.Tracer(DefaultInstrumentationName)
	}
}

// WithSpanStartOptions applies opts to root spans started for dispatches.
func WithSpanStartOptions(opts ...trace.SpanStartOption) Option {
	return func(b *Backend) {
		b.spanOpts = append(b.spanOpts, opts...)
	}
}

// New creates a Backend using the global tracer provider unless
// WithTracerProvider is given.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer(DefaultInstrumentationName)
	}
	return b
}

// ActiveContext returns the span on ctx when its span context is valid.
func (b *Backend) ActiveContext(ctx context.Context) tracepool.TraceContext {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return traceContext{span: span}
}

// StartSpan starts an internal span.
func (b *Backend) StartSpan(ctx context.Context, name string) (context.Context, tracepool.Span) {
	opts := append([]trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}, b.spanOpts...)
	ctx, span := b.tracer.Start(ctx, name, opts...)
	return ctx, spanHandle{span: span}
}

// Capabilities reports capture-by-value propagation.
func (b *Backend) Capabilities() tracepool.Capabilities {
	return tracepool.Capabilities{}
}

type traceContext struct {
	span trace.Span
}

func (c traceContext) Activate(ctx context.Context) (context.Context, tracepool.Scope, error) {
	return trace.ContextWithSpan(ctx, c.span), noopScope{}, nil
}

type spanHandle struct {
	span trace.Span
}

func (s spanHandle) Context() tracepool.TraceContext {
	return traceContext{span: s.span}
}

func (s spanHandle) Finish() {
	s.span.End()
}

type noopScope struct{}

func (noopScope) Release() {}
