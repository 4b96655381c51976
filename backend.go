package tracepool

import "context"

// Backend is the tracing system a decorator propagates.
// Implementations must be safe for concurrent use.
type Backend interface {
	// ActiveContext returns the trace context active on ctx, or nil.
	ActiveContext(ctx context.Context) TraceContext

	// StartSpan starts a span. With no active context on ctx it is a root.
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// Capabilities reports how trace contexts cross goroutines.
	Capabilities() Capabilities
}

// Capabilities selects how captures are taken and shared.
type Capabilities struct {
	// DetachedContinuations means trace contexts implement Capturer and
	// units reactivate a Continuation rather than the context itself.
	DetachedContinuations bool

	// RefCounted means each Continuation retains its span until discarded,
	// so every pending unit needs a capture of its own.
	RefCounted bool
}

// TraceContext is the backend's notion of the currently active span.
type TraceContext interface {
	// Activate places the trace context on ctx.
	Activate(ctx context.Context) (context.Context, Scope, error)
}

// Capturer is implemented by trace contexts of backends that report
// DetachedContinuations.
type Capturer interface {
	Capture() (Continuation, error)
}

// Continuation is a capture of a trace context that can be handed to another
// goroutine. Activate may be called more than once; each call yields an
// independent Scope. Discard drops whatever the capture retains and is called
// once per capture.
type Continuation interface {
	Activate(ctx context.Context) (context.Context, Scope, error)
	Discard()
}

// Scope is a live activation. Release must be called exactly once.
type Scope interface {
	Release()
}

// Span is a span started through Backend.StartSpan.
type Span interface {
	// Context returns the span as a trace context for propagation.
	Context() TraceContext
	Finish()
}

type noopScope struct{}

func (noopScope) Release() {}
