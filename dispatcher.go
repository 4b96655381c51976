package tracepool

import (
	"context"
	"log/slog"
)

// Operation names, used for root spans and metrics.
const (
	OpExecute                = "execute"
	OpSubmit                 = "submit"
	OpInvokeAll              = "invokeAll"
	OpInvokeAny              = "invokeAny"
	OpSchedule               = "schedule"
	OpScheduleAtFixedRate    = "scheduleAtFixedRate"
	OpScheduleWithFixedDelay = "scheduleWithFixedDelay"
)

// Dispatcher decorates an Executor so submitted units run with the trace
// context active at submission.
// Safe for concurrent use by multiple goroutines.
type Dispatcher struct {
	exec    Executor
	backend Backend
	cfg     config
}

var _ Executor = (*Dispatcher)(nil)

// NewDispatcher decorates exec with trace propagation from b.
func NewDispatcher(exec Executor, b Backend, opts ...Option) *Dispatcher {
	if exec == nil {
		panic("tracepool: NewDispatcher requires non-nil executor")
	}
	if b == nil {
		panic("tracepool: NewDispatcher requires non-nil backend")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{exec: exec, backend: b, cfg: cfg}
}

// Backend returns the tracing backend.
func (d *Dispatcher) Backend() Backend {
	return d.backend
}

// Execute submits r. If a trace context is active on ctx (or a root span was
// started for the call) r runs with it active.
func (d *Dispatcher) Execute(ctx context.Context, r Runnable) error {
	_, err := dispatch(d, ctx, OpExecute, 1, func(cs []*Captured) (struct{}, error) {
		if cs[0] == nil {
			return struct{}{}, d.exec.Execute(ctx, r)
		}
		t := newTracedRunnable(r, cs[0], false)
		if err := d.exec.Execute(ctx, t); err != nil {
			d.reject(t)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// dispatch is the one shape every decorated operation takes: pick the trace
// context for op, capture it for n units and hand the captures to submit. A
// root span started for the call finishes when submit returns.
func dispatch[R any](d *Dispatcher, ctx context.Context, op string, n int, submit func(cs []*Captured) (R, error)) (R, error) {
	tc, end := d.begin(ctx, op)
	defer end()

	cs, err := captureBatch(d.backend, tc, n)
	if err != nil {
		d.cfg.metrics.captureFailed()
		d.cfg.logger.Warn("trace context capture failed",
			slog.String("op", op),
			slog.Any("error", err))
		var zero R
		return zero, err
	}
	if tc != nil {
		d.cfg.metrics.wrap(n)
	}
	return submit(cs)
}

// begin returns the trace context to propagate for op, and the function that
// finishes a root span started for it.
func (d *Dispatcher) begin(ctx context.Context, op string) (TraceContext, func()) {
	if tc := d.backend.ActiveContext(ctx); tc != nil {
		d.cfg.metrics.dispatch(op, OutcomePropagated)
		return tc, func() {}
	}
	if d.cfg.requireActiveContext {
		d.cfg.metrics.dispatch(op, OutcomeUntraced)
		return nil, func() {}
	}

	name := d.cfg.spanName(op)
	_, span := d.backend.StartSpan(ctx, name)
	d.cfg.metrics.dispatch(op, OutcomeSynthesized)
	d.cfg.logger.Debug("started root span for dispatch",
		slog.String("op", op),
		slog.String("span", name))
	return span.Context(), span.Finish
}

// tracedUnit is a wrapped unit the dispatcher can clean up after a failed
// submission.
type tracedUnit interface {
	Discarder
	ran() bool
}

// reject discards the units of a failed submission that never ran. Units the
// executor already discarded are counted but not discarded twice.
func (d *Dispatcher) reject(units ...tracedUnit) {
	n := 0
	for _, u := range units {
		if u.ran() {
			continue
		}
		u.Discard()
		n++
	}
	d.cfg.metrics.rejected(n)
}
