// Package tracepool carries the active span of a submitter into work run by a
// worker pool.
//
// Pools break the notion of "the current operation": a worker runs submitted
// work with its own context, so spans started inside that work become roots.
// tracepool decorates a pool so every submitted unit first reactivates the
// trace context that was active when it was submitted.
//
// Core Components:
//   - Backend: the tracing system, consumed through a narrow interface.
//   - Captured: a point-in-time capture of the submitter's trace context.
//   - TracedRunnable / TracedCallable: units that reactivate a capture.
//   - Dispatcher: decorates a fire-and-forget Executor.
//   - Pool: decorates an ExecutorService (submit, invokeAll, invokeAny).
//   - Scheduler: decorates a ScheduledExecutorService (delayed and periodic).
//
// Basic Usage:
//
//	tracer := localtrace.New()
//	workers := workpool.New(4)
//	pool := tracepool.NewPool(workers, tracer.Backend())
//	defer pool.Shutdown()
//
//	ctx, span := tracer.StartSpan(ctx, "handle-request")
//	future, err := pool.Submit(ctx, tracepool.CallableFunc(func(ctx context.Context) (any, error) {
//		// Spans started from ctx are children of "handle-request".
//		return lookup(ctx)
//	}))
//	span.Finish()
//
// Root Spans:
//
// By default a decorator only propagates a context that is already active.
// WithRequireActiveContext(false) makes it start a root span named after the
// operation ("execute", "submit", "invokeAll", ...) around the submission
// when nothing is active, so the dispatched work has a parent.
//
// Batches:
//
// InvokeAll and InvokeAny read the active context once per call and wrap every
// member with it. Results keep input order.
//
// Periodic Work:
//
// ScheduleAtFixedRate and ScheduleWithFixedDelay capture once at schedule time
// and reactivate the capture for every firing.
//
// Thread Safety:
//
// Dispatcher, Pool and Scheduler are safe for concurrent use. A traced unit
// releases its activation before Run or Call returns, including on panic.
package tracepool
