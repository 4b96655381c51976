package tracepool

import (
	"context"
	"time"
)

// Runnable is a unit of work with no result.
type Runnable interface {
	Run(ctx context.Context) error
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f RunnableFunc) Run(ctx context.Context) error { return f(ctx) }

// Callable is a unit of work that produces a value.
type Callable interface {
	Call(ctx context.Context) (any, error)
}

// CallableFunc adapts a function to Callable.
type CallableFunc func(ctx context.Context) (any, error)

// Call calls f(ctx).
func (f CallableFunc) Call(ctx context.Context) (any, error) { return f(ctx) }

// Discarder is implemented by units that hold resources until they run.
// A pool that drops a unit without running it (cancelled, rejected, shut
// down) calls Discard.
type Discarder interface {
	Discard()
}

// Future is the handle of a submitted unit.
type Future interface {
	// Get waits for the result. ctx bounds the wait only.
	Get(ctx context.Context) (any, error)
	// Done is closed once the unit completed or was cancelled.
	Done() <-chan struct{}
	// Cancel prevents the unit from running if it has not started.
	Cancel() bool
	IsCancelled() bool
	IsDone() bool
}

// ScheduledFuture is the handle of a delayed or periodic unit.
type ScheduledFuture interface {
	Future
	// Delay is the time remaining until the next run.
	Delay() time.Duration
}

// Executor accepts units for asynchronous execution.
// ctx belongs to the submitter; an Executor may use it to abandon a blocking
// enqueue but does not hand it to the unit.
type Executor interface {
	Execute(ctx context.Context, r Runnable) error
}

// ExecutorService is an Executor with result handles, batches and lifecycle.
type ExecutorService interface {
	Executor

	Submit(ctx context.Context, c Callable) (Future, error)
	// SubmitRunnable runs r and completes its future with result.
	SubmitRunnable(ctx context.Context, r Runnable, result any) (Future, error)

	// InvokeAll runs every unit and waits for all of them. Futures are in
	// input order.
	InvokeAll(ctx context.Context, cs []Callable) ([]Future, error)
	InvokeAllTimeout(ctx context.Context, cs []Callable, timeout time.Duration) ([]Future, error)

	// InvokeAny returns the result of the first unit to succeed and cancels
	// the rest.
	InvokeAny(ctx context.Context, cs []Callable) (any, error)
	InvokeAnyTimeout(ctx context.Context, cs []Callable, timeout time.Duration) (any, error)

	Shutdown()
	// ShutdownNow cancels queued and scheduled work and returns how many
	// units were dropped.
	ShutdownNow() int
	IsShutdown() bool
	IsTerminated() bool
	AwaitTermination(ctx context.Context) error
}

// ScheduledExecutorService adds delayed and periodic execution.
type ScheduledExecutorService interface {
	ExecutorService

	Schedule(ctx context.Context, r Runnable, delay time.Duration) (ScheduledFuture, error)
	ScheduleCallable(ctx context.Context, c Callable, delay time.Duration) (ScheduledFuture, error)
	// ScheduleAtFixedRate runs r every period measured from scheduled start
	// times.
	ScheduleAtFixedRate(ctx context.Context, r Runnable, initialDelay, period time.Duration) (ScheduledFuture, error)
	// ScheduleWithFixedDelay runs r with delay between the end of one run and
	// the start of the next.
	ScheduleWithFixedDelay(ctx context.Context, r Runnable, initialDelay, delay time.Duration) (ScheduledFuture, error)
}
