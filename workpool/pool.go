// Package workpool is a goroutine worker pool implementing
// tracepool.ScheduledExecutorService.
//
// A fixed number of workers take units from a buffered queue. Units run with
// the pool's context, never the submitter's. Delayed and periodic units wait
// on the pool's clock and are then queued like any other unit; a periodic
// firing that fails or panics is logged and the schedule continues.
//
// Units dropped without running (cancelled, rejected, removed by Shutdown or
// ShutdownNow) are discarded through tracepool.Discarder when they implement
// it.
package workpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tracepool"
)

var (
	// ErrPoolClosed is returned by submissions after Shutdown.
	ErrPoolClosed = errors.New("workpool: pool is closed")

	// ErrCancelled is returned by Future.Get for a cancelled unit.
	ErrCancelled = errors.New("workpool: unit cancelled")

	// ErrTimeout is returned by InvokeAnyTimeout when no unit succeeded in
	// time.
	ErrTimeout = errors.New("workpool: timed out")

	// ErrAllFailed is returned by InvokeAny when every unit failed. It wraps
	// the last failure.
	ErrAllFailed = errors.New("workpool: every unit failed")

	// ErrNoUnits is returned by InvokeAny for an empty batch.
	ErrNoUnits = errors.New("workpool: no units")

	// ErrInvalidPeriod is returned for a non-positive period or delay of a
	// periodic schedule.
	ErrInvalidPeriod = errors.New("workpool: period must be positive")
)

// Pool runs units on a fixed set of worker goroutines.
// Safe for concurrent use by multiple goroutines.
type Pool struct {
	tasks      chan *job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	closed     atomic.Bool
	stopNow    atomic.Bool
	terminated chan struct{}
	clock      clockz.Clock
	logger     *slog.Logger
	workers    int

	schedMu   sync.Mutex
	scheduled map[*scheduledFuture]struct{}

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	inFlight  atomic.Int64
	dropped   atomic.Int64
}

var _ tracepool.ScheduledExecutorService = (*Pool)(nil)

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Submitted  int64 // units queued
	Completed  int64 // units finished (success + failure)
	Failed     int64 // units that returned an error or panicked
	InFlight   int64 // units running
	Dropped    int64 // units discarded without running
	QueueDepth int   // units waiting in the queue
	Scheduled  int   // delayed or periodic schedules not yet ended
	Workers    int
}

// job is one queued unit. future is nil for Execute and periodic firings;
// onDone, when set, observes the outcome.
type job struct {
	fn     func(ctx context.Context) (any, error)
	unit   any
	future *future
	onDone func(v any, err error)
	op     string
}

func (j *job) discard() {
	discardUnit(j.unit)
}

func discardUnit(unit any) {
	if d, ok := unit.(tracepool.Discarder); ok {
		d.Discard()
	}
}

// New creates a pool with n workers. Workers start immediately.
// Panics if n <= 0.
func New(n int, opts ...Option) *Pool {
	if n <= 0 {
		panic("workpool: New requires n > 0")
	}

	cfg := defaultConfig(n)
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(cfg.ctx)
	p := &Pool{
		tasks:      make(chan *job, cfg.queueSize),
		ctx:        ctx,
		cancel:     cancel,
		terminated: make(chan struct{}),
		clock:      cfg.clock,
		logger:     cfg.logger,
		workers:    n,
		scheduled:  make(map[*scheduledFuture]struct{}),
	}

	p.wg.Add(n)
	for range n {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		p.cancel()
		close(p.terminated)
	}()

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.tasks {
		if p.stopNow.Load() {
			p.drop(j)
			continue
		}
		p.run(j)
	}
}

func (p *Pool) run(j *job) {
	if j.future != nil && !j.future.start() {
		return
	}

	p.inFlight.Add(1)
	v, err := p.call(j)
	p.inFlight.Add(-1)
	p.completed.Add(1)

	if err != nil {
		p.failed.Add(1)
	}
	if j.future != nil {
		j.future.complete(v, err)
	}
	if j.onDone != nil {
		j.onDone(v, err)
	}
	if err != nil && j.future == nil && j.onDone == nil {
		p.logger.Error("unit failed",
			slog.String("op", j.op),
			slog.Any("error", err))
	}
}

func (p *Pool) call(j *job) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return j.fn(p.ctx)
}

// drop removes a job that will not run.
func (p *Pool) drop(j *job) {
	p.dropped.Add(1)
	switch {
	case j.future != nil:
		if !j.future.Cancel() {
			j.discard()
		}
	default:
		j.discard()
	}
	if j.onDone != nil {
		j.onDone(nil, ErrCancelled)
	}
}

// enqueue queues j, blocking while the queue is full.
func (p *Pool) enqueue(ctx context.Context, j *job) (err error) {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Shutdown may close the queue between the check above and the send.
	defer func() {
		if r := recover(); r != nil {
			err = ErrPoolClosed
		}
	}()

	select {
	case p.tasks <- j:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// submit queues j and discards its unit when the queue refuses it.
func (p *Pool) submit(ctx context.Context, j *job) error {
	if err := p.enqueue(ctx, j); err != nil {
		j.discard()
		return err
	}
	return nil
}

// Execute runs r on a worker. A failure is logged.
func (p *Pool) Execute(ctx context.Context, r tracepool.Runnable) error {
	return p.submit(ctx, &job{
		fn:   runnableFunc(r, nil),
		unit: r,
		op:   tracepool.OpExecute,
	})
}

// Submit runs c on a worker.
func (p *Pool) Submit(ctx context.Context, c tracepool.Callable) (tracepool.Future, error) {
	f, err := p.submitCallable(ctx, c)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SubmitRunnable runs r on a worker; the future completes with result.
func (p *Pool) SubmitRunnable(ctx context.Context, r tracepool.Runnable, result any) (tracepool.Future, error) {
	j := &job{fn: runnableFunc(r, result), unit: r, op: tracepool.OpSubmit}
	j.future = newFuture(j.discard)
	if err := p.submit(ctx, j); err != nil {
		return nil, err
	}
	return j.future, nil
}

func (p *Pool) submitCallable(ctx context.Context, c tracepool.Callable) (*future, error) {
	j := &job{fn: c.Call, unit: c, op: tracepool.OpSubmit}
	j.future = newFuture(j.discard)
	if err := p.submit(ctx, j); err != nil {
		return nil, err
	}
	return j.future, nil
}

func runnableFunc(r tracepool.Runnable, result any) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		if err := r.Run(ctx); err != nil {
			return nil, err
		}
		return result, nil
	}
}

// Shutdown stops accepting units and ends every schedule. Queued units still
// run.
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancelScheduled()
	close(p.tasks)
}

// ShutdownNow stops accepting units, ends every schedule, discards queued
// units and cancels the context running units see. Returns the number of
// queued units and schedules it removed.
func (p *Pool) ShutdownNow() int {
	p.stopNow.Store(true)
	n := p.cancelScheduled()
	if p.closed.CompareAndSwap(false, true) {
		close(p.tasks)
	}
	p.cancel()

	for j := range p.tasks {
		p.drop(j)
		n++
	}
	return n
}

// IsShutdown reports whether Shutdown or ShutdownNow was called.
func (p *Pool) IsShutdown() bool {
	return p.closed.Load()
}

// IsTerminated reports whether the pool shut down and every worker exited.
func (p *Pool) IsTerminated() bool {
	select {
	case <-p.terminated:
		return true
	default:
		return false
	}
}

// AwaitTermination waits until the pool terminates or ctx is done.
func (p *Pool) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a point-in-time snapshot of pool activity.
func (p *Pool) Stats() Stats {
	p.schedMu.Lock()
	scheduled := len(p.scheduled)
	p.schedMu.Unlock()

	return Stats{
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		InFlight:   p.inFlight.Load(),
		Dropped:    p.dropped.Load(),
		QueueDepth: len(p.tasks),
		Scheduled:  scheduled,
		Workers:    p.workers,
	}
}
