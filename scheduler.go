package tracepool

import (
	"context"
	"time"
)

// Scheduler decorates a ScheduledExecutorService.
//
// Delayed units consume their capture once. Periodic units capture once at
// schedule time and activate and release the capture around every firing; the
// pool discards it when the schedule ends.
type Scheduler struct {
	*Pool
	sched ScheduledExecutorService
}

var _ ScheduledExecutorService = (*Scheduler)(nil)

// NewScheduler decorates svc with trace propagation from b.
func NewScheduler(svc ScheduledExecutorService, b Backend, opts ...Option) *Scheduler {
	return &Scheduler{
		Pool:  NewPool(svc, b, opts...),
		sched: svc,
	}
}

// Schedule runs r once after delay.
func (s *Scheduler) Schedule(ctx context.Context, r Runnable, delay time.Duration) (ScheduledFuture, error) {
	return s.scheduleRunnable(ctx, OpSchedule, r, false, func(u Runnable) (ScheduledFuture, error) {
		return s.sched.Schedule(ctx, u, delay)
	})
}

// ScheduleCallable calls c once after delay.
func (s *Scheduler) ScheduleCallable(ctx context.Context, c Callable, delay time.Duration) (ScheduledFuture, error) {
	return dispatch(s.Dispatcher, ctx, OpSchedule, 1, func(cs []*Captured) (ScheduledFuture, error) {
		if cs[0] == nil {
			return s.sched.ScheduleCallable(ctx, c, delay)
		}
		t := newTracedCallable(c, cs[0])
		f, err := s.sched.ScheduleCallable(ctx, t, delay)
		if err != nil {
			s.reject(t)
		}
		return f, err
	})
}

// ScheduleAtFixedRate runs r repeatedly; every firing runs with the trace
// context captured now.
func (s *Scheduler) ScheduleAtFixedRate(ctx context.Context, r Runnable, initialDelay, period time.Duration) (ScheduledFuture, error) {
	return s.scheduleRunnable(ctx, OpScheduleAtFixedRate, r, true, func(u Runnable) (ScheduledFuture, error) {
		return s.sched.ScheduleAtFixedRate(ctx, u, initialDelay, period)
	})
}

// ScheduleWithFixedDelay runs r repeatedly; every firing runs with the trace
// context captured now.
func (s *Scheduler) ScheduleWithFixedDelay(ctx context.Context, r Runnable, initialDelay, delay time.Duration) (ScheduledFuture, error) {
	return s.scheduleRunnable(ctx, OpScheduleWithFixedDelay, r, true, func(u Runnable) (ScheduledFuture, error) {
		return s.sched.ScheduleWithFixedDelay(ctx, u, initialDelay, delay)
	})
}

func (s *Scheduler) scheduleRunnable(
	ctx context.Context,
	op string,
	r Runnable,
	repeating bool,
	submit func(Runnable) (ScheduledFuture, error),
) (ScheduledFuture, error) {
	return dispatch(s.Dispatcher, ctx, op, 1, func(cs []*Captured) (ScheduledFuture, error) {
		if cs[0] == nil {
			return submit(r)
		}
		t := newTracedRunnable(r, cs[0], repeating)
		f, err := submit(t)
		if err != nil {
			s.reject(t)
		}
		return f, err
	})
}
