package workpool

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zoobzio/tracepool"
)

// Schedule runs r once after delay.
func (p *Pool) Schedule(_ context.Context, r tracepool.Runnable, delay time.Duration) (tracepool.ScheduledFuture, error) {
	return p.scheduleOnce(r, runnableFunc(r, nil), delay)
}

// ScheduleCallable calls c once after delay.
func (p *Pool) ScheduleCallable(_ context.Context, c tracepool.Callable, delay time.Duration) (tracepool.ScheduledFuture, error) {
	return p.scheduleOnce(c, c.Call, delay)
}

// ScheduleAtFixedRate runs r first after initialDelay, then every period
// measured from the previous scheduled start. A run that overruns its period
// delays the next one; runs never overlap.
func (p *Pool) ScheduleAtFixedRate(_ context.Context, r tracepool.Runnable, initialDelay, period time.Duration) (tracepool.ScheduledFuture, error) {
	return p.schedulePeriodic(r, tracepool.OpScheduleAtFixedRate, initialDelay, period, true)
}

// ScheduleWithFixedDelay runs r first after initialDelay, then delay after
// each run completes.
func (p *Pool) ScheduleWithFixedDelay(_ context.Context, r tracepool.Runnable, initialDelay, delay time.Duration) (tracepool.ScheduledFuture, error) {
	return p.schedulePeriodic(r, tracepool.OpScheduleWithFixedDelay, initialDelay, delay, false)
}

func (p *Pool) newScheduled(onCancel func()) *scheduledFuture {
	return &scheduledFuture{future: newFuture(onCancel), clock: p.clock}
}

func (p *Pool) scheduleOnce(unit any, fn func(ctx context.Context) (any, error), delay time.Duration) (tracepool.ScheduledFuture, error) {
	if p.closed.Load() {
		discardUnit(unit)
		return nil, ErrPoolClosed
	}

	j := &job{fn: fn, unit: unit, op: tracepool.OpSchedule}
	s := p.newScheduled(j.discard)
	j.future = s.future
	s.setNext(p.clock.Now().Add(delay))
	p.track(s)

	go func() {
		defer p.untrack(s)
		if !p.sleepUntil(delay, s.done) {
			return
		}
		if err := p.enqueue(context.Background(), j); err != nil {
			s.Cancel()
		}
	}()

	return s, nil
}

func (p *Pool) schedulePeriodic(r tracepool.Runnable, op string, initialDelay, period time.Duration, fixedRate bool) (tracepool.ScheduledFuture, error) {
	if period <= 0 {
		discardUnit(r)
		return nil, ErrInvalidPeriod
	}
	if p.closed.Load() {
		discardUnit(r)
		return nil, ErrPoolClosed
	}

	// The unit is discarded when the loop exits, after any in-flight firing.
	s := p.newScheduled(nil)
	next := p.clock.Now().Add(initialDelay)
	s.setNext(next)
	p.track(s)

	go func() {
		defer discardUnit(r)
		defer p.untrack(s)

		for {
			if !p.sleepUntil(next.Sub(p.clock.Now()), s.done) {
				return
			}

			err := p.fire(r, op, s.done)
			if errors.Is(err, ErrPoolClosed) {
				s.Cancel()
				return
			}
			if err != nil {
				p.logger.Warn("periodic unit failed",
					slog.String("op", op),
					slog.Any("error", err))
			}

			if fixedRate {
				next = next.Add(period)
			} else {
				next = p.clock.Now().Add(period)
			}
			s.setNext(next)
		}
	}()

	return s, nil
}

// fire queues one run of r and waits for it. A firing still queued when done
// closes is skipped.
func (p *Pool) fire(r tracepool.Runnable, op string, done <-chan struct{}) error {
	run := runnableFunc(r, nil)
	result := make(chan error, 1)
	j := &job{
		fn: func(ctx context.Context) (any, error) {
			select {
			case <-done:
				return nil, nil
			default:
			}
			return run(ctx)
		},
		op: op,
		onDone: func(_ any, err error) {
			result <- err
		},
	}
	if err := p.enqueue(context.Background(), j); err != nil {
		return err
	}

	err := <-result
	if errors.Is(err, ErrCancelled) {
		return ErrPoolClosed
	}
	return err
}

// sleepUntil waits d on the pool clock. False means done closed first.
func (p *Pool) sleepUntil(d time.Duration, done <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	select {
	case <-p.clock.After(d):
		select {
		case <-done:
			return false
		default:
			return true
		}
	case <-done:
		return false
	}
}

func (p *Pool) track(s *scheduledFuture) {
	p.schedMu.Lock()
	defer p.schedMu.Unlock()
	p.scheduled[s] = struct{}{}
}

func (p *Pool) untrack(s *scheduledFuture) {
	p.schedMu.Lock()
	defer p.schedMu.Unlock()
	delete(p.scheduled, s)
}

// cancelScheduled ends every schedule that has not started its unit.
func (p *Pool) cancelScheduled() int {
	p.schedMu.Lock()
	pending := make([]*scheduledFuture, 0, len(p.scheduled))
	for s := range p.scheduled {
		pending = append(pending, s)
	}
	p.schedMu.Unlock()

	n := 0
	for _, s := range pending {
		if s.Cancel() {
			n++
		}
	}
	return n
}
