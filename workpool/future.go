package workpool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateCancelled
)

// future is the pool's tracepool.Future.
type future struct {
	state    atomic.Int32
	done     chan struct{}
	val      any
	err      error
	onCancel func()
}

func newFuture(onCancel func()) *future {
	return &future{
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

// start moves a pending future to running. False means it was cancelled.
func (f *future) start() bool {
	return f.state.CompareAndSwap(statePending, stateRunning)
}

func (f *future) complete(v any, err error) {
	f.val, f.err = v, err
	f.state.Store(stateDone)
	close(f.done)
}

func (f *future) Get(ctx context.Context) (any, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.state.Load() == stateCancelled {
		return nil, ErrCancelled
	}
	return f.val, f.err
}

func (f *future) Done() <-chan struct{} {
	return f.done
}

// Cancel cancels a unit that has not started. Running units are not
// interrupted.
func (f *future) Cancel() bool {
	if !f.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	close(f.done)
	if f.onCancel != nil {
		f.onCancel()
	}
	return true
}

func (f *future) IsCancelled() bool {
	return f.state.Load() == stateCancelled
}

func (f *future) IsDone() bool {
	return f.state.Load() >= stateDone
}

// scheduledFuture adds the time of the next run.
type scheduledFuture struct {
	*future
	clock clockz.Clock
	next  atomic.Int64
}

func (s *scheduledFuture) setNext(t time.Time) {
	s.next.Store(t.UnixNano())
}

// Delay returns the time left until the next run; negative when overdue.
func (s *scheduledFuture) Delay() time.Duration {
	return time.Unix(0, s.next.Load()).Sub(s.clock.Now())
}
