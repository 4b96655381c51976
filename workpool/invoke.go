package workpool

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/tracepool"
)

// InvokeAll runs every unit and waits until all have completed. Futures are
// in input order. If ctx is done first, unfinished units are cancelled and
// ctx.Err() is returned.
func (p *Pool) InvokeAll(ctx context.Context, cs []tracepool.Callable) ([]tracepool.Future, error) {
	return p.invokeAll(ctx, cs, nil)
}

// InvokeAllTimeout is InvokeAll where units not finished after timeout are
// cancelled. The futures are still returned; cancelled ones report
// ErrCancelled.
func (p *Pool) InvokeAllTimeout(ctx context.Context, cs []tracepool.Callable, timeout time.Duration) ([]tracepool.Future, error) {
	return p.invokeAll(ctx, cs, p.clock.After(timeout))
}

func (p *Pool) invokeAll(ctx context.Context, cs []tracepool.Callable, deadline <-chan time.Time) ([]tracepool.Future, error) {
	fs, err := p.submitAll(ctx, cs)
	if err != nil {
		return nil, err
	}

	out := make([]tracepool.Future, len(fs))
	for i, f := range fs {
		out[i] = f
	}

	for i, f := range fs {
		select {
		case <-f.done:
		case <-ctx.Done():
			cancelAll(fs[i:])
			return nil, ctx.Err()
		case <-deadline:
			cancelAll(fs[i:])
			return out, nil
		}
	}
	return out, nil
}

// InvokeAny returns the result of the first unit to succeed and cancels the
// others. If every unit fails the error wraps ErrAllFailed and the last
// failure.
func (p *Pool) InvokeAny(ctx context.Context, cs []tracepool.Callable) (any, error) {
	return p.invokeAny(ctx, cs, nil)
}

// InvokeAnyTimeout is InvokeAny returning ErrTimeout when no unit succeeded
// within timeout.
func (p *Pool) InvokeAnyTimeout(ctx context.Context, cs []tracepool.Callable, timeout time.Duration) (any, error) {
	return p.invokeAny(ctx, cs, p.clock.After(timeout))
}

type outcome struct {
	val any
	err error
}

func (p *Pool) invokeAny(ctx context.Context, cs []tracepool.Callable, deadline <-chan time.Time) (any, error) {
	if len(cs) == 0 {
		return nil, ErrNoUnits
	}

	fs, err := p.submitAll(ctx, cs)
	if err != nil {
		return nil, err
	}

	results := make(chan outcome, len(fs))
	for _, f := range fs {
		go func(f *future) {
			<-f.done
			v, err := f.Get(context.Background())
			results <- outcome{val: v, err: err}
		}(f)
	}

	var last error
	for range fs {
		select {
		case r := <-results:
			if r.err == nil {
				cancelAll(fs)
				return r.val, nil
			}
			last = r.err
		case <-ctx.Done():
			cancelAll(fs)
			return nil, ctx.Err()
		case <-deadline:
			cancelAll(fs)
			return nil, ErrTimeout
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, last)
}

// submitAll queues cs in order. On failure the queued units are cancelled and
// the rest discarded.
func (p *Pool) submitAll(ctx context.Context, cs []tracepool.Callable) ([]*future, error) {
	fs := make([]*future, 0, len(cs))
	for i, c := range cs {
		f, err := p.submitCallable(ctx, c)
		if err != nil {
			cancelAll(fs)
			for _, rest := range cs[i+1:] {
				discardUnit(rest)
			}
			return nil, err
		}
		fs = append(fs, f)
	}
	return fs, nil
}

func cancelAll(fs []*future) {
	for _, f := range fs {
		f.Cancel()
	}
}
