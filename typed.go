package tracepool

import (
	"context"
	"fmt"
)

// TypedFuture is a Future whose result has type T.
type TypedFuture[T any] struct {
	Future
}

// Get waits for the result.
func (f *TypedFuture[T]) Get(ctx context.Context) (T, error) {
	v, err := f.Future.Get(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return asType[T](v)
}

// Func adapts a typed function to Callable.
func Func[T any](fn func(ctx context.Context) (T, error)) Callable {
	return CallableFunc(func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
}

// SubmitValue submits fn to svc and returns a typed future.
// With a Pool or Scheduler as svc, fn runs with the trace context of ctx.
func SubmitValue[T any](ctx context.Context, svc ExecutorService, fn func(ctx context.Context) (T, error)) (*TypedFuture[T], error) {
	f, err := svc.Submit(ctx, Func(fn))
	if err != nil {
		return nil, err
	}
	return &TypedFuture[T]{Future: f}, nil
}

// InvokeAllValues runs fns through svc.InvokeAll and returns typed futures in
// input order.
func InvokeAllValues[T any](ctx context.Context, svc ExecutorService, fns []func(ctx context.Context) (T, error)) ([]*TypedFuture[T], error) {
	fs, err := svc.InvokeAll(ctx, funcs(fns))
	if err != nil {
		return nil, err
	}
	out := make([]*TypedFuture[T], len(fs))
	for i, f := range fs {
		out[i] = &TypedFuture[T]{Future: f}
	}
	return out, nil
}

// InvokeAnyValue runs fns through svc.InvokeAny.
func InvokeAnyValue[T any](ctx context.Context, svc ExecutorService, fns []func(ctx context.Context) (T, error)) (T, error) {
	v, err := svc.InvokeAny(ctx, funcs(fns))
	if err != nil {
		var zero T
		return zero, err
	}
	return asType[T](v)
}

func funcs[T any](fns []func(ctx context.Context) (T, error)) []Callable {
	cs := make([]Callable, len(fns))
	for i, fn := range fns {
		cs[i] = Func(fn)
	}
	return cs
}

func asType[T any](v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("tracepool: result has type %T, want %T", v, zero)
	}
	return t, nil
}
