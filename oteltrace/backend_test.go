package oteltrace_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/tracepool"
	"github.com/zoobzio/tracepool/oteltrace"
	"github.com/zoobzio/tracepool/workpool"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setup(t *testing.T) (*tracetest.SpanRecorder, trace.Tracer, *oteltrace.Backend) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, tp.Tracer("test"), oteltrace.New(oteltrace.WithTracerProvider(tp))
}

func ended(t *testing.T, sr *tracetest.SpanRecorder, n int) []sdktrace.ReadOnlySpan {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(sr.Ended()) >= n
	}, 5*time.Second, 5*time.Millisecond)
	return sr.Ended()
}

func byName(t *testing.T, spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no ended span named %q", name)
	return nil
}

func TestBackendActiveContext(t *testing.T) {
	_, tracer, b := setup(t)

	assert.Nil(t, b.ActiveContext(context.Background()))

	ctx, span := tracer.Start(context.Background(), "foo")
	defer span.End()
	assert.NotNil(t, b.ActiveContext(ctx))
	assert.Equal(t, tracepool.Capabilities{}, b.Capabilities())
}

func TestBackendActivateRestoresSpan(t *testing.T) {
	_, tracer, b := setup(t)

	ctx, span := tracer.Start(context.Background(), "foo")
	defer span.End()

	actx, scope, err := b.ActiveContext(ctx).Activate(context.Background())
	require.NoError(t, err)
	defer scope.Release()

	assert.Equal(t, span.SpanContext(), trace.SpanContextFromContext(actx))
}

func TestBackendStartSpan(t *testing.T) {
	sr, _, b := setup(t)

	ctx, span := b.StartSpan(context.Background(), "submit")
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
	span.Finish()

	spans := ended(t, sr, 1)
	assert.Equal(t, "submit", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
}

func TestNewUsesGlobalProvider(t *testing.T) {
	b := oteltrace.New()
	assert.Nil(t, b.ActiveContext(context.Background()))
}

func TestPoolPropagatesOtelSpan(t *testing.T) {
	sr, tracer, b := setup(t)
	workers := workpool.New(2)
	t.Cleanup(func() { workers.ShutdownNow() })
	pool := tracepool.NewPool(workers, b)

	ctx, parent := tracer.Start(context.Background(), "foo")
	f, err := pool.Submit(ctx, tracepool.CallableFunc(func(ctx context.Context) (any, error) {
		_, child := tracer.Start(ctx, "childCallable")
		child.End()
		return nil, nil
	}))
	require.NoError(t, err)
	_, err = f.Get(context.Background())
	require.NoError(t, err)
	parent.End()

	spans := ended(t, sr, 2)
	child := byName(t, spans, "childCallable")
	assert.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), child.Parent().SpanID())
}

func TestSchedulerRootSpanOtel(t *testing.T) {
	sr, tracer, b := setup(t)
	workers := workpool.New(2)
	t.Cleanup(func() { workers.ShutdownNow() })
	s := tracepool.NewScheduler(workers, b, tracepool.WithRequireActiveContext(false))

	f, err := s.Schedule(context.Background(), tracepool.RunnableFunc(func(ctx context.Context) error {
		_, child := tracer.Start(ctx, "childRunnable")
		child.End()
		return nil
	}), 10*time.Millisecond)
	require.NoError(t, err)
	_, err = f.Get(context.Background())
	require.NoError(t, err)

	spans := ended(t, sr, 2)
	root := byName(t, spans, tracepool.OpSchedule)
	child := byName(t, spans, "childRunnable")
	assert.False(t, root.Parent().IsValid())
	assert.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())
}
