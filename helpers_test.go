package tracepool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/tracepool"
	"github.com/zoobzio/tracepool/localtrace"
	"github.com/zoobzio/tracepool/workpool"
)

const numberOfWorkers = 4

// harness is a local tracer whose finished spans land in a sync collector,
// and a worker pool.
type harness struct {
	tracer  *localtrace.Tracer
	spans   *localtrace.Collector
	workers *workpool.Pool
}

func newHarness(t *testing.T, opts ...localtrace.Option) *harness {
	t.Helper()

	tracer := localtrace.New(opts...)
	spans := localtrace.NewSyncCollector("finished")
	tracer.AddCollector("finished", spans)
	workers := workpool.New(numberOfWorkers)

	t.Cleanup(func() {
		workers.ShutdownNow()
		tracer.Close()
	})

	return &harness{tracer: tracer, spans: spans, workers: workers}
}

func (h *harness) backend() tracepool.Backend {
	return h.tracer.Backend()
}

// child returns a runnable that starts and finishes a span named name.
func (h *harness) child(name string) tracepool.Runnable {
	return tracepool.RunnableFunc(func(ctx context.Context) error {
		_, span := h.tracer.StartSpan(ctx, name)
		span.Finish()
		return nil
	})
}

// childCallable is child returning v.
func (h *harness) childCallable(name string, v any) tracepool.Callable {
	return tracepool.CallableFunc(func(ctx context.Context) (any, error) {
		_, span := h.tracer.StartSpan(ctx, name)
		span.Finish()
		return v, nil
	})
}

// waitSpans waits until n spans have finished and returns them.
func (h *harness) waitSpans(t *testing.T, n int) []localtrace.Span {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.spans.Count() >= n
	}, 5*time.Second, 5*time.Millisecond, "expected %d finished spans", n)
	return h.spans.Spans()
}

// assertParent checks every finished span other than the parent itself is a
// child of parent; a nil parent means every span must be a root.
func assertParent(t *testing.T, spans []localtrace.Span, parent *localtrace.ActiveSpan) {
	t.Helper()
	for _, s := range spans {
		if parent != nil && s.SpanID == parent.SpanID() {
			continue
		}
		if parent == nil {
			assert.Empty(t, s.ParentID, "span %s should be a root", s.Name)
			continue
		}
		assert.Equal(t, parent.TraceID(), s.TraceID, "span %s trace", s.Name)
		assert.Equal(t, parent.SpanID(), s.ParentID, "span %s parent", s.Name)
	}
}

func findSpan(t *testing.T, spans []localtrace.Span, name string) localtrace.Span {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no finished span named %q", name)
	return localtrace.Span{}
}

func countSpans(spans []localtrace.Span, name string) int {
	n := 0
	for _, s := range spans {
		if s.Name == name {
			n++
		}
	}
	return n
}
