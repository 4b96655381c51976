// Package integration exercises tracepool decorators over real pools and
// tracers together.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/tracepool"
	"github.com/zoobzio/tracepool/localtrace"
	"github.com/zoobzio/tracepool/workpool"
)

// SpanTree indexes finished spans by ID for parent-chain assertions.
type SpanTree struct {
	byID map[string]localtrace.Span
	all  []localtrace.Span
}

// NewSpanTree builds a tree from spans.
func NewSpanTree(spans []localtrace.Span) *SpanTree {
	tree := &SpanTree{byID: make(map[string]localtrace.Span, len(spans)), all: spans}
	for _, s := range spans {
		tree.byID[s.SpanID] = s
	}
	return tree
}

// Named returns every span called name.
func (tr *SpanTree) Named(name string) []localtrace.Span {
	var out []localtrace.Span
	for _, s := range tr.all {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Ancestry returns the names from s up to its root, s first. Parents that did
// not finish are reported as "?".
func (tr *SpanTree) Ancestry(s localtrace.Span) []string {
	names := []string{s.Name}
	for s.ParentID != "" {
		parent, ok := tr.byID[s.ParentID]
		if !ok {
			return append(names, "?")
		}
		names = append(names, parent.Name)
		s = parent
	}
	return names
}

// Env is a tracer with a collector, and a pool. Both are torn down with the
// test.
type Env struct {
	Tracer    *localtrace.Tracer
	Collector *localtrace.Collector
	Workers   *workpool.Pool
}

// NewEnv creates an Env with n workers.
func NewEnv(t *testing.T, n int, opts ...localtrace.Option) *Env {
	t.Helper()
	tracer := localtrace.New(opts...)
	collector := localtrace.NewSyncCollector("integration")
	tracer.AddCollector("integration", collector)
	workers := workpool.New(n, workpool.WithQueueSize(n*16))

	t.Cleanup(func() {
		workers.ShutdownNow()
		tracer.Close()
	})
	return &Env{Tracer: tracer, Collector: collector, Workers: workers}
}

// Span returns a runnable that records a span named name.
func (e *Env) Span(name string) tracepool.Runnable {
	return tracepool.RunnableFunc(func(ctx context.Context) error {
		_, span := e.Tracer.StartSpan(ctx, name)
		span.Finish()
		return nil
	})
}

// WaitForSpans waits until expected spans have finished or timeout passes.
func (e *Env) WaitForSpans(expected int, timeout time.Duration) []localtrace.Span {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.Collector.Count() >= expected {
			break
		}
		time.Sleep(time.Millisecond)
	}
	return e.Collector.Spans()
}
