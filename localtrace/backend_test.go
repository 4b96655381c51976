package localtrace

import (
	"context"
	"testing"

	"github.com/zoobzio/tracepool"
)

func TestBackendActiveContext(t *testing.T) {
	tracer := New()
	defer tracer.Close()
	b := tracer.Backend()

	if b.ActiveContext(context.Background()) != nil {
		t.Error("Expected no active context without a span")
	}

	ctx, _ := tracer.StartSpan(context.Background(), "op")
	if b.ActiveContext(ctx) == nil {
		t.Error("Expected active context from span context")
	}

	caps := b.Capabilities()
	if !caps.DetachedContinuations || caps.RefCounted {
		t.Errorf("Unexpected capabilities %+v", caps)
	}
}

func TestBackendStartSpan(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	collector := NewSyncCollector("spans")
	tracer.AddCollector("spans", collector)

	ctx, span := tracer.Backend().StartSpan(context.Background(), "root")
	if GetActiveSpan(ctx) == nil {
		t.Fatal("Expected span on returned context")
	}

	actx, scope, err := span.Context().Activate(context.Background())
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	_, child := tracer.StartSpan(actx, "child")
	child.Finish()
	scope.Release()
	span.Finish()

	root, ok := collector.Find("root")
	if !ok {
		t.Fatal("Expected root span recorded")
	}
	got, _ := collector.Find("child")
	if got.ParentID != root.SpanID {
		t.Errorf("Expected child of root, got parent %s", got.ParentID)
	}
}

func TestContinuationKeepsRefCountedSpanOpen(t *testing.T) {
	tracer := New(WithRefCounting())
	defer tracer.Close()

	collector := NewSyncCollector("spans")
	tracer.AddCollector("spans", collector)

	ctx, span := tracer.StartSpan(context.Background(), "parent")
	tc := tracer.Backend().ActiveContext(ctx)
	capturer, ok := tc.(tracepool.Capturer)
	if !ok {
		t.Fatal("Expected trace context to support capture")
	}
	cont, err := capturer.Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	span.Finish()
	if collector.Count() != 0 {
		t.Fatal("Expected captured span to stay open")
	}

	_, scope, err := cont.Activate(context.Background())
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	cont.Discard()
	cont.Discard()
	if collector.Count() != 0 {
		t.Fatal("Expected active scope to keep span open")
	}

	scope.Release()
	scope.Release()
	if collector.Count() != 1 {
		t.Errorf("Expected span recorded after last release, got %d", collector.Count())
	}

	stats := tracer.ScopeStats()
	want := ScopeStats{Captured: 1, Discarded: 1, Activated: 1, Released: 1}
	if stats != want {
		t.Errorf("Expected %+v, got %+v", want, stats)
	}
}

func TestContinuationWithoutRefCounting(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	collector := NewSyncCollector("spans")
	tracer.AddCollector("spans", collector)

	ctx, span := tracer.StartSpan(context.Background(), "parent")
	cont, err := tracer.Backend().ActiveContext(ctx).(tracepool.Capturer).Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	span.Finish()
	if collector.Count() != 1 {
		t.Fatal("Expected Finish to record immediately")
	}

	// A finished span can still parent late work.
	actx, scope, err := cont.Activate(context.Background())
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	_, child := tracer.StartSpan(actx, "late")
	child.Finish()
	scope.Release()
	cont.Discard()

	late, _ := collector.Find("late")
	if late.ParentID != span.SpanID() {
		t.Errorf("Expected late child of parent, got %s", late.ParentID)
	}
}
