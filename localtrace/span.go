package localtrace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

// spanKeyType is a private type for context keys to avoid collisions.
type spanKeyType struct{}

var spanKey spanKeyType

// Span is the recorded form of a finished (or in-flight) unit of work.
// Spans are NOT thread-safe - do not modify from multiple goroutines.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[Tag]string `json:"tags,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time,omitempty"`
	Duration  time.Duration  `json:"duration"`
	TraceID   string         `json:"trace_id"`
	SpanID    string         `json:"span_id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Name      string         `json:"name"`
}

// ActiveSpan wraps a Span with thread-safe tag operations and lifecycle
// management. Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	span        *Span
	tracer      *Tracer
	refs        atomic.Int64
	creatorDone atomic.Bool
	mu          sync.Mutex // Protects span fields from concurrent writes.
}

// SetTag adds a key-value pair to the span.
// No-op if span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.span.EndTime.IsZero() {
		return
	}
	if a.span.Tags == nil {
		a.span.Tags = make(map[Tag]string)
	}
	a.span.Tags[key] = value
}

// Finish ends the creator's use of the span. Without reference counting the
// span is recorded immediately; with it, the span is recorded once every
// capture has been released too.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	if !a.creatorDone.CompareAndSwap(false, true) {
		return
	}
	if a.tracer.refCounted {
		a.release()
		return
	}
	a.end()
}

// Finished reports whether the span has been recorded.
func (a *ActiveSpan) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.span.EndTime.IsZero()
}

func (a *ActiveSpan) retain() {
	a.refs.Add(1)
}

func (a *ActiveSpan) release() {
	if a.refs.Add(-1) == 0 {
		a.end()
	}
}

// end records the span exactly once.
func (a *ActiveSpan) end() {
	a.mu.Lock()
	if !a.span.EndTime.IsZero() {
		a.mu.Unlock()
		return
	}
	a.span.EndTime = a.tracer.clock.Now()
	a.span.Duration = a.span.EndTime.Sub(a.span.StartTime)
	a.mu.Unlock()

	a.tracer.collectSpan(a.span)
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.SpanID
}

// Name returns the operation name of this span.
func (a *ActiveSpan) Name() string {
	return a.span.Name
}

// Context returns parent with this span embedded.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	return context.WithValue(parent, spanKey, a)
}

// GetSpan extracts the current span from a context.
// Returns nil if no span is present.
func GetSpan(ctx context.Context) *Span {
	if a := getActive(ctx); a != nil {
		return a.span
	}
	return nil
}

// GetActiveSpan extracts the current ActiveSpan from a context.
// Returns nil if no span is present.
func GetActiveSpan(ctx context.Context) *ActiveSpan {
	return getActive(ctx)
}

func getActive(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(spanKey).(*ActiveSpan)
	return a
}
