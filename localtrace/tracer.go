// Package localtrace is an in-process tracer that implements
// tracepool.Backend.
//
// Spans are linked through context.Context: a span started from a context
// that carries a span becomes its child and inherits its trace ID. Finished
// spans go to registered Collectors and handlers.
//
// Reference Counting:
//
// A tracer built WithRefCounting keeps a span open while work that captured it
// is pending. Finish only drops the creator's reference; the span ends when
// the last continuation and activation are released. This is the behavior
// needed when a request span must cover work it handed to a pool.
//
// Basic Usage:
//
//	tracer := localtrace.New()
//	defer tracer.Close()
//
//	collector := localtrace.NewCollector("spans", 1000)
//	tracer.AddCollector("spans", collector)
//
//	ctx, span := tracer.StartSpan(ctx, "operation")
//	defer span.Finish()
package localtrace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

// SpanHandler is called when a span finishes.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
}

// Tracer manages span lifecycle and collection.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	collectors   map[string]*Collector
	panicHook    func(handlerID uint64, r interface{})
	traceIDPool  *IDPool
	spanIDPool   *IDPool
	clock        clockz.Clock
	handlersLock sync.RWMutex
	idPoolOnce   sync.Once
	nextID       atomic.Uint64
	refCounted   bool
	scopes       scopeCounters
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	if clock == nil {
		panic("localtrace: WithClock requires non-nil clock")
	}
	return func(t *Tracer) {
		t.clock = clock
	}
}

// WithRefCounting makes spans stay open until every capture of them has been
// released.
func WithRefCounting() Option {
	return func(t *Tracer) {
		t.refCounted = true
	}
}

// New creates a tracer. Uses the real clock unless WithClock is given.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		handlers:   make([]handlerEntry, 0),
		collectors: make(map[string]*Collector),
		clock:      clockz.RealClock,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ensureIDPools initializes ID pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		poolSize := runtime.NumCPU() * 100
		t.traceIDPool = NewIDPool(poolSize, t.randomID(16, time.RFC3339Nano))
		t.spanIDPool = NewIDPool(poolSize, t.randomID(8, "15:04:05.000000"))
	})
}

// randomID returns a factory of hex IDs of n random bytes. If crypto/rand
// fails the ID is derived from the clock.
func (t *Tracer) randomID(n int, fallbackLayout string) func() string {
	return func() string {
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			return hex.EncodeToString([]byte(t.clock.Now().Format(fallbackLayout)))
		}
		return hex.EncodeToString(b)
	}
}

// AddCollector registers a collector for finished spans under name,
// replacing any collector already registered under it.
func (t *Tracer) AddCollector(name string, c *Collector) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.collectors[name] = c
}

// OnSpanComplete registers a handler called synchronously when spans finish.
// Returns an ID for RemoveHandler, or 0 if handler is nil.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{id: id, handler: handler})
	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	for i, h := range t.handlers {
		if h.id == id {
			t.handlers = append(t.handlers[:i], t.handlers[i+1:]...)
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.panicHook = hook
}

// StartSpan creates a span. If ctx carries a span, the new span is its child.
func (t *Tracer) StartSpan(ctx context.Context, operation Key) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}

	t.ensureIDPools()
	span := &Span{
		SpanID:    t.spanIDPool.Get(),
		Name:      operation,
		StartTime: t.clock.Now(),
	}

	if parent := GetSpan(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = t.traceIDPool.Get()
	}

	active := &ActiveSpan{span: span, tracer: t}
	active.refs.Store(1)

	return active.Context(ctx), active
}

// RefCounted reports whether the tracer was built WithRefCounting.
func (t *Tracer) RefCounted() bool {
	return t.refCounted
}

// ScopeStats returns counts of captures and activations so far.
func (t *Tracer) ScopeStats() ScopeStats {
	return t.scopes.snapshot()
}

// collectSpan hands a finished span to collectors and handlers.
func (t *Tracer) collectSpan(span *Span) {
	t.handlersLock.RLock()
	collectors := make([]*Collector, 0, len(t.collectors))
	for _, c := range t.collectors {
		collectors = append(collectors, c)
	}
	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	hook := t.panicHook
	t.handlersLock.RUnlock()

	for _, c := range collectors {
		c.Collect(span)
	}
	for _, h := range handlers {
		safeCall(h, *span, hook)
	}
}

func safeCall(entry handlerEntry, span Span, hook func(uint64, interface{})) {
	defer func() {
		if r := recover(); r != nil && hook != nil {
			hook(entry.id, r)
		}
	}()
	entry.handler(span)
}

// Reset clears every registered collector's buffer.
func (t *Tracer) Reset() {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	for _, c := range t.collectors {
		c.Reset()
	}
	t.scopes.reset()
}

// Close removes handlers, closes collectors and stops the ID pools.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	collectors := t.collectors
	t.handlers = nil
	t.collectors = make(map[string]*Collector)
	t.handlersLock.Unlock()

	for _, c := range collectors {
		c.Close()
	}

	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.spanIDPool != nil {
		t.spanIDPool.Close()
	}
}
