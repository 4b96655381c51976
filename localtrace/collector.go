package localtrace

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector buffers finished spans for export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []Span
	spansCh      chan Span
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool
}

// NewCollector creates a collector whose channel holds bufferSize spans.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:    name,
		spans:   make([]Span, 0, 8),
		spansCh: make(chan Span, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// NewSyncCollector creates a collector that buffers spans on the finishing
// goroutine. Tests read it without waiting.
func NewSyncCollector(name string) *Collector {
	c := NewCollector(name, 1)
	c.SetSyncMode(true)
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) run() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining spans before shutdown.
			for {
				select {
				case span := <-c.spansCh:
					c.buffer(span)
				default:
					return
				}
			}
		case span := <-c.spansCh:
			c.buffer(span)
		}
	}
}

// Close stops the collector goroutine after draining queued spans.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
}

// Collect buffers a copy of span. In async mode a full channel drops the span
// and increments DroppedCount.
func (c *Collector) Collect(span *Span) {
	if span == nil || c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	cp := copySpan(span)
	if c.syncMode.Load() {
		c.buffer(cp)
		return
	}

	select {
	case c.spansCh <- cp:
	default:
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(span Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, span)
}

// Export returns the buffered spans and clears the buffer.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}
	out := make([]Span, len(c.spans))
	for i := range c.spans {
		out[i] = copySpan(&c.spans[i])
	}
	c.spans = c.spans[:0]
	return out
}

// Spans returns a copy of the buffered spans without clearing them.
func (c *Collector) Spans() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Span, len(c.spans))
	for i := range c.spans {
		out[i] = copySpan(&c.spans[i])
	}
	return out
}

// Find returns the first buffered span named name.
func (c *Collector) Find(name string) (Span, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.spans {
		if c.spans[i].Name == name {
			return copySpan(&c.spans[i]), true
		}
	}
	return Span{}, false
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the number of spans dropped.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode switches between channel and direct buffering.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears buffered spans and the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = c.spans[:0]
	c.droppedCount.Store(0)
}

func copySpan(span *Span) Span {
	cp := *span
	if span.Tags != nil {
		cp.Tags = make(map[Tag]string, len(span.Tags))
		for k, v := range span.Tags {
			cp.Tags[k] = v
		}
	}
	return cp
}
