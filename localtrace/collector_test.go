package localtrace

import (
	"sync"
	"testing"
	"time"
)

func TestCollectorSyncCollection(t *testing.T) {
	collector := NewSyncCollector("test")
	defer collector.Close()

	if collector.Name() != "test" {
		t.Errorf("Expected name 'test', got %s", collector.Name())
	}

	collector.Collect(&Span{SpanID: "span-1", Name: "op"})

	if collector.Count() != 1 {
		t.Fatalf("Expected 1 span, got %d", collector.Count())
	}
	spans := collector.Export()
	if len(spans) != 1 || spans[0].SpanID != "span-1" {
		t.Errorf("Expected exported span-1, got %v", spans)
	}
	if collector.Count() != 0 {
		t.Errorf("Expected empty collector after Export, got %d", collector.Count())
	}
	if collector.Export() != nil {
		t.Error("Expected nil export from empty collector")
	}
}

func TestCollectorAsyncCollection(t *testing.T) {
	collector := NewCollector("async", 10)
	defer collector.Close()

	for i := 0; i < 5; i++ {
		collector.Collect(&Span{SpanID: "s", Name: "op"})
	}

	deadline := time.Now().Add(time.Second)
	for collector.Count() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if collector.Count() != 5 {
		t.Errorf("Expected 5 spans, got %d", collector.Count())
	}
}

func TestCollectorBackpressure(t *testing.T) {
	collector := NewCollector("small", 1)
	defer collector.Close()

	// Hold the buffer lock so the drain goroutine cannot keep up.
	collector.mu.Lock()
	for i := 0; i < 10; i++ {
		collector.Collect(&Span{SpanID: "s"})
	}
	collector.mu.Unlock()

	if collector.DroppedCount() == 0 {
		t.Error("Expected dropped spans under backpressure")
	}
}

func TestCollectorNilAndClosed(t *testing.T) {
	collector := NewSyncCollector("test")
	collector.Collect(nil)
	if collector.DroppedCount() != 1 {
		t.Errorf("Expected nil span to count as dropped, got %d", collector.DroppedCount())
	}

	collector.Close()
	collector.Close()
	collector.Collect(&Span{SpanID: "late"})
	if collector.Count() != 0 {
		t.Error("Expected closed collector to reject spans")
	}
	if collector.DroppedCount() != 2 {
		t.Errorf("Expected 2 dropped, got %d", collector.DroppedCount())
	}
}

func TestCollectorCopiesTags(t *testing.T) {
	collector := NewSyncCollector("test")
	defer collector.Close()

	span := &Span{SpanID: "tagged", Tags: map[Tag]string{"k": "v"}}
	collector.Collect(span)
	span.Tags["k"] = "changed"

	got := collector.Spans()[0]
	if got.Tags["k"] != "v" {
		t.Errorf("Expected buffered copy to keep 'v', got %s", got.Tags["k"])
	}
}

func TestCollectorFind(t *testing.T) {
	collector := NewSyncCollector("test")
	defer collector.Close()

	collector.Collect(&Span{SpanID: "1", Name: "first"})
	collector.Collect(&Span{SpanID: "2", Name: "second"})

	s, ok := collector.Find("second")
	if !ok || s.SpanID != "2" {
		t.Errorf("Expected to find span 2, got %v (%v)", s, ok)
	}
	if _, ok := collector.Find("third"); ok {
		t.Error("Expected no span named 'third'")
	}
}

func TestCollectorConcurrent(t *testing.T) {
	collector := NewSyncCollector("test")
	defer collector.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				collector.Collect(&Span{SpanID: "c"})
			}
		}()
	}
	wg.Wait()

	if collector.Count() != 100 {
		t.Errorf("Expected 100 spans, got %d", collector.Count())
	}

	collector.Reset()
	if collector.Count() != 0 || collector.DroppedCount() != 0 {
		t.Error("Expected Reset to clear spans and drop count")
	}
}
