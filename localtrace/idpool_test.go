package localtrace

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestIDPoolGet(t *testing.T) {
	pool := NewIDPool(10, func() string { return "pooled" })
	defer pool.Close()

	if id := pool.Get(); id != "pooled" {
		t.Errorf("Expected 'pooled', got %s", id)
	}
}

// An empty pool falls back to the factory.
func TestIDPoolEmptyUsesFactory(t *testing.T) {
	var calls atomic.Int64
	pool := NewIDPool(1, func() string {
		calls.Add(1)
		return "direct"
	})
	defer pool.Close()

	for i := 0; i < 5; i++ {
		if id := pool.Get(); id != "direct" {
			t.Errorf("Expected 'direct', got %s", id)
		}
	}
	if calls.Load() < 2 {
		t.Errorf("Expected repeated factory calls, got %d", calls.Load())
	}
}

func TestIDPoolConcurrentGet(t *testing.T) {
	pool := NewIDPool(50, func() string { return "concurrent" })
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if id := pool.Get(); id != "concurrent" {
					t.Errorf("Expected 'concurrent', got %s", id)
				}
			}
		}()
	}
	wg.Wait()
}

func TestIDPoolCloseIdempotent(t *testing.T) {
	pool := NewIDPool(10, func() string { return "closing" })
	pool.Close()
	pool.Close()

	if id := pool.Get(); id != "closing" {
		t.Errorf("Expected Get to keep working after Close, got %s", id)
	}
}
