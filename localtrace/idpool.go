package localtrace

import "sync"

// IDPool keeps pre-generated IDs so span creation does not wait on
// crypto/rand.
type IDPool struct {
	factory   func() string
	ids       chan string
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewIDPool creates a pool holding up to capacity IDs from factory and starts
// its refill goroutine.
func NewIDPool(capacity int, factory func() string) *IDPool {
	p := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go p.refill()
	return p
}

// Get returns a pooled ID, or a fresh one when the pool is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

func (p *IDPool) refill() {
	for {
		id := p.factory()
		select {
		case p.ids <- id:
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine. Get keeps working.
func (p *IDPool) Close() {
	p.closeOnce.Do(func() {
		close(p.stopCh)
	})
}
