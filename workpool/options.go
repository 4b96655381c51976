package workpool

import (
	"context"
	"log/slog"

	"github.com/zoobzio/clockz"
)

// Option configures a Pool.
type Option func(*config)

type config struct {
	queueSize int
	clock     clockz.Clock
	logger    *slog.Logger
	ctx       context.Context
}

func defaultConfig(n int) config {
	return config{
		queueSize: n * 2,
		clock:     clockz.RealClock,
		logger:    slog.New(slog.DiscardHandler),
		ctx:       context.Background(),
	}
}

// WithQueueSize sets the task queue buffer size. Default is n * 2.
func WithQueueSize(size int) Option {
	if size < 0 {
		panic("workpool: WithQueueSize requires non-negative size")
	}
	return func(c *config) {
		c.queueSize = size
	}
}

// WithClock sets the clock for delays, periods and timeouts.
func WithClock(clock clockz.Clock) Option {
	if clock == nil {
		panic("workpool: WithClock requires non-nil clock")
	}
	return func(c *config) {
		c.clock = clock
	}
}

// WithLogger sets the logger for failed fire-and-forget and periodic units.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("workpool: WithLogger requires non-nil logger")
	}
	return func(c *config) {
		c.logger = l
	}
}

// WithContext sets the parent of the context units run with. Cancelling it
// stops the pool as ShutdownNow does for running units.
func WithContext(ctx context.Context) Option {
	if ctx == nil {
		panic("workpool: WithContext requires non-nil context")
	}
	return func(c *config) {
		c.ctx = ctx
	}
}
