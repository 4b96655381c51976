package tracepool

import "log/slog"

// Option configures a Dispatcher, Pool or Scheduler.
type Option func(*config)

type config struct {
	requireActiveContext bool
	logger               *slog.Logger
	metrics              *Metrics
	spanName             func(op string) string
}

func defaultConfig() config {
	return config{
		requireActiveContext: true,
		logger:               slog.New(slog.DiscardHandler),
		spanName:             func(op string) string { return op },
	}
}

// WithRequireActiveContext selects whether submissions with no active trace
// context are left untraced (true, the default) or get a root span started
// around the submission (false).
func WithRequireActiveContext(require bool) Option {
	return func(c *config) {
		c.requireActiveContext = require
	}
}

// WithLogger sets the logger for dispatch records.
// Panics if l is nil.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("tracepool: WithLogger requires non-nil logger")
	}
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics records dispatch outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithSpanNamer names the root spans started when no context is active.
// fn receives the operation ("execute", "submit", "invokeAll", ...).
// Panics if fn is nil.
func WithSpanNamer(fn func(op string) string) Option {
	if fn == nil {
		panic("tracepool: WithSpanNamer requires non-nil function")
	}
	return func(c *config) {
		c.spanName = fn
	}
}
