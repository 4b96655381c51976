package tracepool

import "github.com/prometheus/client_golang/prometheus"

// Dispatch outcomes recorded by Metrics.
const (
	OutcomePropagated  = "propagated"
	OutcomeSynthesized = "synthesized"
	OutcomeUntraced    = "untraced"
)

// Metrics counts decorated submissions.
type Metrics struct {
	dispatches       *prometheus.CounterVec
	wrapped          prometheus.Counter
	captureFailures  prometheus.Counter
	rejectedDiscards prometheus.Counter
}

// NewMetrics creates the tracepool collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracepool",
			Name:      "dispatches_total",
			Help:      "Decorated submission calls by operation and trace outcome.",
		}, []string{"op", "outcome"}),
		wrapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracepool",
			Name:      "wrapped_units_total",
			Help:      "Units wrapped with a captured trace context.",
		}),
		captureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracepool",
			Name:      "capture_failures_total",
			Help:      "Submissions that failed because the trace context could not be captured.",
		}),
		rejectedDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracepool",
			Name:      "rejected_discards_total",
			Help:      "Wrapped units discarded unrun because the pool returned an error for their submission.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.dispatches, m.wrapped, m.captureFailures, m.rejectedDiscards)
	}
	return m
}

// Dispatches returns the counter for op and outcome.
func (m *Metrics) Dispatches(op, outcome string) prometheus.Counter {
	return m.dispatches.WithLabelValues(op, outcome)
}

// Wrapped returns the wrapped-units counter.
func (m *Metrics) Wrapped() prometheus.Counter { return m.wrapped }

// CaptureFailures returns the capture-failures counter.
func (m *Metrics) CaptureFailures() prometheus.Counter { return m.captureFailures }

// RejectedDiscards returns the rejected-discards counter.
func (m *Metrics) RejectedDiscards() prometheus.Counter { return m.rejectedDiscards }

func (m *Metrics) dispatch(op, outcome string) {
	if m != nil {
		m.dispatches.WithLabelValues(op, outcome).Inc()
	}
}

func (m *Metrics) wrap(n int) {
	if m != nil {
		m.wrapped.Add(float64(n))
	}
}

func (m *Metrics) captureFailed() {
	if m != nil {
		m.captureFailures.Inc()
	}
}

func (m *Metrics) rejected(n int) {
	if m != nil && n > 0 {
		m.rejectedDiscards.Add(float64(n))
	}
}
