package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded per tool call.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
	OutcomeUnknown = "unknown"
	OutcomePanic   = "panic"
)

// unknownToolLabel keeps client-chosen names out of the label space.
const unknownToolLabel = "_unknown"

type metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastly_mcp_tool_calls_total",
				Help: "Total number of tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fastly_mcp_tool_call_duration_seconds",
				Help:    "Duration of tool calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

func (m *metrics) observe(tool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(tool, outcome).Inc()
	m.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}
