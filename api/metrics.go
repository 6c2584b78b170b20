/*
metrics.go - Prometheus instrumentation for the escalation sweeper

PURPOSE:
  Counts sweep outcomes and tracks sweep duration. Exposed on /metrics via
  the promhttp handler registered in server.go.
*/
package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/leave-engine/workflow"
)

// Metrics holds the sweep instrumentation.
type Metrics struct {
	Escalated    prometheus.Counter
	AutoApproved prometheus.Counter
	Skipped      prometheus.Counter
	Errors       prometheus.Counter
	Duration     prometheus.Histogram
}

// NewMetrics creates and registers the sweep metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Escalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leave_escalations_total",
			Help: "Approvals escalated to the next chain level.",
		}),
		AutoApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leave_auto_approvals_total",
			Help: "Requests auto-approved after the escalation chain was exhausted.",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leave_escalation_skips_total",
			Help: "Stale approvals skipped (already decided, closed or concurrent).",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leave_escalation_errors_total",
			Help: "Escalation attempts that failed with an error.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leave_sweep_duration_seconds",
			Help:    "Duration of escalation sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.Escalated, m.AutoApproved, m.Skipped, m.Errors, m.Duration)
	return m
}

// RecordSweep records one sweep's outcome counts and duration.
func (m *Metrics) RecordSweep(result workflow.SweepResult, elapsed time.Duration) {
	m.Escalated.Add(float64(result.Escalated))
	m.AutoApproved.Add(float64(result.AutoApproved))
	m.Skipped.Add(float64(result.Skipped))
	m.Errors.Add(float64(result.Errors))
	if elapsed > 0 {
		m.Duration.Observe(elapsed.Seconds())
	}
}
