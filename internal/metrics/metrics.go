// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// mutationsTotal counts accepted and rejected mutations by action
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealdesk_mutations_total",
		Help: "Version mutations by action and outcome",
	}, []string{"action", "outcome"})

	// conflictsTotal counts optimistic concurrency losses by action
	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealdesk_conflicts_total",
		Help: "Mutations rejected with a revision conflict",
	}, []string{"action"})

	auditSpooledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_audit_spooled_total",
		Help: "Audit entries diverted to the retry spool",
	})

	auditReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_audit_replayed_total",
		Help: "Spooled audit entries written back to the database",
	})

	mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealdesk_mutation_duration_seconds",
		Help:    "Mutation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"action"})
)

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeConflict   = "conflict"
	OutcomeValidation = "validation"
	OutcomeNotFound   = "not_found"
	OutcomeError      = "error"
)

func ObserveMutation(action, outcome string, seconds float64) {
	mutationsTotal.WithLabelValues(action, outcome).Inc()
	mutationDuration.WithLabelValues(action).Observe(seconds)
	if outcome == OutcomeConflict {
		conflictsTotal.WithLabelValues(action).Inc()
	}
}

func AuditSpooled() { auditSpooledTotal.Inc() }

func AuditReplayed(n int) { auditReplayedTotal.Add(float64(n)) }

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
