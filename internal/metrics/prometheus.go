package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinkSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitbridge_link_sessions_total",
			Help: "Total identity-link handshakes by terminal outcome",
		},
		[]string{"outcome"},
	)

	SyncDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitbridge_sync_dispatches_total",
			Help: "Total refresh dispatch requests by result",
		},
		[]string{"result"},
	)

	ReconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitbridge_reconcile_runs_total",
			Help: "Total per-tenant reconciliation runs by result",
		},
		[]string{"result"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gitbridge_reconcile_duration_seconds",
			Help:    "Wall time of one tenant reconciliation",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	RoleChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitbridge_role_changes_total",
			Help: "Total role grants and revocations applied",
		},
		[]string{"action"},
	)

	DuplicateCategories = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gitbridge_duplicate_categories_deleted_total",
			Help: "Duplicate stats categories collapsed by the reconciler",
		},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(
		LinkSessions,
		SyncDispatches,
		ReconcileRuns,
		ReconcileDuration,
		RoleChanges,
		DuplicateCategories,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
