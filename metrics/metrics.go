package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loyalty_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_transactions_total",
			Help: "Total number of ledger rows written",
		},
		[]string{"type"},
	)

	PointsCreditedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_points_credited_total",
			Help: "Points added to balances",
		},
		[]string{"type"},
	)

	PointsDebitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_points_debited_total",
			Help: "Points removed from balances",
		},
		[]string{"type"},
	)

	RedemptionsProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_redemptions_processed_total",
			Help: "Total number of redemptions processed",
		},
	)

	SuspicionChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_suspicion_changes_total",
			Help: "Suspicious flag changes on transactions",
		},
		[]string{"value"},
	)

	AuditRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_audit_runs_total",
			Help: "Total number of ledger audits",
		},
		[]string{"result"},
	)

	AuditDriftUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loyalty_audit_drift_users",
			Help: "Users whose balance disagreed with the ledger in the last audit",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTransaction(kind string) {
	TransactionsTotal.WithLabelValues(kind).Inc()
}

// RecordPoints counts a balance change of delta for the given row type.
func RecordPoints(kind string, delta int64) {
	switch {
	case delta > 0:
		PointsCreditedTotal.WithLabelValues(kind).Add(float64(delta))
	case delta < 0:
		PointsDebitedTotal.WithLabelValues(kind).Add(float64(-delta))
	}
}

func RecordRedemptionProcessed() {
	RedemptionsProcessedTotal.Inc()
}

func RecordSuspicionChange(value bool) {
	label := "cleared"
	if value {
		label = "flagged"
	}
	SuspicionChangesTotal.WithLabelValues(label).Inc()
}

func RecordAudit(driftUsers int, err error) {
	if err != nil {
		AuditRunsTotal.WithLabelValues("error").Inc()
		return
	}
	AuditRunsTotal.WithLabelValues("ok").Inc()
	AuditDriftUsers.Set(float64(driftUsers))
}
