package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AnomaliesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "accountguard", Name: "anomalies_detected_total", Help: "Number of detected anomalies by log type."},
		[]string{"type"},
	)
	SuspensionExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "accountguard", Name: "suspension_exits_total", Help: "Number of suspension lifecycle exits by trigger."},
		[]string{"trigger"},
	)
	ReconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "accountguard", Name: "reconcile_runs_total", Help: "Number of reconciliation job runs by job and outcome."},
		[]string{"job", "outcome"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "accountguard", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "accountguard", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(AnomaliesDetected)
	reg.MustRegister(SuspensionExits)
	reg.MustRegister(ReconcileRuns)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
