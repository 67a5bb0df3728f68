// Package metrics holds the hub's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "impacthub"

var (
	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_created_total", Help: "Notifications written, by type."},
		[]string{"type"},
	)
	NotificationWriteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notification_write_errors_total", Help: "Rejected notification writes, by operation."},
		[]string{"op"},
	)
	NotificationDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notification_deliveries_total", Help: "Out-of-band delivery attempts, by result (sent, failed)."},
		[]string{"result"},
	)
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "login_attempts_total", Help: "Sign-in attempts, by method and result."},
		[]string{"method", "result"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	FunctionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "function_calls_total", Help: "Callable function invocations served, by name and status."},
		[]string{"name", "status"},
	)
)

// RegisterCollectors registers every hub collector on reg. activeEngines,
// when non-nil, reports the number of live session engines.
func RegisterCollectors(reg prometheus.Registerer, activeEngines func() int) {
	reg.MustRegister(NotificationsCreated)
	reg.MustRegister(NotificationWriteErrors)
	reg.MustRegister(NotificationDeliveries)
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(FunctionCalls)
	if activeEngines != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Name: "session_engines_active", Help: "Browser sessions with a live session engine."},
			func() float64 { return float64(activeEngines()) },
		))
	}
}
