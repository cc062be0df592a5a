// Package metrics содержит Prometheus-метрики сервиса подписок.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitlements_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	EntitlementChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_checks_total",
			Help: "Total number of entitlement checks",
		},
		[]string{"result", "source"},
	)

	GrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_grants_total",
			Help: "Total number of entitlement grants",
		},
		[]string{"plan", "status"},
	)

	ConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_payment_confirmations_total",
			Help: "Total number of payment confirmations by outcome",
		},
		[]string{"outcome"},
	)

	PreAuthorizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_payment_preauthorizations_total",
			Help: "Total number of pre-authorization decisions",
		},
		[]string{"decision"},
	)

	AmountMismatchTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_amount_mismatch_total",
			Help: "Confirmations charged with an amount different from the catalog price",
		},
	)

	RevenueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_revenue_total",
			Help: "Total amount charged in minimal currency units",
		},
		[]string{"plan"},
	)

	ExpiryRemindersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_expiry_reminders_total",
			Help: "Total number of expiry reminders published",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordCheck учитывает проверку подписки; source: cache или store.
func RecordCheck(active bool, source string) {
	result := "inactive"
	if active {
		result = "active"
	}
	EntitlementChecksTotal.WithLabelValues(result, source).Inc()
}

func RecordGrant(plan, status string, amount int64) {
	GrantsTotal.WithLabelValues(plan, status).Inc()
	if status == "granted" {
		RevenueTotal.WithLabelValues(plan).Add(float64(amount))
	}
}

func RecordConfirmation(outcome string) {
	ConfirmationsTotal.WithLabelValues(outcome).Inc()
}

func RecordPreAuthorization(approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	PreAuthorizationsTotal.WithLabelValues(decision).Inc()
}

func RecordAmountMismatch() {
	AmountMismatchTotal.Inc()
}

func RecordExpiryReminders(n int) {
	ExpiryRemindersTotal.Add(float64(n))
}
