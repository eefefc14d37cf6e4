// Package metrics содержит Prometheus-метрики сервиса coursemart.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursemart_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursemart_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	PurchasesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursemart_purchases_created_total",
			Help: "Number of created purchases by payment method and initial status",
		},
		[]string{"method", "status"},
	)

	PurchaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursemart_purchase_transitions_total",
			Help: "Number of committed purchase status transitions",
		},
		[]string{"from", "to"},
	)

	Enrollments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coursemart_enrollments_total",
			Help: "Number of inserted enrollments",
		},
	)

	EventRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursemart_event_registrations_total",
			Help: "Number of event registration attempts by result",
		},
		[]string{"result"},
	)

	NotificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursemart_notification_failures_total",
			Help: "Number of notifications that could not be published",
		},
		[]string{"kind"},
	)
)

// Register регистрирует метрики в реестре по умолчанию.
func Register() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PurchasesCreated,
		PurchaseTransitions,
		Enrollments,
		EventRegistrations,
		NotificationFailures,
	)
}
