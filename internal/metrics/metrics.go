package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for delivery and audit log health
var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matomo_deliveries_total",
			Help: "Total number of order events by delivery outcome",
		},
		[]string{"event_type", "outcome"},
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matomo_delivery_duration_seconds",
			Help:    "Duration of requests to the Matomo collector",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matomo_audit_write_failures_total",
			Help: "Total number of audit log entries that could not be stored",
		},
	)

	AuditPrunedEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matomo_audit_pruned_entries_total",
			Help: "Total number of audit log entries removed by retention",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DeliveriesTotal)
		prometheus.MustRegister(DeliveryDuration)
		prometheus.MustRegister(AuditWriteFailuresTotal)
		prometheus.MustRegister(AuditPrunedEntriesTotal)
		prometheus.MustRegister(HTTPRequestsTotal)
	})
}
