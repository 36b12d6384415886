package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "auditorium"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of booking requests created.",
		},
	)

	bookingUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_updated_total",
			Help:      "Count of booking edits.",
		},
	)

	bookingDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_deleted_total",
			Help:      "Count of deleted bookings.",
		},
	)

	adminDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_decision_total",
			Help:      "Count of admin decisions over bookings by outcome.",
		},
		[]string{"decision", "result"},
	)

	approvedConflicts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "approved_conflicts",
			Help:      "Pairs of overlapping approved bookings found by the last consistency check.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated, bookingUpdated, bookingDeleted,
			adminDecision, approvedConflicts,
			httpRequests, httpDuration,
		)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingUpdated() {
	bookingUpdated.Inc()
}

func IncBookingDeleted() {
	bookingDeleted.Inc()
}

// IncAdminDecision records an approve or reject attempt; result is "ok",
// "conflict", "invalid_state" or "error".
func IncAdminDecision(decision, result string) {
	adminDecision.WithLabelValues(decision, result).Inc()
}

func SetApprovedConflicts(n int) {
	approvedConflicts.Set(float64(n))
}

func ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
