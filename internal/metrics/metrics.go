package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotnik",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	holdsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotnik",
			Name:      "holds_created_total",
			Help:      "Holds successfully placed.",
		},
	)

	holdsReleased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotnik",
			Name:      "holds_released_total",
			Help:      "Holds removed, by reason (released, consumed, expired).",
		},
		[]string{"reason"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotnik",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome (created, conflict, capacity, rejected).",
		},
		[]string{"outcome"},
	)

	reaperSweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotnik",
			Name:      "reaper_sweeps_total",
			Help:      "Expiry reaper sweep runs.",
		},
	)

	reaperReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotnik",
			Name:      "reaper_reclaimed_total",
			Help:      "Expired holds reclaimed by the reaper.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			holdsCreated,
			holdsReleased,
			bookings,
			reaperSweeps,
			reaperReclaimed,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncHoldCreated counts a successfully placed hold.
func IncHoldCreated() {
	holdsCreated.Inc()
}

// IncHoldReleased counts a hold removal with its reason.
func IncHoldReleased(reason string) {
	holdsReleased.WithLabelValues(reason).Inc()
}

// IncBooking counts a booking attempt outcome.
func IncBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

// IncReaperSweep counts one reaper pass.
func IncReaperSweep() {
	reaperSweeps.Inc()
}

// AddReaperReclaimed counts holds reclaimed in a pass.
func AddReaperReclaimed(n int) {
	reaperReclaimed.Add(float64(n))
}
