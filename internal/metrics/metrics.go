package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	outboxDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "outbox_deliveries_total",
			Help:      "Outbox dispatch attempts by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationsTotal, outboxDeliveriesTotal, httpRequests)
	})
}

// IncReservation counts a reservation attempt outcome
// (reserved, overlap, not_found, invalid, error).
func IncReservation(outcome string) {
	reservationsTotal.WithLabelValues(outcome).Inc()
}

// IncOutboxDelivery counts a dispatch result (delivered, retried, failed, skipped).
func IncOutboxDelivery(result string) {
	outboxDeliveriesTotal.WithLabelValues(result).Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
