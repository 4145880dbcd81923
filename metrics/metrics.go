package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed The total number of processed messages (counter)
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processed_total",
			Help:      "The total number of processed messages",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingFailed total number of message processing failures (counter)
	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of message processing failures",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingDuration The total time spent processing messages (summary with quantiles 0.5, 0.9, and 0.99)
	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The total time spent processing messages",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"topic", "handler"},
	)
)

var (
	BookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "created_total",
			Help:      "The total number of created bookings",
		},
	)

	BookingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "rejected_total",
			Help:      "The total number of rejected booking requests",
		},
		[]string{"reason"},
	)

	// BookingTransitions counts lifecycle events observed on the bus
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "transitions_total",
			Help:      "The total number of booking status transitions",
		},
		[]string{"status"},
	)

	TicketsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "tickets_released_total",
			Help:      "The total number of tickets returned to inventory",
		},
	)

	ExpiredBookingsSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "expired_swept_total",
			Help:      "The total number of stale pending bookings handled by the expiration sweep",
		},
		[]string{"result"},
	)

	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remote",
			Name:      "calls_total",
			Help:      "The total number of calls to remote services",
		},
		[]string{"service", "operation", "outcome"},
	)
)
