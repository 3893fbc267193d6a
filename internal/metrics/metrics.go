package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medisync_http_requests_total",
			Help: "Total HTTP requests by method, path and status code",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medisync_http_request_duration_seconds",
			Help:    "HTTP request latency by method and path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TicketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medisync_queue_tickets_issued_total",
			Help: "Ticket numbers allocated per department",
		},
		[]string{"department"},
	)

	QueueAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medisync_queue_advances_total",
			Help: "Advance operations per department and outcome (served/empty)",
		},
		[]string{"department", "outcome"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medisync_queue_waiting_depth",
			Help: "Current number of waiting entries per department",
		},
		[]string{"department"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medisync_queue_events_published_total",
			Help: "Broadcast events published per department and type",
		},
		[]string{"department", "type"},
	)
)
