package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vitalwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Checker metrics
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_checks_total",
			Help: "Total number of vital-sign checks by outcome",
		},
		[]string{"vital", "outcome"}, // outcome: normal, abnormal, error
	)

	LookupErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_lookup_errors_total",
			Help: "Total number of failed patient lookups",
		},
		[]string{"vital"},
	)

	// Alert sink metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_alerts_total",
			Help: "Total number of alerts handed to a sink",
		},
		[]string{"sink", "status"}, // status: sent, failed
	)

	AlertSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vitalwatch_alert_send_duration_seconds",
			Help:    "Time taken to deliver an alert to a sink",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"sink"},
	)

	// Readings consumer metrics
	ReadingsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_readings_consumed_total",
			Help: "Total number of readings consumed from kafka",
		},
		[]string{"status"}, // status: checked, invalid, failed
	)

	// Patient cache metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_cache_requests_total",
			Help: "Patient cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
