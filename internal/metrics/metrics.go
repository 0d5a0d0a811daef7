package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30},
		},
		[]string{"method", "path"},
	)

	// Ingress metrics
	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_inbound_messages_total",
			Help: "Platform messages accepted for processing",
		},
		[]string{"platform", "source_kind"},
	)

	DuplicateMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_duplicate_messages_total",
			Help: "Redelivered platform messages dropped at ingress",
		},
		[]string{"platform"},
	)

	// Reply cycle metrics
	ReplyCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_reply_cycles_total",
			Help: "Reply cycles by the state they ended in",
		},
		[]string{"state"},
	)

	ReplyCycleErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_reply_cycle_errors_total",
			Help: "Reply cycles aborted by a storage error",
		},
	)

	// Collaborator metrics
	ReasoningLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_reasoning_latency_seconds",
			Help:    "Chat completion latency",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	ReasoningErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_reasoning_errors_total",
			Help: "Failed chat completion calls",
		},
	)

	StoreUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_store_up",
			Help: "Whether the last store ping succeeded",
		},
	)

	ReplyDeliveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_reply_delivery_errors_total",
			Help: "Replies the platform refused",
		},
		[]string{"platform"},
	)
)
