package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatroom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_messages_appended_total",
			Help: "Total messages durably appended",
		},
		[]string{"kind"}, // "text", "file", "system"
	)

	AppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatroom_append_failures_total",
			Help: "Total message appends rejected by the store",
		},
	)

	SessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatroom_sessions_active",
			Help: "Currently attached sessions",
		},
		[]string{"transport"}, // "push" or "pull"
	)

	SessionsJoined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_sessions_joined_total",
			Help: "Total join handshakes",
		},
		[]string{"transport"},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatroom_delivery_failures_total",
			Help: "Per-recipient delivery failures during fan-out",
		},
	)

	TypingEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatroom_typing_events_total",
			Help: "Typing start/stop events broadcast",
		},
	)

	// Infrastructure metrics
	StoreAppendLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatroom_store_append_seconds",
			Help:    "Message store append latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)
)
