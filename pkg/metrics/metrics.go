// Package metrics holds the prometheus collectors of the chat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebsocketConnections live connections on this instance
	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_websocket_connections_active",
		Help: "Number of open websocket connections",
	})

	// EventsSent events enqueued to connections
	EventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_sent_total",
		Help: "Events enqueued for delivery to live connections",
	}, []string{"type"})

	// EventsDropped connections pruned because their outbound queue was full
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_events_dropped_total",
		Help: "Events dropped because the outbound queue was full",
	})

	// MessagesSent persisted messages
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages persisted by type",
	}, []string{"type"})

	// RateLimitRejections sends refused by the limiter
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_rate_limit_rejections_total",
		Help: "Sends rejected by the per user/room token bucket",
	})

	// CollaboratorFailures push or event publish failures
	CollaboratorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_collaborator_failures_total",
		Help: "Failed fire-and-forget calls to external collaborators",
	}, []string{"collaborator"})

	// SweptConnections connections pruned by the heartbeat sweep
	SweptConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_swept_connections_total",
		Help: "Connections pruned after missing heartbeats",
	})

	// RequestDuration REST latency
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_http_request_duration_seconds",
		Help:    "REST request latency",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"method", "route", "status"})
)
