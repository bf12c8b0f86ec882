package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messenger_connections_active",
			Help: "Currently attached websocket connections",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_messages_sent_total",
			Help: "Messages accepted by the delivery pipeline",
		},
		[]string{"kind"}, // "direct" or "broadcast"
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_message_status_transitions_total",
			Help: "Persisted message status advances",
		},
		[]string{"to"}, // "delivered" or "read"
	)

	CallEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_call_events_total",
			Help: "Call signaling events relayed",
		},
		[]string{"type"}, // "offer", "signal", "answer", "end"
	)

	PresenceBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_presence_broadcasts_total",
			Help: "Roster broadcasts triggered by attach/detach",
		},
	)

	PushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_push_failures_total",
			Help: "Per-connection pushes that failed",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
