// Package metrics holds the prometheus collectors of a client session.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "imclient"

// Drop reasons reported by frames_dropped_total.
const (
	DropMalformed     = "malformed_frame"
	DropUnknownType   = "unknown_type"
	DropPayloadDecode = "payload_decode"
)

// Request results reported by requests_total.
const (
	ResultOK          = "ok"
	ResultServerError = "server_error"
	ResultTimeout     = "timeout"
	ResultClosed      = "session_closed"
	ResultBusy        = "busy"
	ResultCanceled    = "canceled"
)

// Metrics groups the session collectors.
type Metrics struct {
	FramesReceived     *prometheus.CounterVec
	FramesDropped      *prometheus.CounterVec
	UnmatchedResponses prometheus.Counter
	MessagesDelivered  *prometheus.CounterVec
	Duplicates         prometheus.Counter
	Requests           *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	HeartbeatsSent     prometheus.Counter
	SessionState       prometheus.Gauge
}

// New registers the collectors on reg. A nil reg gets a private registry,
// which keeps tests and multiple sessions from colliding.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound websocket frames by kind",
		}, []string{"kind"}),

		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped because they could not be decoded",
		}, []string{"reason"}),

		UnmatchedResponses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_responses_total",
			Help:      "Responses whose msgIncr matched no pending request",
		}),

		MessagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Pushed messages handed to the sink",
		}, []string{"notification"}),

		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Pushed messages dropped as repeats",
		}),

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Client requests by type and result",
		}, []string{"type", "result"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from enqueue to correlated response",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),

		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_sent_total",
			Help:      "Liveness pings written",
		}),

		SessionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (0 idle .. 5 closed)",
		}),
	}
}

// Delivered counts one sink delivery.
func (m *Metrics) Delivered(notification bool) {
	m.MessagesDelivered.WithLabelValues(strconv.FormatBool(notification)).Inc()
}
