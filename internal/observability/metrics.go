package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extension_bridge_inbound_envelopes_total",
		Help: "Inbound envelopes grouped by type and outcome",
	}, []string{"type", "outcome"})

	outboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extension_bridge_outbound_envelopes_total",
		Help: "Outbound envelopes grouped by type",
	}, []string{"type"})

	handlerTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extension_bridge_handler_runs_total",
		Help: "Dispatched command and event handlers grouped by kind and outcome",
	}, []string{"kind", "outcome"})

	handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extension_bridge_handler_duration_seconds",
		Help:    "Duration of dispatched command and event handlers",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"kind"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extension_bridge_request_duration_seconds",
		Help:    "Round-trip time of correlated host evaluations",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"mode", "outcome"})

	pendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "extension_bridge_pending_requests",
		Help: "Correlated requests awaiting a host response",
	})

	liveWebviews = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "extension_bridge_webviews",
		Help: "Webview panels currently running",
	})

	connections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extension_bridge_connections_total",
		Help: "Host connection attempts grouped by outcome",
	}, []string{"outcome"})
)

// ObserveInbound counts one decoded (or rejected) inbound frame.
func ObserveInbound(msgType int, outcome string) {
	inboundTotal.WithLabelValues(strconv.Itoa(msgType), outcome).Inc()
}

// ObserveOutbound counts one frame handed to the host connection.
func ObserveOutbound(msgType int) {
	outboundTotal.WithLabelValues(strconv.Itoa(msgType)).Inc()
}

// ObserveHandler records a finished command or event handler.
func ObserveHandler(kind, outcome string, duration time.Duration) {
	handlerTotal.WithLabelValues(kind, outcome).Inc()
	handlerDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRequest records a finished correlated evaluation.
func ObserveRequest(mode, outcome string, duration time.Duration) {
	requestDuration.WithLabelValues(mode, outcome).Observe(duration.Seconds())
}

// PendingAdded and PendingRemoved track the correlation table size.
func PendingAdded()        { pendingRequests.Inc() }
func PendingRemoved(n int) { pendingRequests.Sub(float64(n)) }

// WebviewOpened and WebviewClosed track running panels.
func WebviewOpened() { liveWebviews.Inc() }
func WebviewClosed() { liveWebviews.Dec() }

// ObserveConnection counts accepted and rejected host connections.
func ObserveConnection(outcome string) {
	connections.WithLabelValues(outcome).Inc()
}
