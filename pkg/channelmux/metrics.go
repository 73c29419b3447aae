package channelmux

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "channelmux"

// metrics holds the Prometheus instruments for one Connection. Registering two
// connections on the same Registerer panics on duplicate registration.
type metrics struct {
	framesSent     prometheus.Counter
	framesDropped  *prometheus.CounterVec // reason: buffer_full | transport | encode
	framesInbound  *prometheus.CounterVec // route: channel | listener | handshake | malformed | unrouted
	authRequests   *prometheus.CounterVec // result: ok | error | stale
	buffered       prometheus.Gauge
	backlog        prometheus.Gauge
	activeChannels prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_sent_total",
			Help:      "Frames handed to the transport.",
		}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound envelopes that were never handed to the transport.",
		}, []string{"reason"}),
		framesInbound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by dispatch route.",
		}, []string{"route"}),
		authRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_requests_total",
			Help:      "Channel authorization exchanges by result.",
		}, []string{"result"}),
		buffered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "outbound_buffered",
			Help:      "Envelopes waiting for the transport to become writable.",
		}),
		backlog: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscription_backlog",
			Help:      "Subscriptions waiting for the socket identity.",
		}),
		activeChannels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_channels",
			Help:      "Channels currently subscribed.",
		}),
	}
}
