package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	sockets         prometheus.Gauge
	received        *prometheus.CounterVec // kind: whoami | ping | subscribe | unsubscribe | client | ignored | malformed
	subscriptions   *prometheus.CounterVec // result: ok | rejected
	delivered       prometheus.Counter
	slowDisconnects prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	const ns, sub = "channelmux", "server"

	return &metrics{
		sockets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "sockets",
			Help: "Connected websocket sockets.",
		}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "frames_received_total",
			Help: "Frames received from sockets by kind.",
		}, []string{"kind"}),
		subscriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "subscriptions_total",
			Help: "Subscribe requests by result.",
		}, []string{"result"}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "frames_delivered_total",
			Help: "Channel events queued to sockets.",
		}),
		slowDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "slow_disconnects_total",
			Help: "Sockets disconnected because their send buffer was full.",
		}),
	}
}
