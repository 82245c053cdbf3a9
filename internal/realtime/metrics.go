package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики шлюза; экспортируются через общий /metrics.
var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections_active",
		Help: "Number of open websocket connections.",
	})

	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_received_total",
		Help: "Inbound events by type (malformed counted as 'invalid').",
	}, []string{"event"})

	eventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_broadcast_total",
		Help: "Outbound broadcast events by type.",
	}, []string{"event"})

	subscribersKicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_subscribers_kicked_total",
		Help: "Connections dropped because their send queue overflowed.",
	})
)
