package relaypool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedRelays = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cloudatlas",
		Subsystem: "relaypool",
		Name:      "connected_relays",
		Help:      "Number of relay endpoints with a live connection.",
	})
	eventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cloudatlas",
		Subsystem: "relaypool",
		Name:      "events_received_total",
		Help:      "Events delivered to subscription handlers after dedup.",
	})
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cloudatlas",
		Subsystem: "relaypool",
		Name:      "events_published_total",
		Help:      "Events accepted by a relay on publish.",
	})
	reconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudatlas",
		Subsystem: "relaypool",
		Name:      "reconnect_attempts_total",
		Help:      "Failed connection attempts per relay endpoint.",
	}, []string{"relay"})
)
