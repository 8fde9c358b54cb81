package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsOpen tracks currently open websocket connections.
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections_open",
		Help: "Open websocket connections on this instance.",
	})

	// RoomsActive tracks rooms with at least one member.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_rooms_active",
		Help: "Rooms with at least one member on this instance.",
	})

	// MessagesPublished counts successfully broadcast chat messages.
	MessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_published_total",
		Help: "Chat messages validated and fanned out.",
	})

	// MessagesRejected counts rejected publishes by reason.
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_rejected_total",
		Help: "Chat messages rejected before fan-out.",
	}, []string{"reason"})

	// BusFramesRelayed counts frames received from other instances.
	BusFramesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_bus_frames_relayed_total",
		Help: "Remote-origin frames delivered to local room members.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
