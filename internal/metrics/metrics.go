package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "The current number of attached WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "The total number of rejected connection credentials.",
	}, []string{"reason"})

	// Room metrics
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rooms_active",
		Help: "The current number of rooms held in memory.",
	})
	RoomsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rooms_reaped_total",
		Help: "The total number of rooms destroyed by the idle reaper.",
	})

	// Event metrics
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_sent_total",
		Help: "The total number of events queued to connections, by type.",
	}, []string{"type"})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_events_dropped_total",
		Help: "The total number of events dropped because a connection could not take them.",
	})
	Refusals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refusals_total",
		Help: "The total number of rejected client events, by error code.",
	}, []string{"code"})

	// Side effects
	OutboxDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dropped_total",
		Help: "The total number of background jobs dropped because the queue was full.",
	}, []string{"outbox"})
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "The total number of notifications that could not be delivered.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
