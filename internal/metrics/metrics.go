// Package metrics defines the Prometheus instrumentation shared by the
// HTTP-facing services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsConsumed counts ASR events received on the SUB socket, by type.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotline_router_events_consumed_total",
		Help: "ASR events received from the recognition workers, by event type.",
	}, []string{"type"})

	// EventsDelivered counts events fanned out to WebSocket clients.
	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotline_router_events_delivered_total",
		Help: "Events delivered to at least the routing stage (targets may be empty).",
	})

	// EventsDropped counts malformed events discarded at the SUB socket.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotline_router_events_dropped_total",
		Help: "Events discarded because they could not be decoded.",
	})

	// ClientsConnected tracks the live WebSocket client count.
	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotline_router_clients_connected",
		Help: "Currently connected WebSocket clients.",
	})

	// TicketRequests counts ticket generation requests by outcome code.
	TicketRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotline_ticket_requests_total",
		Help: "Ticket generation requests, by HTTP status returned to the caller.",
	}, []string{"code"})

	// UpstreamErrors counts summarizer failures by reason.
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotline_ticket_upstream_errors_total",
		Help: "Summarizer call failures, by reason (timeout, http_error, bad_schema).",
	}, []string{"reason"})
)

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
