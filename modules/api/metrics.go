package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Live WebSocket connections.
	socketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_socket_connections",
			Help: "Number of open WebSocket connections",
		},
	)

	// Client to server socket events by outcome.
	socketEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_events_total",
			Help: "Total number of socket events handled",
		},
		[]string{"event", "outcome"},
	)

	roomsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rooms_deleted_total",
			Help: "Total number of rooms deleted",
		},
	)

	// Objects and messages removed by room teardown.
	cascadePurgedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_cascade_purged_total",
			Help: "Total number of items removed by room deletion",
		},
		[]string{"kind"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// recordSocketEvent counts one socket event with its outcome.
func recordSocketEvent(event, outcome string) {
	socketEventsTotal.WithLabelValues(event, outcome).Inc()
}

// metricsMiddleware records request counts and latency per matched route.
func metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}
		httpRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
