package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_realtime"

var (
	SessionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "sessions_open", Help: "Registered live connections per channel"},
		[]string{"channel"},
	)
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "connections_total", Help: "Accepted connections per channel"},
		[]string{"channel"},
	)
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "messages_total", Help: "Inbound envelopes by channel, type and outcome"},
		[]string{"channel", "type", "outcome"},
	)
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "sends_total", Help: "Outbound envelopes by channel and outcome"},
		[]string{"channel", "outcome"},
	)
	BusEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "bus_events_total", Help: "Internal bus events by topic and direction"},
		[]string{"topic", "direction"},
	)
	LocationUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_updates_total", Help: "Driver location updates handed to the matching side, by sink and outcome"},
		[]string{"sink", "outcome"},
	)

	GeocodeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "geocode_attempts_total", Help: "Reverse geocoding attempts by provider and outcome"},
		[]string{"provider", "outcome"},
	)
	GeocodeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "geocode_latency_seconds", Help: "Reverse geocoding provider latency", Buckets: prometheus.DefBuckets},
		[]string{"provider"},
	)
	LocationCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_cache_lookups_total", Help: "Location cache lookups by result"},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	WSSessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ws_session_duration_seconds",
			Help:      "Lifetime of upgraded websocket sessions per channel",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 14400},
		},
		[]string{"channel"},
	)
)
