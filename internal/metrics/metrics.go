package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSConnectionsTotal  prometheus.Counter
	WSRejectedTotal     *prometheus.CounterVec
	WSDroppedTotal      prometheus.Counter

	// Relay metrics
	RelayEventsTotal  *prometheus.CounterVec
	BroadcastsTotal   *prometheus.CounterVec
	StoreCallDuration *prometheus.HistogramVec

	// Fan-out metrics
	FanoutPublishTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),

			WSConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "relay_connections_active",
				Help: "Number of open relay connections",
			}),
			WSConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "relay_connections_total",
				Help: "Total number of accepted relay connections",
			}),
			WSRejectedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_connections_rejected_total",
					Help: "Relay connection attempts refused before upgrade",
				},
				[]string{"reason"},
			),
			WSDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "relay_connections_dropped_total",
				Help: "Clients dropped because their send buffer was full",
			}),

			RelayEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_events_total",
					Help: "Inbound relay events by type and outcome",
				},
				[]string{"event", "outcome"},
			),
			BroadcastsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_broadcasts_total",
					Help: "Broadcast events published by type",
				},
				[]string{"event"},
			),
			StoreCallDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "relay_store_call_duration_seconds",
					Help:    "Backing store call latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
				},
				[]string{"operation", "status"},
			),

			FanoutPublishTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_fanout_publish_total",
					Help: "Messages published to the cross-process fan-out channel",
				},
				[]string{"status"},
			),
		}
	})
	return instance
}

// Get returns the metrics instance, initializing it on first use
func Get() *Metrics {
	return Initialize()
}

// Status maps an error to a "success" / "error" label value
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
