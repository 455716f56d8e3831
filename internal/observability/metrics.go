// Package observability holds the Prometheus instrumentation for the hazard
// service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HazardsReported      prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	HazardsResolved      prometheus.Counter
	ProximityAlerts      prometheus.Counter
	NearbySnapshots      prometheus.Counter
	DroppedMessages      prometheus.Counter
	ConnectedUsers       prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.HazardsReported,
		m.DuplicatesSuppressed,
		m.HazardsResolved,
		m.ProximityAlerts,
		m.NearbySnapshots,
		m.DroppedMessages,
		m.ConnectedUsers,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// call it repeatedly without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		HazardsReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_alerts",
			Name:      "hazards_reported_total",
			Help:      "Total hazards created from inbound reports.",
		}),
		DuplicatesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_alerts",
			Name:      "duplicates_suppressed_total",
			Help:      "Total reports folded into an existing active hazard.",
		}),
		HazardsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_alerts",
			Name:      "hazards_resolved_total",
			Help:      "Total hazards transitioned to resolved.",
		}),
		ProximityAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_alerts",
			Name:      "proximity_alerts_total",
			Help:      "Total proximity alerts addressed to nearby users.",
		}),
		NearbySnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_alerts",
			Name:      "nearby_snapshots_total",
			Help:      "Total nearby-hazard snapshots pushed after location updates.",
		}),
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_alerts",
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped because a client buffer was full.",
		}),
		ConnectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hazard_alerts",
			Name:      "connected_clients",
			Help:      "Currently connected websocket clients.",
		}),
	}
}
