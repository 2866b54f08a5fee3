// Package metrics exposes Prometheus instrumentation for the scoring
// pipeline and graph engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles all pipeline instrumentation.
type Metrics struct {
	EventsProcessed prometheus.Counter
	ItemFailures    prometheus.Counter
	AlertsEmitted   *prometheus.CounterVec
	ScoreLatency    prometheus.Histogram
	GraphNodes      prometheus.Gauge
	GraphEdges      prometheus.Gauge
}

// New registers all metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "threatengine_events_processed_total",
			Help: "Total events scored by the pipeline.",
		}),
		ItemFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "threatengine_item_failures_total",
			Help: "Total per-item pipeline failures.",
		}),
		AlertsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "threatengine_alerts_emitted_total",
			Help: "Total alerts emitted, by severity.",
		}, []string{"severity"}),
		ScoreLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "threatengine_score_latency_seconds",
			Help:    "End-to-end latency of scoring one event.",
			Buckets: prometheus.DefBuckets,
		}),
		GraphNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "threatengine_graph_nodes",
			Help: "Current number of graph nodes.",
		}),
		GraphEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "threatengine_graph_edges",
			Help: "Current number of graph edges.",
		}),
	}
}
