package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alvmarrod/median-degree/internal/window"
)

// Exporter mirrors window activity into a private Prometheus registry that
// can be dumped in the node_exporter textfile format
type Exporter struct {
	registry *prometheus.Registry

	events  *prometheus.CounterVec
	skipped prometheus.Counter
	evicted prometheus.Counter

	nodes   prometheus.Gauge
	edges   prometheus.Gauge
	buckets prometheus.Gauge
	median  prometheus.Gauge
}

// NewExporter registers all series on a fresh registry
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	e := &Exporter{
		registry: reg,
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "median_degree_events_total",
				Help: "Events submitted to the window, by outcome",
			},
			[]string{"outcome"},
		),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "median_degree_records_skipped_total",
			Help: "Input records rejected before reaching the window",
		}),
		evicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "median_degree_edges_evicted_total",
			Help: "Edges that left the window",
		}),
		nodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "median_degree_nodes",
			Help: "Nodes with at least one edge in the window",
		}),
		edges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "median_degree_active_edges",
			Help: "Distinct edges in the window",
		}),
		buckets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "median_degree_timestamp_buckets",
			Help: "Distinct timestamps held by the edge log",
		}),
		median: factory.NewGauge(prometheus.GaugeOpts{
			Name: "median_degree_median",
			Help: "Current median node degree",
		}),
	}

	// Expose every outcome from the start, even at zero
	for _, o := range window.Outcomes {
		e.events.WithLabelValues(o.String())
	}

	return e
}

// Observe records one submitted event and the resulting state
func (e *Exporter) Observe(res window.Result, snap window.Snapshot) {
	e.events.WithLabelValues(res.Outcome.String()).Inc()
	e.evicted.Add(float64(res.Evicted))

	e.nodes.Set(float64(snap.Nodes))
	e.edges.Set(float64(snap.Edges))
	e.buckets.Set(float64(snap.Buckets))
	if res.Defined {
		e.median.Set(res.Median)
	}
}

// RecordSkip counts a rejected input record
func (e *Exporter) RecordSkip() {
	e.skipped.Inc()
}

// Registry returns the underlying registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// WriteTextfile writes all series to path atomically
func (e *Exporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("failed to write prometheus textfile: %w", err)
	}
	return nil
}
