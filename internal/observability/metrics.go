package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the batch pipeline.
type Metrics struct {
	UnitsProcessed prometheus.Counter
	UnitsRestored  prometheus.Counter
	UnitsFailed    prometheus.Counter
	BatchRunning   prometheus.Gauge

	// Per-combination metrics. A combination is one city under one
	// model-scenario unit.
	Combinations       *prometheus.CounterVec // labels: outcome={success,error}
	SeriesCache        *prometheus.CounterVec // labels: result={hit,miss}
	ExtractionDuration prometheus.Histogram

	// Checkpoint metrics.
	CheckpointsSaved  prometheus.Counter
	CheckpointsLoaded prometheus.Counter

	// Kafka publishing metrics.
	RecordsPublished prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		UnitsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climdex",
			Name:      "units_processed_total",
			Help:      "Total model-scenario units computed during this run.",
		}),
		UnitsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climdex",
			Name:      "units_restored_total",
			Help:      "Total model-scenario units restored from checkpoints.",
		}),
		UnitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climdex",
			Name:      "units_failed_total",
			Help:      "Total model-scenario units that failed and were skipped.",
		}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climdex",
			Name:      "batch_running",
			Help:      "1 while the batch is active, 0 once finished.",
		}),
		Combinations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climdex",
			Name:      "combinations_total",
			Help:      "City-model-scenario combinations by outcome.",
		}, []string{"outcome"}),
		SeriesCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climdex",
			Name:      "series_cache_total",
			Help:      "Daily-series cache lookups by result.",
		}, []string{"result"}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climdex",
			Name:      "series_extraction_duration_seconds",
			Help:      "Duration of a single grid-cell series read.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CheckpointsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climdex",
			Name:      "checkpoints_saved_total",
			Help:      "Total checkpoint files written.",
		}),
		CheckpointsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climdex",
			Name:      "checkpoints_loaded_total",
			Help:      "Total checkpoint files loaded on resume.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climdex",
			Name:      "records_published_total",
			Help:      "Total index records published to the sink topic.",
		}),
	}

	prometheus.MustRegister(
		m.UnitsProcessed,
		m.UnitsRestored,
		m.UnitsFailed,
		m.BatchRunning,
		m.Combinations,
		m.SeriesCache,
		m.ExtractionDuration,
		m.CheckpointsSaved,
		m.CheckpointsLoaded,
		m.RecordsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		UnitsProcessed:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climdex", Name: "units_processed_total"}),
		UnitsRestored:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climdex", Name: "units_restored_total"}),
		UnitsFailed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climdex", Name: "units_failed_total"}),
		BatchRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "climdex", Name: "batch_running"}),
		Combinations:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "climdex", Name: "combinations_total"}, []string{"outcome"}),
		SeriesCache:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "climdex", Name: "series_cache_total"}, []string{"result"}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "climdex", Name: "series_extraction_duration_seconds"}),
		CheckpointsSaved:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climdex", Name: "checkpoints_saved_total"}),
		CheckpointsLoaded:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climdex", Name: "checkpoints_loaded_total"}),
		RecordsPublished:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climdex", Name: "records_published_total"}),
	}
}
