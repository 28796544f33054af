package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// import and AADV paths.
type Metrics struct {
	RecordsImported   *prometheus.CounterVec // labels: kind={volume,15min_volume,class,speed}
	CanonicalOutcomes *prometheus.CounterVec // labels: field, outcome={unchanged,corrected,cleared,unrecognized}
	AADVComputations  *prometheus.CounterVec // labels: outcome={computed,insufficient_data,bad_interval,factor_error,storage_error}
	SitesInFlight     prometheus.Gauge

	// Batch processing metrics.
	BatchRecords  prometheus.Histogram
	BatchDuration prometheus.Histogram
}

// NewMetrics creates and registers all import metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "traffic_counts",
			Name:      "records_imported_total",
			Help:      "Count records persisted, by count kind.",
		}, []string{"kind"}),
		CanonicalOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "traffic_counts",
			Name:      "canonical_outcomes_total",
			Help:      "Field canonicalization results by field and outcome.",
		}, []string{"field", "outcome"}),
		AADVComputations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "traffic_counts",
			Name:      "aadv_computations_total",
			Help:      "Per-site AADV computations by outcome.",
		}, []string{"outcome"}),
		SitesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "traffic_counts",
			Name:      "sites_in_flight",
			Help:      "Site batches currently being processed.",
		}),
		BatchRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "traffic_counts",
			Name:      "batch_records",
			Help:      "Number of count records per site batch.",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "traffic_counts",
			Name:      "batch_duration_seconds",
			Help:      "Duration of a complete site import batch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	prometheus.MustRegister(
		m.RecordsImported,
		m.CanonicalOutcomes,
		m.AADVComputations,
		m.SitesInFlight,
		m.BatchRecords,
		m.BatchDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsImported:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "traffic_counts", Name: "records_imported_total"}, []string{"kind"}),
		CanonicalOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "traffic_counts", Name: "canonical_outcomes_total"}, []string{"field", "outcome"}),
		AADVComputations:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "traffic_counts", Name: "aadv_computations_total"}, []string{"outcome"}),
		SitesInFlight:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "traffic_counts", Name: "sites_in_flight"}),
		BatchRecords:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "traffic_counts", Name: "batch_records"}),
		BatchDuration:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "traffic_counts", Name: "batch_duration_seconds"}),
	}
}
