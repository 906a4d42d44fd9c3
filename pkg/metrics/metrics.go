// Package metrics defines the Prometheus metrics of a pipeline run. A batch run has
// no scrape endpoint, so metrics are written to a node_exporter textfile instead.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	registry *prometheus.Registry

	RowsProcessed      *prometheus.CounterVec // rows handled per stage
	NullsNormalized    *prometheus.CounterVec // cells turned into missing values per column
	UnmappedValues     *prometheus.CounterVec // values without a code per column
	FitDuration        prometheus.Histogram   // OneRule fit duration in seconds
	Accuracy           *prometheus.GaugeVec   // accuracy per partition
	TrainingErrors     prometheus.Gauge       // misclassified training rows of the selected rule
	ImbalanceWarnings  prometheus.Counter     // runs whose labels exceeded the imbalance threshold
	GenerationFailures prometheus.Counter     // failed data generation requests
}

// New creates metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RowsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditrule_rows_processed_total",
			Help: "Rows processed per pipeline stage",
		}, []string{"stage"}),
		NullsNormalized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditrule_nulls_normalized_total",
			Help: "Cells replaced by missing values per column",
		}, []string{"column"}),
		UnmappedValues: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditrule_unmapped_values_total",
			Help: "Values without a category code per column",
		}, []string{"column"}),
		FitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "creditrule_fit_duration_seconds",
			Help:    "Duration of OneRule fitting",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		Accuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "creditrule_accuracy",
			Help: "Classifier accuracy per partition",
		}, []string{"partition"}),
		TrainingErrors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "creditrule_training_errors",
			Help: "Training rows misclassified by the selected rule",
		}),
		ImbalanceWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "creditrule_imbalance_warnings_total",
			Help: "Runs with a skewed label distribution",
		}),
		GenerationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "creditrule_generation_failures_total",
			Help: "Failed mock data generation requests",
		}),
	}
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
