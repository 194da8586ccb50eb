package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Synthesis metrics
	ResourcesSynthesized = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appsignals_resources_synthesized",
			Help: "Number of resources in the last synthesized graph by resource type",
		},
		[]string{"type"},
	)

	SynthesisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appsignals_synthesis_duration_seconds",
			Help:    "Time taken to build and validate the resource graph",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Engine metrics
	EngineOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appsignals_engine_operations_total",
			Help: "Total number of provisioning engine calls by action and result",
		},
		[]string{"action", "result"},
	)

	StackOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appsignals_stack_operation_duration_seconds",
			Help:    "Time from submitting a stack operation to its terminal status",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1800, 3600},
		},
		[]string{"action"},
	)

	StackStatusPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appsignals_stack_status_polls_total",
			Help: "Total number of stack status polls",
		},
	)

	// Asset metrics
	AssetUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appsignals_asset_uploads_total",
			Help: "Total number of asset publications by result (uploaded, skipped, failed)",
		},
		[]string{"result"},
	)

	AssetBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "appsignals_asset_bytes",
			Help: "Size of the last packaged canary bundle",
		},
	)

	// Verification metrics
	CanaryRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appsignals_canary_runs_total",
			Help: "Canary runs observed by result",
		},
		[]string{"result"},
	)

	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appsignals_health_checks_total",
			Help: "Endpoint health checks performed by check type and result",
		},
		[]string{"type", "result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ResourcesSynthesized)
	prometheus.MustRegister(SynthesisDuration)
	prometheus.MustRegister(EngineOperationsTotal)
	prometheus.MustRegister(StackOperationDuration)
	prometheus.MustRegister(StackStatusPolls)
	prometheus.MustRegister(AssetUploadsTotal)
	prometheus.MustRegister(AssetBytes)
	prometheus.MustRegister(CanaryRunsTotal)
	prometheus.MustRegister(HealthChecksTotal)
}

// WriteTextfile writes every registered metric to path in the text exposition
// format, for collection by node-exporter's textfile collector
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Result maps an error to the result label used by counters
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
