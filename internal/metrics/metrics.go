// Package metrics exposes Prometheus collectors for the harvester. The batch
// job has no HTTP surface, so collectors live in a dedicated registry that is
// pushed to a Pushgateway at the end of a run when one is configured.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job label used for every run.
const PushJob = "proxyharvest"

var (
	registry *prometheus.Registry

	harvestTasksTotal          *prometheus.CounterVec
	harvestTaskDurationSeconds *prometheus.HistogramVec
	harvestActiveWorkers       prometheus.Gauge
	linksProcessedTotal        *prometheus.CounterVec
	persistBatchesTotal        *prometheus.CounterVec
	exportFilesTotal           *prometheus.CounterVec
	collectorRequestsTotal     *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	phaseDurationSeconds       *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		factory := promauto.With(registry)

		harvestTasksTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_tasks_total",
				Help: "Total number of harvest tasks, labeled by phase and outcome.",
			},
			[]string{"phase", "outcome"},
		)

		harvestTaskDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_task_duration_seconds",
				Help:    "Histogram of per-location fetch and parse latency.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"phase"},
		)

		harvestActiveWorkers = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of workers currently processing a location.",
			},
		)

		linksProcessedTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_links_total",
				Help: "Candidate links processed by the persistence stage, labeled by source kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		persistBatchesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_persist_batches_total",
				Help: "Persistence batches, labeled by status (committed or rolled_back).",
			},
			[]string{"status"},
		)

		exportFilesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_export_files_total",
				Help: "Export artifacts written, labeled by target and status.",
			},
			[]string{"target", "status"},
		)

		collectorRequestsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_collector_requests_total",
				Help: "Requests issued to external sources, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		rateLimitDelaysSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delays_seconds",
				Help:    "Histogram of pacing wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)

		phaseDurationSeconds = factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_phase_duration_seconds",
				Help: "Wall-clock duration of the last run phase.",
			},
			[]string{"phase"},
		)
	})
}

// Registry returns the registry holding every harvester collector.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// ObserveTask records the outcome and latency of one harvest task.
func ObserveTask(phase, outcome string, duration time.Duration) {
	Init()
	harvestTasksTotal.WithLabelValues(phase, outcome).Inc()
	harvestTaskDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	harvestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	harvestActiveWorkers.Dec()
}

// ObserveLinks adds n links with the given outcome for a source kind.
func ObserveLinks(kind, outcome string, n int) {
	Init()
	if n <= 0 {
		return
	}
	linksProcessedTotal.WithLabelValues(kind, outcome).Add(float64(n))
}

// ObserveBatch increments the persistence batch counter.
func ObserveBatch(status string) {
	Init()
	persistBatchesTotal.WithLabelValues(status).Inc()
}

// ObserveExportFile increments the export artifact counter.
func ObserveExportFile(target, status string) {
	Init()
	exportFilesTotal.WithLabelValues(target, status).Inc()
}

// ObserveCollectorRequest increments the external request counter.
func ObserveCollectorRequest(source, status string) {
	Init()
	collectorRequestsTotal.WithLabelValues(source, status).Inc()
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(source string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObservePhase records how long a run phase took.
func ObservePhase(phase string, duration time.Duration) {
	Init()
	phaseDurationSeconds.WithLabelValues(phase).Set(duration.Seconds())
}

// Push sends the registry to a Pushgateway, grouped by run id.
func Push(ctx context.Context, gatewayURL, runID string) error {
	Init()
	pusher := push.New(gatewayURL, PushJob).Gatherer(registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
