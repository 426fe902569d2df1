// Package metrics provides Prometheus metrics for migration runs
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dvloznov/finance-migrator/internal/remote"
)

// MigrationMetrics contains Prometheus metrics for migration runs and jobs
type MigrationMetrics struct {
	registry *prometheus.Registry

	runsTotal           *prometheus.CounterVec
	runDuration         prometheus.Histogram
	recordsWrittenTotal *prometheus.CounterVec
	recordFailuresTotal *prometheus.CounterVec
	unitsSkippedTotal   prometheus.Counter
	jobsInFlight        prometheus.Gauge
}

// NewMigrationMetrics creates and registers migration metrics
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	m := &MigrationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_runs_total",
			Help: "Total number of migration runs by outcome",
		},
		[]string{"outcome"}, // completed, partial, no_data, corrupt, unavailable
	)

	m.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "migration_run_duration_seconds",
			Help: "Wall time of a migration run",
			// 50ms to ~100s
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	m.recordsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_records_written_total",
			Help: "Total number of records written to the remote store",
		},
		[]string{"collection"},
	)

	m.recordFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_record_failures_total",
			Help: "Total number of records that were not written",
		},
		[]string{"collection", "kind"},
	)

	m.unitsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "migration_units_skipped_total",
			Help: "Total number of units skipped because the unit record could not be written",
		},
	)

	m.jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "migration_jobs_in_flight",
			Help: "Number of migration jobs currently running",
		},
	)
}

// Describe implements the Collector interface
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.runsTotal.Describe(ch)
	m.runDuration.Describe(ch)
	m.recordsWrittenTotal.Describe(ch)
	m.recordFailuresTotal.Describe(ch)
	m.unitsSkippedTotal.Describe(ch)
	m.jobsInFlight.Describe(ch)
}

// Collect implements the Collector interface
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.runsTotal.Collect(ch)
	m.runDuration.Collect(ch)
	m.recordsWrittenTotal.Collect(ch)
	m.recordFailuresTotal.Collect(ch)
	m.unitsSkippedTotal.Collect(ch)
	m.jobsInFlight.Collect(ch)
}

// RunFinished records the outcome and duration of a run
func (m *MigrationMetrics) RunFinished(outcome string, elapsed time.Duration) {
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// RecordsWritten adds n written records for collection
func (m *MigrationMetrics) RecordsWritten(collection remote.Collection, n int) {
	if n <= 0 {
		return
	}
	m.recordsWrittenTotal.WithLabelValues(string(collection)).Add(float64(n))
}

// RecordFailures adds n failed records for collection
func (m *MigrationMetrics) RecordFailures(collection remote.Collection, kind string, n int) {
	if n <= 0 {
		return
	}
	m.recordFailuresTotal.WithLabelValues(string(collection), kind).Add(float64(n))
}

// UnitSkipped counts a skipped unit
func (m *MigrationMetrics) UnitSkipped() {
	m.unitsSkippedTotal.Inc()
}

// JobStarted marks a job as running
func (m *MigrationMetrics) JobStarted() {
	m.jobsInFlight.Inc()
}

// JobFinished marks a running job as done
func (m *MigrationMetrics) JobFinished() {
	m.jobsInFlight.Dec()
}
