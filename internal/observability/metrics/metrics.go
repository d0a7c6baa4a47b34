// Package metrics exposes prometheus instruments for the metering core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shipyard"

// Metrics holds application-level instruments.
type Metrics struct {
	usageRecords      *prometheus.CounterVec
	usageFailures     *prometheus.CounterVec
	storageIntegrated prometheus.Counter

	sweepRuns     *prometheus.CounterVec
	sweepErrors   *prometheus.CounterVec
	sweepTimeouts *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	recovered     *prometheus.CounterVec
}

// New registers instruments on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers instruments on reg. Tests pass a private registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		usageRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_records_total",
			Help:      "Usage ledger records appended, by usage type.",
		}, []string{"usage_type"}),
		usageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_record_failures_total",
			Help:      "Failed ledger writes, by operation.",
		}, []string{"operation"}),
		storageIntegrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_integrations_total",
			Help:      "Billing-period storage calculations performed.",
		}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_job_runs_total",
			Help:      "Recovery sweep job invocations.",
		}, []string{"job"}),
		sweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_job_errors_total",
			Help:      "Recovery sweep job failures.",
		}, []string{"job"}),
		sweepTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_job_timeouts_total",
			Help:      "Recovery sweep jobs cut off by their deadline.",
		}, []string{"job"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recovery_job_duration_seconds",
			Help:      "Recovery sweep job duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_pipelines_recovered_total",
			Help:      "Pipelines corrected by the recovery sweep, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.usageRecords,
		m.usageFailures,
		m.storageIntegrated,
		m.sweepRuns,
		m.sweepErrors,
		m.sweepTimeouts,
		m.sweepDuration,
		m.recovered,
	)
	return m
}

func (m *Metrics) IncUsageRecord(usageType string) {
	if m == nil {
		return
	}
	m.usageRecords.WithLabelValues(usageType).Inc()
}

func (m *Metrics) IncUsageFailure(operation string) {
	if m == nil {
		return
	}
	m.usageFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncStorageIntegration() {
	if m == nil {
		return
	}
	m.storageIntegrated.Inc()
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.sweepErrors.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.sweepTimeouts.WithLabelValues(job).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) IncPipelineRecovered(reason string) {
	if m == nil {
		return
	}
	m.recovered.WithLabelValues(reason).Inc()
}
