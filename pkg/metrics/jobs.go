package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records execution metadata for ingest jobs by type.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	retries  *prometheus.CounterVec
	enqueued *prometheus.CounterVec
}

// NewJobMetrics registers the job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_job_duration_seconds",
		Help:    "Duration of ingest jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job_type"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_job_success",
		Help: "Successful ingest job executions.",
	}, []string{"job_type"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_job_failure",
		Help: "Failed ingest job executions.",
	}, []string{"job_type"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_job_retries",
		Help: "Transient-failure retries during ingest job execution.",
	}, []string{"job_type"})
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_job_enqueued",
		Help: "Jobs handed to the queue backend.",
	}, []string{"job_type", "backend"})
	reg.MustRegister(duration, success, failure, retries, enqueued)
	return &JobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		retries:  retries,
		enqueued: enqueued,
	}
}

// ObserveDuration records the duration for the job type.
func (m *JobMetrics) ObserveDuration(jobType string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(jobType)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the job type.
func (m *JobMetrics) IncSuccess(jobType string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(jobType)).Inc()
}

// IncFailure increments the failure counter for the job type.
func (m *JobMetrics) IncFailure(jobType string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(jobType)).Inc()
}

// IncRetry increments the retry counter for the job type.
func (m *JobMetrics) IncRetry(jobType string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(jobType)).Inc()
}

// IncEnqueued increments the enqueue counter for the job type and backend.
func (m *JobMetrics) IncEnqueued(jobType, backend string) {
	if m == nil || m.enqueued == nil {
		return
	}
	m.enqueued.WithLabelValues(normalizeLabel(jobType), normalizeLabel(backend)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
