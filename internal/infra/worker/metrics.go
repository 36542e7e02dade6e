package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"genesis-connector/internal/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for one stage worker. It
// embeds the standard ConfigMetrics for configuration monitoring and adds
// batch-execution tracking.
//
// Embedded metrics (from ConfigMetrics):
//   - {stage}_config_load_timestamp
//   - {stage}_config_validation_errors_total
//   - {stage}_config_fallbacks_total
//   - {stage}_config_fallback_active
//
// Worker metrics (shared names, distinguished by the stage label):
//   - worker_batch_runs_total{stage, status}
//   - worker_batch_duration_seconds{stage}
//   - worker_tasks_processed_total{stage, result}
//   - worker_queue_depth{queue}
//   - worker_last_success_timestamp{stage}
type WorkerMetrics struct {
	*config.ConfigMetrics

	stage string

	// BatchRunsTotal counts batches by outcome (success/failure).
	BatchRunsTotal *prometheus.CounterVec

	// BatchDurationSeconds measures batch wall time.
	BatchDurationSeconds *prometheus.HistogramVec

	// TasksProcessedTotal counts tasks by result
	// (succeeded/retried/failed).
	TasksProcessedTotal *prometheus.CounterVec

	// QueueDepth tracks the current length of each queue, refreshed by
	// the status surface.
	QueueDepth *prometheus.GaugeVec

	// LastSuccessTimestamp records the Unix time of the last successful
	// batch.
	LastSuccessTimestamp *prometheus.GaugeVec
}

// NewWorkerMetrics creates the metrics for one stage. Metrics with shared
// names are created once per process; each stage binary registers its own
// instance.
func NewWorkerMetrics(stage string) *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics(stage),
		stage:         stage,

		BatchRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_batch_runs_total",
			Help: "Total number of worker batches by stage and status",
		}, []string{"stage", "status"}),

		BatchDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_batch_duration_seconds",
			Help:    "Duration of worker batches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}, []string{"stage"}),

		TasksProcessedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_tasks_processed_total",
			Help: "Total number of tasks by stage and result",
		}, []string{"stage", "result"}),

		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current queue lengths as last observed",
		}, []string{"queue"}),

		LastSuccessTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_last_success_timestamp",
			Help: "Unix timestamp of the last successful batch",
		}, []string{"stage"}),
	}
}

// RecordBatch records one batch outcome.
func (m *WorkerMetrics) RecordBatch(status string, duration time.Duration) {
	m.BatchRunsTotal.WithLabelValues(m.stage, status).Inc()
	m.BatchDurationSeconds.WithLabelValues(m.stage).Observe(duration.Seconds())
	if status == "success" {
		m.LastSuccessTimestamp.WithLabelValues(m.stage).SetToCurrentTime()
	}
}

// RecordTasks adds per-result task counts from one batch.
func (m *WorkerMetrics) RecordTasks(succeeded, retried, failed int) {
	if succeeded > 0 {
		m.TasksProcessedTotal.WithLabelValues(m.stage, "succeeded").Add(float64(succeeded))
	}
	if retried > 0 {
		m.TasksProcessedTotal.WithLabelValues(m.stage, "retried").Add(float64(retried))
	}
	if failed > 0 {
		m.TasksProcessedTotal.WithLabelValues(m.stage, "failed").Add(float64(failed))
	}
}

// SetQueueDepth records an observed queue length.
func (m *WorkerMetrics) SetQueueDepth(queueName string, depth int64) {
	m.QueueDepth.WithLabelValues(queueName).Set(float64(depth))
}
