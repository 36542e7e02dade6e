package worker

import (
	"context"
	"log/slog"
	"time"

	"genesis-connector/internal/infra/storage"
	"genesis-connector/internal/pipeline"
	"genesis-connector/internal/queue"
)

// reconcileSampleSize bounds how many queued envelopes one maintenance
// pass inspects.
const reconcileSampleSize = 1000

// MaintenanceQueue is the slice of the queue substrate maintenance needs.
type MaintenanceQueue interface {
	Sample(ctx context.Context, queueName string, n int64) ([]pipeline.Task, error)
	Remove(ctx context.Context, queueName string, task pipeline.Task) error
	PruneDeadletter(ctx context.Context, cutoff time.Time) (int, error)
	Size(ctx context.Context, queueName string) (int64, error)
}

// Maintenance reconciles the queues against the filesystem and keeps the
// deadletter bounded. It runs on the download stage's 30-minute cron
// cadence and behind each status surface's cleanup endpoint.
type Maintenance struct {
	queue  MaintenanceQueue
	layout *storage.Layout
	logger *slog.Logger
}

// MaintenanceResult summarizes one cleanup pass.
type MaintenanceResult struct {
	QueueTasksRemoved  int `json:"queue_tasks_removed"`
	DeadletterRemoved  int `json:"deadletter_removed"`
	MissingTextReports int `json:"missing_text_reports"`
}

func NewMaintenance(maintQueue MaintenanceQueue, layout *storage.Layout, logger *slog.Logger) *Maintenance {
	return &Maintenance{
		queue:  maintQueue,
		layout: layout,
		logger: logger.With(slog.String("component", "maintenance")),
	}
}

// Run performs the periodic cleanup pass: drop download tasks whose HTML
// already exists on disk, prune deadletter entries older than 24 hours,
// and report HTML artifacts still missing their text counterpart.
func (m *Maintenance) Run(ctx context.Context) (*MaintenanceResult, error) {
	return m.run(ctx, 24*time.Hour)
}

// Cleanup is the operator-triggered variant with a configurable
// deadletter retention in days (1-365).
func (m *Maintenance) Cleanup(ctx context.Context, days int) (*MaintenanceResult, error) {
	if days < 1 {
		days = 1
	}
	if days > 365 {
		days = 365
	}
	return m.run(ctx, time.Duration(days)*24*time.Hour)
}

func (m *Maintenance) run(ctx context.Context, deadletterAge time.Duration) (*MaintenanceResult, error) {
	result := &MaintenanceResult{}

	removed, err := m.reconcileDownloadQueue(ctx)
	if err != nil {
		return result, err
	}
	result.QueueTasksRemoved = removed

	pruned, err := m.queue.PruneDeadletter(ctx, time.Now().Add(-deadletterAge))
	if err != nil {
		return result, err
	}
	result.DeadletterRemoved = pruned

	missing, err := m.missingTextCount()
	if err != nil {
		// File consistency is a report, not a repair; a scan failure is
		// logged and the pass still counts as done.
		m.logger.Warn("file consistency scan failed", slog.Any("error", err))
	}
	result.MissingTextReports = missing

	m.logger.Info("maintenance pass finished",
		slog.Int("queue_tasks_removed", result.QueueTasksRemoved),
		slog.Int("deadletter_removed", result.DeadletterRemoved),
		slog.Int("missing_text", result.MissingTextReports))
	return result, nil
}

// reconcileDownloadQueue removes download tasks whose HTML artifact is
// already on disk: the work is done, the envelope is stale.
func (m *Maintenance) reconcileDownloadQueue(ctx context.Context) (int, error) {
	tasks, err := m.queue.Sample(ctx, queue.DownloadTasks, reconcileSampleSize)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := range tasks {
		if !m.layout.HasHTML(tasks[i].ID) {
			continue
		}
		if err := m.queue.Remove(ctx, queue.DownloadTasks, tasks[i]); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// missingTextCount reports how many HTML artifacts lack a text
// counterpart. Repair is a manual operator action (trigger an extraction
// batch); maintenance only surfaces the number.
func (m *Maintenance) missingTextCount() (int, error) {
	ids, err := m.layout.ListHTMLIDs()
	if err != nil {
		return 0, err
	}
	missing := 0
	for _, id := range ids {
		if !m.layout.HasText(id) {
			missing++
		}
	}
	return missing, nil
}
