package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis-connector/internal/infra/storage"
	"genesis-connector/internal/observability/logging"
	"genesis-connector/internal/pipeline"
	"genesis-connector/internal/queue"
)

func newMaintenanceEnv(t *testing.T) (*Maintenance, *queue.Substrate, *storage.Layout) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	substrate := queue.New(client)

	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)

	return NewMaintenance(substrate, layout, logging.NewLogger()), substrate, layout
}

func TestMaintenance_ReconcilesDownloadQueue(t *testing.T) {
	m, substrate, layout := newMaintenanceEnv(t)
	ctx := context.Background()

	// A1 already has its HTML on disk; A2 does not.
	require.NoError(t, storage.WriteFileAtomic(layout.HTMLPath("A1"), []byte("<html/>")))
	for _, id := range []string{"A1", "A2"} {
		task := pipeline.NewDiscoveryTask(id, "https://example.com/"+id, "t", "p", "mp", 0, time.Now())
		require.NoError(t, substrate.Push(ctx, queue.DownloadTasks, task,
			queue.ScoreForNewTask(0, time.Now())))
	}

	result, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.QueueTasksRemoved)

	remaining, err := substrate.Sample(ctx, queue.DownloadTasks, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "A2", remaining[0].ID, "task without an artifact must stay queued")
}

func TestMaintenance_PrunesDeadletter(t *testing.T) {
	m, substrate, _ := newMaintenanceEnv(t)
	ctx := context.Background()

	// PushDeadletter stamps LastRetryAt=now, which is within 24h, so the
	// standard pass keeps it; a 1-day operator cleanup keeps it too.
	task := pipeline.NewDiscoveryTask("A1", "https://example.com/a", "t", "p", "mp", 0, time.Now())
	require.NoError(t, substrate.PushDeadletter(ctx, task, "failed"))

	result, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.DeadletterRemoved)

	size, _ := substrate.Size(ctx, queue.FailedTasks)
	assert.Equal(t, int64(1), size)
}

func TestMaintenance_ReportsMissingText(t *testing.T) {
	m, _, layout := newMaintenanceEnv(t)
	ctx := context.Background()

	require.NoError(t, storage.WriteFileAtomic(layout.HTMLPath("A1"), []byte("<html/>")))
	require.NoError(t, storage.WriteFileAtomic(layout.HTMLPath("A2"), []byte("<html/>")))
	require.NoError(t, storage.WriteFileAtomic(layout.TextPath("A1"), []byte("done")))

	result, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MissingTextReports)
}

func TestMaintenance_CleanupClampsDays(t *testing.T) {
	m, _, _ := newMaintenanceEnv(t)

	// Out-of-range day values are clamped, not rejected.
	_, err := m.Cleanup(context.Background(), 0)
	assert.NoError(t, err)
	_, err = m.Cleanup(context.Background(), 1000)
	assert.NoError(t, err)
}
