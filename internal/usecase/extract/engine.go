// Package extract implements the third pipeline stage: reading downloaded
// HTML from disk, extracting the main article text, and recording the
// text artifact.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"genesis-connector/internal/domain/entity"
	"genesis-connector/internal/infra/extractor"
	"genesis-connector/internal/infra/storage"
	"genesis-connector/internal/observability/metrics"
	"genesis-connector/internal/observability/tracing"
	"genesis-connector/internal/pipeline"
	"genesis-connector/internal/queue"
	"genesis-connector/internal/repository"
	"genesis-connector/internal/utils/text"
)

// popTimeout bounds how long a batch waits on an empty queue before
// falling back to file discovery.
var popTimeout = 5 * time.Second

// TaskQueue is the slice of the queue substrate the extraction stage needs.
type TaskQueue interface {
	PopMin(ctx context.Context, queueName string, timeout time.Duration) (*pipeline.Task, error)
	Push(ctx context.Context, queueName string, task pipeline.Task, score float64) error
	PushDeadletter(ctx context.Context, task pipeline.Task, errMessage string) error
	SetStatus(ctx context.Context, id, payload string, ttl time.Duration) error
	IncrCounter(ctx context.Context, queueName, action string) error
}

// BatchResult summarizes one worker batch.
type BatchResult struct {
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Retried    int           `json:"retried"`
	Failed     int           `json:"failed"`
	Discovered int           `json:"discovered"` // tasks synthesized from the filesystem
	Duration   time.Duration `json:"duration"`
}

// Engine is the extraction stage worker logic. When the parse queue runs
// dry it falls back to scanning the HTML directory for files without a
// matching text artifact, which reconciles any parse-task losses.
type Engine struct {
	queue      TaskQueue
	layout     *storage.Layout
	articles   repository.ArticleRepository
	stats      repository.StatsRepository
	maxRetries int
	logger     *slog.Logger
}

// NewEngine wires an extraction engine.
func NewEngine(
	taskQueue TaskQueue,
	layout *storage.Layout,
	articles repository.ArticleRepository,
	stats repository.StatsRepository,
	maxRetries int,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		queue:      taskQueue,
		layout:     layout,
		articles:   articles,
		stats:      stats,
		maxRetries: maxRetries,
		logger:     logger.With(slog.String("component", "extract")),
	}
}

// RunBatch pops and processes up to max parse tasks, topping the batch up
// from the filesystem when the queue is empty.
func (e *Engine) RunBatch(ctx context.Context, max int) (*BatchResult, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "extract.batch")
	defer span.End()

	start := time.Now()
	result := &BatchResult{}

	tasks, discovered, err := e.collectTasks(ctx, max)
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	result.Discovered = discovered

	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		task := &tasks[i]
		result.Processed++
		if err := e.processTask(ctx, task); err != nil {
			if pipeline.KindOf(err) == pipeline.KindDependencyDown {
				result.Duration = time.Since(start)
				return result, err
			}
			if e.handleFailure(ctx, *task, err) {
				result.Retried++
			} else {
				result.Failed++
			}
			continue
		}
		result.Succeeded++
		_ = e.queue.IncrCounter(ctx, queue.ParseTasks, "processed")
	}

	if result.Succeeded > 0 || result.Failed > 0 {
		date := time.Now().UTC().Format("2006-01-02")
		if err := e.stats.AddDailyStats(ctx, date, entity.DailyStats{
			ParsedCount: int64(result.Succeeded),
			FailedCount: int64(result.Failed),
		}); err != nil {
			e.logger.Warn("daily stats update failed", slog.Any("error", err))
		}
	}

	result.Duration = time.Since(start)
	if result.Processed > 0 {
		e.logger.Info("extract batch finished",
			slog.Int("processed", result.Processed),
			slog.Int("succeeded", result.Succeeded),
			slog.Int("retried", result.Retried),
			slog.Int("failed", result.Failed),
			slog.Int("file_discovered", result.Discovered),
			slog.Duration("duration", result.Duration))
	}
	return result, nil
}

// collectTasks drains up to max tasks from the parse queue; if the queue
// yields nothing it synthesizes tasks from HTML artifacts missing their
// text counterpart.
func (e *Engine) collectTasks(ctx context.Context, max int) ([]pipeline.Task, int, error) {
	tasks := make([]pipeline.Task, 0, max)
	for len(tasks) < max {
		task, err := e.queue.PopMin(ctx, queue.ParseTasks, popTimeout)
		if err != nil {
			return nil, 0, pipeline.NewStageError(pipeline.KindDependencyDown, err)
		}
		if task == nil {
			break
		}
		tasks = append(tasks, *task)
	}
	if len(tasks) > 0 {
		return tasks, 0, nil
	}

	// File-discovery mode.
	ids, err := e.layout.ListHTMLIDs()
	if err != nil {
		return nil, 0, pipeline.NewStageError(pipeline.KindResourceExhaustion, err)
	}
	discovered := 0
	for _, id := range ids {
		if len(tasks) >= max {
			break
		}
		if e.layout.HasText(id) {
			continue
		}
		tasks = append(tasks, pipeline.Task{
			ID:           id,
			Source:       pipeline.SourceDownload,
			CreatedAt:    time.Now().Unix(),
			HTMLFilePath: e.layout.HTMLPath(id),
		})
		discovered++
	}
	if discovered > 0 {
		e.logger.Info("synthesized tasks from filesystem scan",
			slog.Int("count", discovered))
	}
	return tasks, discovered, nil
}

func (e *Engine) processTask(ctx context.Context, task *pipeline.Task) error {
	if err := entity.ValidateArticleID(task.ID); err != nil {
		return pipeline.NewStageError(pipeline.KindInvalidTask, err)
	}

	if err := e.articles.SetStageStatus(ctx, task.ID, entity.StageParse, repository.StageUpdate{
		Status: entity.StatusProcessing,
	}); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, err)
	}

	htmlPath := task.HTMLFilePath
	if htmlPath == "" {
		htmlPath = e.layout.HTMLPath(task.ID)
	}
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		// A parse task without its HTML artifact cannot succeed, now or
		// on any retry.
		return pipeline.NewStageError(pipeline.KindInvalidTask,
			fmt.Errorf("html artifact missing: %w", err))
	}

	extracted, err := extractor.Extract(html, task.URL)
	if err != nil {
		return pipeline.NewStageError(pipeline.KindParseError, err)
	}

	textPath := e.layout.TextPath(task.ID)
	if err := storage.WriteFileAtomic(textPath, []byte(extracted.Text)); err != nil {
		return pipeline.NewStageError(pipeline.KindResourceExhaustion, err)
	}

	if err := e.articles.SetPaths(ctx, task.ID, entity.ArtifactPaths{
		ContentFilePath: textPath,
	}); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, err)
	}
	wordCount := text.CountRunes(extracted.Text)
	if err := e.articles.SetContentMetrics(ctx, task.ID,
		len(extracted.Text), wordCount, extracted.ImageCount); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, err)
	}
	if err := e.articles.SetStageStatus(ctx, task.ID, entity.StageParse, repository.StageUpdate{
		Status: entity.StatusCompleted,
	}); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, err)
	}

	e.updateManifest(task.ID, textPath, len(extracted.Text))
	metrics.RecordArticleParsed(len(extracted.Text))

	if err := e.queue.SetStatus(ctx, task.ID, "parsed", 0); err != nil {
		e.logger.Warn("status cache update failed",
			slog.String("article_id", task.ID),
			slog.Any("error", err))
	}
	return nil
}

// updateManifest folds extraction results into the article's metadata
// JSON. Best-effort: a missing or unreadable manifest is logged, not
// failed, since the text artifact is the source of truth.
func (e *Engine) updateManifest(id, textPath string, textLength int) {
	metadataPath := e.layout.MetadataPath(id)
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		e.logger.Warn("manifest unreadable, skipping extraction update",
			slog.String("article_id", id),
			slog.Any("error", err))
		return
	}
	doc["extraction_info"] = map[string]any{
		"text_length":  textLength,
		"extracted_at": time.Now().UTC().Format(time.RFC3339),
		"output_file":  textPath,
	}
	updated, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return
	}
	if err := storage.WriteFileAtomic(metadataPath, updated); err != nil {
		e.logger.Warn("manifest update failed",
			slog.String("article_id", id),
			slog.Any("error", err))
	}
}

// handleFailure applies the retry discipline; same shape as the download
// stage's.
func (e *Engine) handleFailure(ctx context.Context, task pipeline.Task, taskErr error) bool {
	retryable := pipeline.Retryable(taskErr)

	if retryable && task.RetryCount < e.maxRetries {
		score := queue.ScoreForRetry(task.RetryCount, time.Now())
		task.RetryCount++
		task.ErrorMessage = taskErr.Error()
		task.LastRetryAt = time.Now().Unix()

		if err := e.queue.Push(ctx, queue.ParseTasks, task, score); err != nil {
			e.logger.Error("retry push failed, task lost to deadletter",
				slog.String("article_id", task.ID),
				slog.Any("error", err))
			return e.deadletter(ctx, task, taskErr)
		}
		if err := e.articles.SetStageStatus(ctx, task.ID, entity.StageParse, repository.StageUpdate{
			Status: entity.StatusProcessing,
			Error:  taskErr,
		}); err != nil {
			e.logger.Error("retry status update failed",
				slog.String("article_id", task.ID),
				slog.Any("error", err))
		}
		e.logger.Warn("task re-queued with backoff",
			slog.String("article_id", task.ID),
			slog.Int("retry_count", task.RetryCount),
			slog.String("error", taskErr.Error()))
		return true
	}

	return e.deadletter(ctx, task, taskErr)
}

func (e *Engine) deadletter(ctx context.Context, task pipeline.Task, taskErr error) bool {
	if err := e.queue.PushDeadletter(ctx, task, taskErr.Error()); err != nil {
		e.logger.Error("deadletter push failed",
			slog.String("article_id", task.ID),
			slog.Any("error", err))
	}
	_ = e.queue.IncrCounter(ctx, queue.ParseTasks, "failed")
	metrics.RecordPipelineFailure("parse", pipeline.KindOf(taskErr).String())
	if err := e.articles.SetStageStatus(ctx, task.ID, entity.StageParse, repository.StageUpdate{
		Status: entity.StatusFailed,
		Error:  taskErr,
	}); err != nil {
		e.logger.Error("failure status update failed",
			slog.String("article_id", task.ID),
			slog.Any("error", err))
	}
	e.logger.Warn("task moved to deadletter",
		slog.String("article_id", task.ID),
		slog.Int("retry_count", task.RetryCount),
		slog.String("error", taskErr.Error()))
	return false
}
