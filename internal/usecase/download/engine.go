// Package download implements the second pipeline stage: consuming
// download tasks, fetching article HTML and inline images, persisting
// artifacts, and seeding the parse queue.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"genesis-connector/internal/domain/entity"
	"genesis-connector/internal/infra/fetcher"
	"genesis-connector/internal/infra/storage"
	"genesis-connector/internal/observability/metrics"
	"genesis-connector/internal/observability/tracing"
	"genesis-connector/internal/pipeline"
	"genesis-connector/internal/queue"
	"genesis-connector/internal/repository"
	"genesis-connector/internal/resilience/retry"
)

const statusQueuedForKey = "queued_for_parse"

// popTimeout bounds how long a batch waits on an empty queue.
var popTimeout = 5 * time.Second

// TaskQueue is the slice of the queue substrate the download stage needs.
type TaskQueue interface {
	PopMin(ctx context.Context, queueName string, timeout time.Duration) (*pipeline.Task, error)
	Push(ctx context.Context, queueName string, task pipeline.Task, score float64) error
	PushDeadletter(ctx context.Context, task pipeline.Task, errMessage string) error
	SetStatus(ctx context.Context, id, payload string, ttl time.Duration) error
	IncrCounter(ctx context.Context, queueName, action string) error
}

// PageFetcher is the slice of the HTML fetcher the download stage needs.
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (*fetcher.HTMLResult, error)
	DownloadImages(ctx context.Context, urls []string, destDir string) ([]fetcher.ImageResult, []fetcher.ImageFailure)
}

// BatchResult summarizes one worker batch.
type BatchResult struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Retried   int           `json:"retried"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Engine is the download stage worker logic. It is stateless between
// batches; all state lives in the queue, the state store and the
// filesystem, which is what makes re-processing safe.
type Engine struct {
	queue      TaskQueue
	fetcher    PageFetcher
	layout     *storage.Layout
	articles   repository.ArticleRepository
	stats      repository.StatsRepository
	maxRetries int
	maxImages  int
	logger     *slog.Logger
}

// NewEngine wires a download engine. maxRetries bounds re-queues per
// task; maxImages caps inline image fetches per article.
func NewEngine(
	taskQueue TaskQueue,
	pageFetcher PageFetcher,
	layout *storage.Layout,
	articles repository.ArticleRepository,
	stats repository.StatsRepository,
	maxRetries int,
	maxImages int,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		queue:      taskQueue,
		fetcher:    pageFetcher,
		layout:     layout,
		articles:   articles,
		stats:      stats,
		maxRetries: maxRetries,
		maxImages:  maxImages,
		logger:     logger.With(slog.String("component", "download")),
	}
}

// RunBatch pops and processes up to max tasks. It returns early when the
// queue runs dry. A dependency-down error aborts the batch and is
// returned to the supervisor; per-task errors are absorbed into the
// retry discipline.
func (e *Engine) RunBatch(ctx context.Context, max int) (*BatchResult, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "download.batch")
	defer span.End()

	start := time.Now()
	result := &BatchResult{}
	for i := 0; i < max; i++ {
		if ctx.Err() != nil {
			break
		}

		task, err := e.queue.PopMin(ctx, queue.DownloadTasks, popTimeout)
		if err != nil {
			result.Duration = time.Since(start)
			return result, pipeline.NewStageError(pipeline.KindDependencyDown, err)
		}
		if task == nil {
			break
		}

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
		_ = e.queue.IncrCounter(ctx, queue.DownloadTasks, "processed")
	}

	if result.Succeeded > 0 || result.Failed > 0 {
		date := time.Now().UTC().Format("2006-01-02")
		if err := e.stats.AddDailyStats(ctx, date, entity.DailyStats{
			DownloadedCount: int64(result.Succeeded),
			FailedCount:     int64(result.Failed),
		}); err != nil {
			e.logger.Warn("daily stats update failed", slog.Any("error", err))
		}
	}

	result.Duration = time.Since(start)
	if result.Processed > 0 {
		e.logger.Info("download batch finished",
			slog.Int("processed", result.Processed),
			slog.Int("succeeded", result.Succeeded),
			slog.Int("retried", result.Retried),
			slog.Int("failed", result.Failed),
			slog.Duration("duration", result.Duration))
	}
	return result, nil
}

func (e *Engine) processTask(ctx context.Context, task *pipeline.Task) error {
	if err := entity.ValidateArticleID(task.ID); err != nil {
		return pipeline.NewStageError(pipeline.KindInvalidTask, err)
	}
	if task.URL == "" {
		return pipeline.NewStageError(pipeline.KindInvalidTask,
			fmt.Errorf("task %s missing url", task.ID))
	}

	if err := e.articles.SetStageStatus(ctx, task.ID, entity.StageDownload, repository.StageUpdate{
		Status: entity.StatusProcessing,
	}); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, err)
	}

	downloadedAt := time.Now().UTC()
	page, err := e.fetcher.FetchHTML(ctx, task.URL)
	if err != nil {
		return classifyFetchError(err)
	}

	htmlPath := e.layout.HTMLPath(task.ID)
	if err := storage.WriteFileAtomic(htmlPath, []byte(page.HTML)); err != nil {
		return pipeline.NewStageError(pipeline.KindResourceExhaustion, err)
	}

	imageURLs := fetcher.ExtractImageURLs(page.HTML, e.maxImages)
	var (
		images   []fetcher.ImageResult
		failures []fetcher.ImageFailure
	)
	imagesDir := ""
	if len(imageURLs) > 0 {
		imagesDir, err = e.layout.EnsureImagesDir(task.ID)
		if err != nil {
			return pipeline.NewStageError(pipeline.KindResourceExhaustion, err)
		}
		images, failures = e.fetcher.DownloadImages(ctx, imageURLs, imagesDir)
		for _, failure := range failures {
			e.logger.Warn("image download failed",
				slog.String("article_id", task.ID),
				slog.String("url", failure.URL),
				slog.String("error", failure.Error))
		}
	}

	// The envelope does not carry publish_time; the row does.
	var publishTime int64
	if row, err := e.articles.Get(ctx, task.ID); err == nil && row != nil {
		publishTime = row.PublishTime
	}

	metadataPath := e.layout.MetadataPath(task.ID)
	manifest := buildManifest(task, page, htmlPath, imagesDir, publishTime, downloadedAt, images, failures)
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return pipeline.NewStageError(pipeline.KindInvalidTask, err)
	}
	if err := storage.WriteFileAtomic(metadataPath, manifestJSON); err != nil {
		return pipeline.NewStageError(pipeline.KindResourceExhaustion, err)
	}

	if err := e.articles.SetPaths(ctx, task.ID, entity.ArtifactPaths{
		HTMLFilePath:     htmlPath,
		MetadataFilePath: metadataPath,
		ImagesDirPath:    imagesDir,
	}); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, err)
	}
	if err := e.articles.SetStageStatus(ctx, task.ID, entity.StageDownload, repository.StageUpdate{
		Status: entity.StatusCompleted,
	}); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, err)
	}

	// The parse-task push is not deduplicated here: a crash between the
	// status write and this push re-runs the whole task, and the parse
	// stage tolerates the duplicate.
	parseTask := pipeline.NewParseTask(*task, htmlPath, time.Now())
	if err := e.queue.Push(ctx, queue.ParseTasks, parseTask,
		queue.ScoreForNewTask(task.Priority, time.Now())); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, err)
	}
	_ = e.queue.IncrCounter(ctx, queue.ParseTasks, "added")
	metrics.RecordArticleDownloaded(len(images), len(failures))
	if err := e.queue.SetStatus(ctx, task.ID, statusQueuedForKey, 0); err != nil {
		e.logger.Warn("status cache update failed",
			slog.String("article_id", task.ID),
			slog.Any("error", err))
	}

	return nil
}

// handleFailure applies the retry discipline to a failed task. Returns
// true when the task was re-queued with backoff, false when it went to
// the deadletter.
func (e *Engine) handleFailure(ctx context.Context, task pipeline.Task, taskErr error) bool {
	retryable := pipeline.Retryable(taskErr)

	if retryable && task.RetryCount < e.maxRetries {
		// The backoff is computed from the pre-increment count so the
		// first retry waits 60s, the second 120s, and so on.
		score := queue.ScoreForRetry(task.RetryCount, time.Now())
		task.RetryCount++
		task.ErrorMessage = taskErr.Error()
		task.LastRetryAt = time.Now().Unix()

		if err := e.queue.Push(ctx, queue.DownloadTasks, task, score); err != nil {
			e.logger.Error("retry push failed, task lost to deadletter",
				slog.String("article_id", task.ID),
				slog.Any("error", err))
			return e.deadletter(ctx, task, taskErr)
		}
		if err := e.articles.SetStageStatus(ctx, task.ID, entity.StageDownload, repository.StageUpdate{
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
	_ = e.queue.IncrCounter(ctx, queue.DownloadTasks, "failed")
	metrics.RecordPipelineFailure("download", pipeline.KindOf(taskErr).String())
	if err := e.articles.SetStageStatus(ctx, task.ID, entity.StageDownload, repository.StageUpdate{
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

// classifyFetchError maps fetch failures onto the error taxonomy.
func classifyFetchError(err error) error {
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500,
			httpErr.StatusCode == http.StatusTooManyRequests,
			httpErr.StatusCode == http.StatusRequestTimeout:
			return pipeline.NewStageError(pipeline.KindTransientNetwork, err)
		default:
			return pipeline.NewStageError(pipeline.KindPermanentNetwork, err)
		}
	}
	if errors.Is(err, fetcher.ErrInvalidURL) || errors.Is(err, fetcher.ErrPrivateIP) {
		return pipeline.NewStageError(pipeline.KindInvalidTask, err)
	}
	if errors.Is(err, fetcher.ErrBodyTooLarge) {
		return pipeline.NewStageError(pipeline.KindParseError, err)
	}
	// Timeouts, connection resets, circuit-breaker rejections.
	return pipeline.NewStageError(pipeline.KindTransientNetwork, err)
}

// manifest is the metadata JSON written next to each download.
type manifest struct {
	ArticleID    string                 `json:"article_id"`
	Title        string                 `json:"title"`
	URL          string                 `json:"url"`
	MPName       string                 `json:"mp_name"`
	MPID         string                 `json:"mp_id"`
	PublishTime  int64                  `json:"publish_time"`
	DownloadInfo manifestDownloadInfo   `json:"download_info"`
	Images       []fetcher.ImageResult  `json:"images"`
	FailedImages []fetcher.ImageFailure `json:"failed_images"`
}

type manifestDownloadInfo struct {
	DownloadedAt string `json:"downloaded_at"`
	HTMLFile     string `json:"html_file"`
	HTMLSize     int    `json:"html_size"`
	HTMLEncoding string `json:"html_encoding"`
	ImagesDir    string `json:"images_dir"`
	ImageCount   int    `json:"image_count"`
	ImagesFailed int    `json:"images_failed"`
}

func buildManifest(task *pipeline.Task, page *fetcher.HTMLResult, htmlPath, imagesDir string, publishTime int64, downloadedAt time.Time, images []fetcher.ImageResult, failures []fetcher.ImageFailure) manifest {
	if images == nil {
		images = []fetcher.ImageResult{}
	}
	if failures == nil {
		failures = []fetcher.ImageFailure{}
	}
	return manifest{
		ArticleID:   task.ID,
		Title:       task.Title,
		URL:         task.URL,
		MPName:      task.MPName,
		MPID:        task.MPID,
		PublishTime: publishTime,
		DownloadInfo: manifestDownloadInfo{
			DownloadedAt: downloadedAt.Format(time.RFC3339),
			HTMLFile:     htmlPath,
			HTMLSize:     page.Size,
			HTMLEncoding: page.Encoding,
			ImagesDir:    imagesDir,
			ImageCount:   len(images),
			ImagesFailed: len(failures),
		},
		Images:       images,
		FailedImages: failures,
	}
}
