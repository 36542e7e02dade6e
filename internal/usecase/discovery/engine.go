// Package discovery implements the first pipeline stage: polling the
// upstream feed service, filtering out articles already seen, and seeding
// the download queue.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"genesis-connector/internal/domain/entity"
	"genesis-connector/internal/infra/feed"
	"genesis-connector/internal/observability/metrics"
	"genesis-connector/internal/observability/tracing"
	"genesis-connector/internal/pipeline"
	"genesis-connector/internal/queue"
	"genesis-connector/internal/repository"
)

// Default windows and limits for the periodic and operator-forced runs.
const (
	defaultWindow   = 24 * time.Hour
	defaultLimit    = 1000
	forcedRunLimit  = 2000
	statusQueuedFor = "queued_for_download"
)

// FeedSource is the slice of the feed client discovery needs.
type FeedSource interface {
	Health(ctx context.Context) error
	Recent(ctx context.Context, since time.Time, limit int) ([]feed.Article, error)
	All(ctx context.Context, limit int) ([]feed.Article, error)
}

// TaskQueue is the slice of the queue substrate discovery needs.
type TaskQueue interface {
	Ping(ctx context.Context) error
	Push(ctx context.Context, queueName string, task pipeline.Task, score float64) error
	DedupCheckAndAdd(ctx context.Context, key string) (bool, error)
	SetStatus(ctx context.Context, id, payload string, ttl time.Duration) error
	IncrCounter(ctx context.Context, queueName, action string) error
}

// Result summarizes one discovery run.
type Result struct {
	Discovered  int           `json:"discovered"`
	NewArticles int           `json:"new_articles"`
	Duplicates  int           `json:"duplicates"`
	Errors      int           `json:"errors"`
	Duration    time.Duration `json:"duration"`
}

// Engine polls the feed and seeds download tasks. One run is a single
// pass over the recent article window; the scheduler decides cadence.
type Engine struct {
	feed       FeedSource
	queue      TaskQueue
	articles   repository.ArticleRepository
	publishers repository.PublisherRepository
	stats      repository.StatsRepository
	logger     *slog.Logger
}

// NewEngine wires a discovery engine. All dependencies are injected;
// the engine holds no connections of its own.
func NewEngine(
	feedSource FeedSource,
	taskQueue TaskQueue,
	articles repository.ArticleRepository,
	publishers repository.PublisherRepository,
	stats repository.StatsRepository,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		feed:       feedSource,
		queue:      taskQueue,
		articles:   articles,
		publishers: publishers,
		stats:      stats,
		logger:     logger.With(slog.String("component", "discovery")),
	}
}

// RunOnce performs one discovery pass over the last 24 hours.
func (e *Engine) RunOnce(ctx context.Context) (*Result, error) {
	return e.discover(ctx, defaultWindow, defaultLimit)
}

// ForceDiscovery performs an operator-triggered pass over a wider window
// with a raised article limit.
func (e *Engine) ForceDiscovery(ctx context.Context, hours int) (*Result, error) {
	if hours <= 0 {
		hours = 24
	}
	return e.discover(ctx, time.Duration(hours)*time.Hour, forcedRunLimit)
}

func (e *Engine) discover(ctx context.Context, window time.Duration, limit int) (*Result, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "discovery.run")
	defer span.End()

	start := time.Now()

	// A degraded dependency fails the whole run up front: seeding tasks
	// against a down queue or state store only manufactures retry noise.
	if err := e.healthCheck(ctx); err != nil {
		return nil, err
	}

	articles, err := e.fetchWindow(ctx, window, limit)
	if err != nil {
		return nil, err
	}

	result := &Result{Discovered: len(articles)}
	for _, article := range articles {
		outcome, err := e.processArticle(ctx, article)
		if err != nil {
			result.Errors++
			e.logger.Warn("article processing failed",
				slog.String("article_id", article.ID),
				slog.Any("error", err))
			continue
		}
		switch outcome {
		case outcomeNew:
			result.NewArticles++
		case outcomeDuplicate:
			result.Duplicates++
		}
	}

	if result.NewArticles > 0 {
		date := time.Now().UTC().Format("2006-01-02")
		if err := e.stats.AddDailyStats(ctx, date, entity.DailyStats{
			DiscoveredCount: int64(result.NewArticles),
		}); err != nil {
			// Stats are advisory; a failed increment does not fail the run.
			e.logger.Warn("daily stats update failed", slog.Any("error", err))
		}
	}

	metrics.RecordDiscoveryOutcomes(result.NewArticles, result.Duplicates, result.Errors)

	result.Duration = time.Since(start)
	e.logger.Info("discovery run finished",
		slog.Int("discovered", result.Discovered),
		slog.Int("new_articles", result.NewArticles),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// healthCheck verifies feed, queue and state store before a run.
func (e *Engine) healthCheck(ctx context.Context) error {
	if err := e.feed.Health(ctx); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, fmt.Errorf("feed service: %w", err))
	}
	if err := e.queue.Ping(ctx); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, fmt.Errorf("queue substrate: %w", err))
	}
	if err := e.articles.Health(ctx); err != nil {
		return pipeline.NewStageError(pipeline.KindDependencyDown, fmt.Errorf("state store: %w", err))
	}
	return nil
}

// fetchWindow tries the recent endpoint first and falls back to the full
// list filtered client-side. An empty recent result takes the same
// fallback path as an unavailable one.
func (e *Engine) fetchWindow(ctx context.Context, window time.Duration, limit int) ([]feed.Article, error) {
	since := time.Now().Add(-window)

	articles, err := e.feed.Recent(ctx, since, limit)
	if err == nil && len(articles) > 0 {
		return articles, nil
	}
	if err != nil {
		e.logger.Warn("recent endpoint unavailable, falling back to full list",
			slog.Any("error", err))
	}

	all, err := e.feed.All(ctx, limit)
	if err != nil {
		return nil, pipeline.NewStageError(pipeline.KindDependencyDown, fmt.Errorf("feed list: %w", err))
	}

	cutoff := since.Unix()
	filtered := make([]feed.Article, 0, len(all))
	for _, a := range all {
		if a.PublishTime >= cutoff {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

type articleOutcome int

const (
	outcomeNew articleOutcome = iota
	outcomeDuplicate
)

func (e *Engine) processArticle(ctx context.Context, article feed.Article) (articleOutcome, error) {
	if article.ID == "" || article.URL == "" {
		return 0, pipeline.NewStageError(pipeline.KindInvalidTask,
			fmt.Errorf("article missing id or url (id=%q url=%q)", article.ID, article.URL))
	}

	fresh, err := e.queue.DedupCheckAndAdd(ctx, pipeline.DedupKey(article.ID, article.URL))
	if err != nil {
		return 0, err
	}
	if !fresh {
		return outcomeDuplicate, nil
	}

	// An id colliding with an existing row is a duplicate even when the
	// url differs: the id wins, operators resolve divergence manually.
	existing, err := e.articles.Get(ctx, article.ID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return outcomeDuplicate, nil
	}

	priority := article.Priority
	if e.publishers != nil && article.MPID != "" {
		if priority == 0 {
			if publisher, err := e.publishers.Get(ctx, article.MPID); err == nil && publisher != nil {
				priority = publisher.Priority
			}
		}
		if err := e.publishers.Upsert(ctx, &entity.Publisher{
			MPID:            article.MPID,
			MPName:          article.MPName,
			LastArticleTime: article.PublishTime,
		}); err != nil {
			e.logger.Warn("publisher upsert failed",
				slog.String("mp_id", article.MPID),
				slog.Any("error", err))
		}
	}

	now := time.Now().UTC()
	row := entity.NewArticle(article.ID, article.URL, article.Title,
		article.MPName, article.MPID, article.PublishTime, now)
	discoveredAt := now
	row.DiscoveredAt = &discoveredAt
	if err := e.articles.Upsert(ctx, row); err != nil {
		return 0, err
	}

	task := pipeline.NewDiscoveryTask(article.ID, article.URL, article.Title,
		article.MPName, article.MPID, priority, now)
	if err := e.queue.Push(ctx, queue.DownloadTasks, task, queue.ScoreForNewTask(priority, now)); err != nil {
		if serr := e.articles.SetStageStatus(ctx, article.ID, entity.StageDiscovery, repository.StageUpdate{
			Status: entity.StatusFailed,
			Error:  err,
		}); serr != nil {
			e.logger.Error("status update failed after push failure",
				slog.String("article_id", article.ID),
				slog.Any("error", serr))
		}
		return 0, err
	}
	_ = e.queue.IncrCounter(ctx, queue.DownloadTasks, "added")

	if err := e.articles.SetStageStatus(ctx, article.ID, entity.StageDiscovery, repository.StageUpdate{
		Status: entity.StatusCompleted,
	}); err != nil {
		return 0, err
	}
	if err := e.queue.SetStatus(ctx, article.ID, statusQueuedFor, 0); err != nil {
		e.logger.Warn("status cache update failed",
			slog.String("article_id", article.ID),
			slog.Any("error", err))
	}

	return outcomeNew, nil
}
