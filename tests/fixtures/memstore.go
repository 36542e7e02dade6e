package fixtures

import (
	"context"
	"errors"
	"sync"
	"time"

	"genesis-connector/internal/domain/entity"
	"genesis-connector/internal/repository"
)

// MemArticleRepo is an in-memory repository.ArticleRepository for engine
// tests. It mirrors the store's contract closely enough for pipeline
// logic: completion stamps timestamps, errors bump retry counters.
type MemArticleRepo struct {
	mu        sync.Mutex
	rows      map[string]*entity.Article
	HealthErr error
}

func NewMemArticleRepo() *MemArticleRepo {
	return &MemArticleRepo{rows: make(map[string]*entity.Article)}
}

// Seed inserts a row directly, bypassing validation.
func (m *MemArticleRepo) Seed(a *entity.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *a
	m.rows[a.ID] = &copied
}

func (m *MemArticleRepo) Upsert(ctx context.Context, a *entity.Article) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *a
	m.rows[a.ID] = &copied
	return nil
}

func (m *MemArticleRepo) Get(ctx context.Context, id string) (*entity.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (m *MemArticleRepo) SetStageStatus(ctx context.Context, id string, stage entity.Stage, update repository.StageUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return errors.New("no row for " + id)
	}
	now := time.Now().UTC()
	switch stage {
	case entity.StageDiscovery:
		row.DiscoveryStatus = update.Status
		if update.Status == entity.StatusCompleted {
			row.DiscoveredAt = &now
		}
	case entity.StageDownload:
		row.DownloadStatus = update.Status
		if update.Status == entity.StatusCompleted {
			row.DownloadedAt = &now
		}
	case entity.StageParse:
		row.ParseStatus = update.Status
		if update.Status == entity.StatusCompleted {
			row.ParsedAt = &now
		}
	case entity.StageStorage:
		row.StorageStatus = update.Status
		if update.Status == entity.StatusCompleted {
			row.StoredAt = &now
		}
	default:
		return errors.New("unknown stage " + string(stage))
	}
	if update.Error != nil {
		row.RetryCount++
		row.ErrorMessage = update.Error.Error()
		row.LastRetryAt = &now
	}
	row.UpdatedAt = now
	return nil
}

func (m *MemArticleRepo) SetPaths(ctx context.Context, id string, paths entity.ArtifactPaths) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return errors.New("no row for " + id)
	}
	if paths.HTMLFilePath != "" {
		row.HTMLFilePath = paths.HTMLFilePath
	}
	if paths.ContentFilePath != "" {
		row.ContentFilePath = paths.ContentFilePath
	}
	if paths.MetadataFilePath != "" {
		row.MetadataFilePath = paths.MetadataFilePath
	}
	if paths.ImagesDirPath != "" {
		row.ImagesDirPath = paths.ImagesDirPath
	}
	return nil
}

func (m *MemArticleRepo) SetContentMetrics(ctx context.Context, id string, contentLength, wordCount, imageCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.ContentLength = contentLength
		row.WordCount = wordCount
		row.ImageCount = imageCount
	}
	return nil
}

func (m *MemArticleRepo) ListPending(ctx context.Context, stage entity.Stage, limit int) ([]*entity.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Article
	for _, row := range m.rows {
		if len(out) >= limit {
			break
		}
		if row.Status(stage) == entity.StatusPending {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MemArticleRepo) Health(ctx context.Context) error { return m.HealthErr }

// MemPublisherRepo is an in-memory repository.PublisherRepository.
type MemPublisherRepo struct {
	mu   sync.Mutex
	rows map[string]*entity.Publisher
}

func NewMemPublisherRepo() *MemPublisherRepo {
	return &MemPublisherRepo{rows: make(map[string]*entity.Publisher)}
}

func (m *MemPublisherRepo) Upsert(ctx context.Context, p *entity.Publisher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[p.MPID]; ok {
		existing.TotalArticles++
		if p.LastArticleTime > existing.LastArticleTime {
			existing.LastArticleTime = p.LastArticleTime
		}
		return nil
	}
	copied := *p
	copied.TotalArticles = 1
	m.rows[p.MPID] = &copied
	return nil
}

func (m *MemPublisherRepo) Get(ctx context.Context, mpID string) (*entity.Publisher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[mpID]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

// Seed inserts a publisher row directly.
func (m *MemPublisherRepo) Seed(p *entity.Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	m.rows[p.MPID] = &copied
}

// MemStatsRepo is an in-memory repository.StatsRepository accumulating
// per-day deltas.
type MemStatsRepo struct {
	mu     sync.Mutex
	totals map[string]entity.DailyStats
}

func NewMemStatsRepo() *MemStatsRepo {
	return &MemStatsRepo{totals: make(map[string]entity.DailyStats)}
}

func (m *MemStatsRepo) AddDailyStats(ctx context.Context, date string, delta entity.DailyStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.totals[date]
	current.Date = date
	current.DiscoveredCount += delta.DiscoveredCount
	current.DownloadedCount += delta.DownloadedCount
	current.ParsedCount += delta.ParsedCount
	current.StoredCount += delta.StoredCount
	current.FailedCount += delta.FailedCount
	current.TotalContentSize += delta.TotalContentSize
	current.TotalWordCount += delta.TotalWordCount
	m.totals[date] = current
	return nil
}

func (m *MemStatsRepo) GetDailyStats(ctx context.Context, date string) (*entity.DailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stats, ok := m.totals[date]; ok {
		return &stats, nil
	}
	return nil, nil
}
