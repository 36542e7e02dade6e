package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"genesis-connector/internal/domain/entity"
	"genesis-connector/internal/repository"
)

type StatsRepo struct{ db *sql.DB }

func NewStatsRepo(db *sql.DB) repository.StatsRepository {
	return &StatsRepo{db: db}
}

func (repo *StatsRepo) AddDailyStats(ctx context.Context, date string, delta entity.DailyStats) error {
	const query = `
INSERT INTO processing_stats
       (date, discovered_count, downloaded_count, parsed_count, stored_count,
        failed_count, total_content_size, total_word_count,
        avg_download_time_seconds, avg_parse_time_seconds)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (date) DO UPDATE SET
        discovered_count   = processing_stats.discovered_count + EXCLUDED.discovered_count,
        downloaded_count   = processing_stats.downloaded_count + EXCLUDED.downloaded_count,
        parsed_count       = processing_stats.parsed_count + EXCLUDED.parsed_count,
        stored_count       = processing_stats.stored_count + EXCLUDED.stored_count,
        failed_count       = processing_stats.failed_count + EXCLUDED.failed_count,
        total_content_size = processing_stats.total_content_size + EXCLUDED.total_content_size,
        total_word_count   = processing_stats.total_word_count + EXCLUDED.total_word_count,
        avg_download_time_seconds = EXCLUDED.avg_download_time_seconds,
        avg_parse_time_seconds    = EXCLUDED.avg_parse_time_seconds`
	_, err := repo.db.ExecContext(ctx, query, date,
		delta.DiscoveredCount, delta.DownloadedCount, delta.ParsedCount,
		delta.StoredCount, delta.FailedCount,
		delta.TotalContentSize, delta.TotalWordCount,
		delta.AvgDownloadTimeSeconds, delta.AvgParseTimeSeconds,
	)
	if err != nil {
		return fmt.Errorf("AddDailyStats: %w", err)
	}
	return nil
}

func (repo *StatsRepo) GetDailyStats(ctx context.Context, date string) (*entity.DailyStats, error) {
	const query = `
SELECT date, discovered_count, downloaded_count, parsed_count, stored_count,
       failed_count, total_content_size, total_word_count,
       avg_download_time_seconds, avg_parse_time_seconds
FROM processing_stats
WHERE date = $1
LIMIT 1`
	var stats entity.DailyStats
	err := repo.db.QueryRowContext(ctx, query, date).Scan(
		&stats.Date, &stats.DiscoveredCount, &stats.DownloadedCount,
		&stats.ParsedCount, &stats.StoredCount, &stats.FailedCount,
		&stats.TotalContentSize, &stats.TotalWordCount,
		&stats.AvgDownloadTimeSeconds, &stats.AvgParseTimeSeconds,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetDailyStats: %w", err)
	}
	return &stats, nil
}
