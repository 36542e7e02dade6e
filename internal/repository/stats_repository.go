package repository

import (
	"context"

	"genesis-connector/internal/domain/entity"
)

// StatsRepository accumulates per-day pipeline throughput. Deltas are
// additive: each stage reports only its own increments and the store sums
// them into the day's row.
type StatsRepository interface {
	// AddDailyStats adds delta's counters into the row for date
	// (YYYY-MM-DD, UTC), creating the row on first write.
	AddDailyStats(ctx context.Context, date string, delta entity.DailyStats) error

	// GetDailyStats returns the row for date, or (nil, nil) if absent.
	GetDailyStats(ctx context.Context, date string) (*entity.DailyStats, error)
}
