package repository

import (
	"context"

	"genesis-connector/internal/domain/entity"
)

// StageUpdate carries the optional error bookkeeping attached to a stage
// status transition. A nil Error means a clean transition; a non-nil Error
// additionally increments retry_count and stamps last_retry_at.
type StageUpdate struct {
	Status entity.StageStatus
	Error  error
}

// ArticleRepository is the per-article state store. Rows are keyed by the
// upstream article id (a string, not a database serial), created once by
// discovery, and mutated by whichever stage currently owns them. Rows are
// never deleted.
type ArticleRepository interface {
	// Upsert inserts the row, or refreshes url/title/publisher fields and
	// updated_at if a row with the same id already exists.
	Upsert(ctx context.Context, article *entity.Article) error

	// Get returns the row for id, or (nil, nil) if no row exists.
	Get(ctx context.Context, id string) (*entity.Article, error)

	// SetStageStatus transitions one stage's status. A completed transition
	// atomically stamps the stage's completion timestamp (discovered_at,
	// downloaded_at, parsed_at or stored_at). A transition carrying an error
	// increments retry_count and records error_message and last_retry_at.
	SetStageStatus(ctx context.Context, id string, stage entity.Stage, update StageUpdate) error

	// SetPaths records artifact locations on the row. Empty fields are left
	// untouched so download and parse can each record their own paths.
	SetPaths(ctx context.Context, id string, paths entity.ArtifactPaths) error

	// SetContentMetrics records the derived metrics the parse stage computes.
	SetContentMetrics(ctx context.Context, id string, contentLength, wordCount, imageCount int) error

	// ListPending returns up to limit rows whose status for the given stage
	// is pending, oldest first.
	ListPending(ctx context.Context, stage entity.Stage, limit int) ([]*entity.Article, error)

	// Health verifies the backing store is reachable.
	Health(ctx context.Context) error
}
