package repository

import (
	"context"

	"genesis-connector/internal/domain/entity"
)

// PublisherRepository tracks the upstream accounts articles are published
// under. DiscoveryEngine upserts a row per sighting and reads the stored
// priority to weight download tasks when the feed item carries none.
type PublisherRepository interface {
	// Upsert inserts or refreshes the publisher row keyed by mp_id,
	// incrementing total_articles and advancing last_article_time.
	Upsert(ctx context.Context, publisher *entity.Publisher) error

	// Get returns the publisher row for mpID, or (nil, nil) if absent.
	Get(ctx context.Context, mpID string) (*entity.Publisher, error)
}
