package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"genesis-connector/internal/domain/entity"
	"genesis-connector/internal/repository"
)

type PublisherRepo struct{ db *sql.DB }

func NewPublisherRepo(db *sql.DB) repository.PublisherRepository {
	return &PublisherRepo{db: db}
}

func (repo *PublisherRepo) Upsert(ctx context.Context, publisher *entity.Publisher) error {
	if publisher.MPID == "" {
		return fmt.Errorf("Upsert: %w", &entity.ValidationError{Field: "mp_id", Message: "publisher mp_id is required"})
	}

	// total_articles counts sightings; GREATEST keeps last_article_time
	// monotone when feed entries arrive out of order.
	const query = `
INSERT INTO publishers
       (mp_id, mp_name, mp_nickname, avatar_url, description,
        total_articles, processed_articles, last_article_time, is_active, priority)
VALUES ($1, $2, $3, $4, $5, 1, 0, $6, TRUE, $7)
ON CONFLICT (mp_id) DO UPDATE SET
        mp_name           = EXCLUDED.mp_name,
        total_articles    = publishers.total_articles + 1,
        last_article_time = GREATEST(publishers.last_article_time, EXCLUDED.last_article_time)`
	_, err := repo.db.ExecContext(ctx, query,
		publisher.MPID, publisher.MPName, publisher.MPNickname,
		publisher.AvatarURL, publisher.Description,
		publisher.LastArticleTime, publisher.Priority,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *PublisherRepo) Get(ctx context.Context, mpID string) (*entity.Publisher, error) {
	const query = `
SELECT mp_id, mp_name, mp_nickname, avatar_url, description,
       total_articles, processed_articles, last_article_time, is_active, priority
FROM publishers
WHERE mp_id = $1
LIMIT 1`
	var (
		publisher entity.Publisher
		nickname  sql.NullString
		avatarURL sql.NullString
		desc      sql.NullString
	)
	err := repo.db.QueryRowContext(ctx, query, mpID).Scan(
		&publisher.MPID, &publisher.MPName, &nickname, &avatarURL, &desc,
		&publisher.TotalArticles, &publisher.ProcessedArticles,
		&publisher.LastArticleTime, &publisher.IsActive, &publisher.Priority,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	publisher.MPNickname = nickname.String
	publisher.AvatarURL = avatarURL.String
	publisher.Description = desc.String
	return &publisher, nil
}
