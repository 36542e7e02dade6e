// Package postgres implements the state-store repositories on PostgreSQL
// via database/sql with the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"genesis-connector/internal/domain/entity"
	"genesis-connector/internal/repository"
)

type ArticleRepo struct{ db *sql.DB }

func NewArticleRepo(db *sql.DB) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

// stageColumns maps each stage to its status and completion-timestamp
// columns. Column names come from this whitelist only, never from input.
var stageColumns = map[entity.Stage]struct {
	status      string
	completedAt string
}{
	entity.StageDiscovery: {"discovery_status", "discovered_at"},
	entity.StageDownload:  {"download_status", "downloaded_at"},
	entity.StageParse:     {"parse_status", "parsed_at"},
	entity.StageStorage:   {"storage_status", "stored_at"},
}

const articleColumns = `
id, url, title, mp_name, mp_id, publish_time,
discovery_status, download_status, parse_status, storage_status,
html_file_path, content_file_path, metadata_file_path, images_dir_path,
content_length, word_count, image_count,
error_message, error_details, retry_count, last_retry_at,
created_at, updated_at, discovered_at, downloaded_at, parsed_at, stored_at`

func (repo *ArticleRepo) Upsert(ctx context.Context, article *entity.Article) error {
	if err := article.Validate(); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	details, err := marshalErrorDetails(article.ErrorDetails)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	const query = `
INSERT INTO articles
       (id, url, title, mp_name, mp_id, publish_time,
        discovery_status, download_status, parse_status, storage_status,
        error_details, created_at, updated_at, discovered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
        url          = EXCLUDED.url,
        title        = EXCLUDED.title,
        mp_name      = EXCLUDED.mp_name,
        mp_id        = EXCLUDED.mp_id,
        publish_time = EXCLUDED.publish_time,
        updated_at   = EXCLUDED.updated_at`
	_, err = repo.db.ExecContext(ctx, query,
		article.ID, article.URL, article.Title, article.MPName, article.MPID,
		article.PublishTime,
		article.DiscoveryStatus, article.DownloadStatus, article.ParseStatus,
		article.StorageStatus,
		details, article.CreatedAt, article.UpdatedAt, article.DiscoveredAt,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) Get(ctx context.Context, id string) (*entity.Article, error) {
	query := `SELECT ` + articleColumns + `
FROM articles
WHERE id = $1
LIMIT 1`
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) SetStageStatus(ctx context.Context, id string, stage entity.Stage, update repository.StageUpdate) error {
	cols, ok := stageColumns[stage]
	if !ok {
		return fmt.Errorf("SetStageStatus: unknown stage %q", stage)
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SetStageStatus: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	switch {
	case update.Error != nil:
		query := fmt.Sprintf(`
UPDATE articles
SET %s = $1, error_message = $2, retry_count = retry_count + 1,
    last_retry_at = $3, updated_at = $3
WHERE id = $4`, cols.status)
		if _, err := tx.ExecContext(ctx, query, update.Status, update.Error.Error(), now, id); err != nil {
			return fmt.Errorf("SetStageStatus: %w", err)
		}
	case update.Status == entity.StatusCompleted:
		// Completion stamps the stage timestamp in the same statement so the
		// status and its timestamp can never disagree.
		query := fmt.Sprintf(`
UPDATE articles
SET %s = $1, %s = $2, updated_at = $2
WHERE id = $3`, cols.status, cols.completedAt)
		if _, err := tx.ExecContext(ctx, query, update.Status, now, id); err != nil {
			return fmt.Errorf("SetStageStatus: %w", err)
		}
	default:
		query := fmt.Sprintf(`
UPDATE articles
SET %s = $1, updated_at = $2
WHERE id = $3`, cols.status)
		if _, err := tx.ExecContext(ctx, query, update.Status, now, id); err != nil {
			return fmt.Errorf("SetStageStatus: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SetStageStatus: commit: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) SetPaths(ctx context.Context, id string, paths entity.ArtifactPaths) error {
	// COALESCE(NULLIF(...)) keeps existing values for fields the caller left
	// empty, so download and parse can each record their own artifacts.
	const query = `
UPDATE articles
SET html_file_path     = COALESCE(NULLIF($1, ''), html_file_path),
    content_file_path  = COALESCE(NULLIF($2, ''), content_file_path),
    metadata_file_path = COALESCE(NULLIF($3, ''), metadata_file_path),
    images_dir_path    = COALESCE(NULLIF($4, ''), images_dir_path),
    updated_at         = $5
WHERE id = $6`
	_, err := repo.db.ExecContext(ctx, query,
		paths.HTMLFilePath, paths.ContentFilePath, paths.MetadataFilePath,
		paths.ImagesDirPath, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("SetPaths: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) SetContentMetrics(ctx context.Context, id string, contentLength, wordCount, imageCount int) error {
	const query = `
UPDATE articles
SET content_length = $1, word_count = $2, image_count = $3, updated_at = $4
WHERE id = $5`
	_, err := repo.db.ExecContext(ctx, query,
		contentLength, wordCount, imageCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("SetContentMetrics: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) ListPending(ctx context.Context, stage entity.Stage, limit int) ([]*entity.Article, error) {
	cols, ok := stageColumns[stage]
	if !ok {
		return nil, fmt.Errorf("ListPending: unknown stage %q", stage)
	}

	query := fmt.Sprintf(`SELECT `+articleColumns+`
FROM articles
WHERE %s = $1
ORDER BY created_at ASC
LIMIT $2`, cols.status)
	rows, err := repo.db.QueryContext(ctx, query, entity.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, limit)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPending: Scan: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

func (repo *ArticleRepo) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repo.db.PingContext(ctx); err != nil {
		return fmt.Errorf("Health: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (*entity.Article, error) {
	var (
		article      entity.Article
		title        sql.NullString
		mpName       sql.NullString
		mpID         sql.NullString
		htmlPath     sql.NullString
		contentPath  sql.NullString
		metadataPath sql.NullString
		imagesDir    sql.NullString
		errorMessage sql.NullString
		errorDetails []byte
		lastRetryAt  sql.NullTime
		discoveredAt sql.NullTime
		downloadedAt sql.NullTime
		parsedAt     sql.NullTime
		storedAt     sql.NullTime
	)
	err := row.Scan(
		&article.ID, &article.URL, &title, &mpName, &mpID, &article.PublishTime,
		&article.DiscoveryStatus, &article.DownloadStatus, &article.ParseStatus,
		&article.StorageStatus,
		&htmlPath, &contentPath, &metadataPath, &imagesDir,
		&article.ContentLength, &article.WordCount, &article.ImageCount,
		&errorMessage, &errorDetails, &article.RetryCount, &lastRetryAt,
		&article.CreatedAt, &article.UpdatedAt,
		&discoveredAt, &downloadedAt, &parsedAt, &storedAt,
	)
	if err != nil {
		return nil, err
	}

	article.Title = title.String
	article.MPName = mpName.String
	article.MPID = mpID.String
	article.HTMLFilePath = htmlPath.String
	article.ContentFilePath = contentPath.String
	article.MetadataFilePath = metadataPath.String
	article.ImagesDirPath = imagesDir.String
	article.ErrorMessage = errorMessage.String
	if len(errorDetails) > 0 {
		if err := json.Unmarshal(errorDetails, &article.ErrorDetails); err != nil {
			return nil, fmt.Errorf("error_details: %w", err)
		}
	}
	article.LastRetryAt = nullTimePtr(lastRetryAt)
	article.DiscoveredAt = nullTimePtr(discoveredAt)
	article.DownloadedAt = nullTimePtr(downloadedAt)
	article.ParsedAt = nullTimePtr(parsedAt)
	article.StoredAt = nullTimePtr(storedAt)
	return &article, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func marshalErrorDetails(details map[string]any) (any, error) {
	if details == nil {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("error_details: %w", err)
	}
	return data, nil
}
