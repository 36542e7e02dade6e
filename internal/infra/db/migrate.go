package db

import (
	"database/sql"
)

// MigrateUp creates the state-store schema: the per-article row keyed by
// the upstream article id, the publisher registry, and the per-day
// throughput counters.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id                 TEXT PRIMARY KEY,
    url                TEXT NOT NULL,
    title              TEXT,
    mp_name            TEXT,
    mp_id              TEXT,
    publish_time       BIGINT NOT NULL DEFAULT 0,
    discovery_status   TEXT NOT NULL DEFAULT 'pending',
    download_status    TEXT NOT NULL DEFAULT 'pending',
    parse_status       TEXT NOT NULL DEFAULT 'pending',
    storage_status     TEXT NOT NULL DEFAULT 'pending',
    html_file_path     TEXT,
    content_file_path  TEXT,
    metadata_file_path TEXT,
    images_dir_path    TEXT,
    content_length     INTEGER NOT NULL DEFAULT 0,
    word_count         INTEGER NOT NULL DEFAULT 0,
    image_count        INTEGER NOT NULL DEFAULT 0,
    error_message      TEXT,
    error_details      JSONB,
    retry_count        INTEGER NOT NULL DEFAULT 0,
    last_retry_at      TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    discovered_at      TIMESTAMPTZ,
    downloaded_at      TIMESTAMPTZ,
    parsed_at          TIMESTAMPTZ,
    stored_at          TIMESTAMPTZ
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS publishers (
    mp_id              TEXT PRIMARY KEY,
    mp_name            TEXT NOT NULL,
    mp_nickname        TEXT,
    avatar_url         TEXT,
    description        TEXT,
    total_articles     INTEGER NOT NULL DEFAULT 0,
    processed_articles INTEGER NOT NULL DEFAULT 0,
    last_article_time  BIGINT NOT NULL DEFAULT 0,
    is_active          BOOLEAN NOT NULL DEFAULT TRUE,
    priority           INTEGER NOT NULL DEFAULT 0
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS processing_stats (
    date                      DATE PRIMARY KEY,
    discovered_count          BIGINT NOT NULL DEFAULT 0,
    downloaded_count          BIGINT NOT NULL DEFAULT 0,
    parsed_count              BIGINT NOT NULL DEFAULT 0,
    stored_count              BIGINT NOT NULL DEFAULT 0,
    failed_count              BIGINT NOT NULL DEFAULT 0,
    total_content_size        BIGINT NOT NULL DEFAULT 0,
    total_word_count          BIGINT NOT NULL DEFAULT 0,
    avg_download_time_seconds INTEGER NOT NULL DEFAULT 0,
    avg_parse_time_seconds    INTEGER NOT NULL DEFAULT 0
)`); err != nil {
		return err
	}

	// ListPending scans filter on one status column each; partial indexes
	// keep them cheap as completed rows accumulate.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_articles_download_pending ON articles(created_at) WHERE download_status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_articles_parse_pending ON articles(created_at) WHERE parse_status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_articles_mp_id ON articles(mp_id)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at DESC)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}

// MigrateDown rolls back the state-store schema.
// Use with caution: this deletes all pipeline state.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS processing_stats`,
		`DROP TABLE IF EXISTS publishers`,
		`DROP TABLE IF EXISTS articles`,
	}
	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
