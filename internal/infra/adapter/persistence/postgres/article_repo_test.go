package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"genesis-connector/internal/domain/entity"
	pg "genesis-connector/internal/infra/adapter/persistence/postgres"
	"genesis-connector/internal/repository"
)

/* ─────────────────────────── helpers ─────────────────────────── */

var articleCols = []string{
	"id", "url", "title", "mp_name", "mp_id", "publish_time",
	"discovery_status", "download_status", "parse_status", "storage_status",
	"html_file_path", "content_file_path", "metadata_file_path", "images_dir_path",
	"content_length", "word_count", "image_count",
	"error_message", "error_details", "retry_count", "last_retry_at",
	"created_at", "updated_at", "discovered_at", "downloaded_at", "parsed_at", "stored_at",
}

func artRow(a *entity.Article) *sqlmock.Rows {
	return sqlmock.NewRows(articleCols).AddRow(
		a.ID, a.URL, a.Title, a.MPName, a.MPID, a.PublishTime,
		a.DiscoveryStatus, a.DownloadStatus, a.ParseStatus, a.StorageStatus,
		a.HTMLFilePath, a.ContentFilePath, a.MetadataFilePath, a.ImagesDirPath,
		a.ContentLength, a.WordCount, a.ImageCount,
		a.ErrorMessage, nil, a.RetryCount, a.LastRetryAt,
		a.CreatedAt, a.UpdatedAt, a.DiscoveredAt, a.DownloadedAt, a.ParsedAt, a.StoredAt,
	)
}

/* ─────────────────────────── 1. Get ─────────────────────────── */

func TestArticleRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2026, 7, 19, 0, 0, 0, 0, time.UTC)
	want := &entity.Article{
		ID: "A1", URL: "https://example.com/a1", Title: "hello",
		MPName: "pub", MPID: "mp-1", PublishTime: now.Unix(),
		DiscoveryStatus: entity.StatusCompleted,
		DownloadStatus:  entity.StatusPending,
		ParseStatus:     entity.StatusPending,
		StorageStatus:   entity.StatusPending,
		CreatedAt:       now, UpdatedAt: now,
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("A1").
		WillReturnRows(artRow(want))

	repo := pg.NewArticleRepo(db)
	got, err := repo.Get(context.Background(), "A1")
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestArticleRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("FROM articles").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(articleCols))

	repo := pg.NewArticleRepo(db)
	got, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if got != nil {
		t.Fatalf("Get = %+v, want nil", got)
	}
}

/* ─────────────────────────── 2. Upsert ─────────────────────────── */

func TestArticleRepo_Upsert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2026, 7, 19, 0, 0, 0, 0, time.UTC)
	a := entity.NewArticle("A1", "https://example.com/a1", "hello", "pub", "mp-1", now.Unix(), now)

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(a.ID, a.URL, a.Title, a.MPName, a.MPID, a.PublishTime,
			a.DiscoveryStatus, a.DownloadStatus, a.ParseStatus, a.StorageStatus,
			nil, a.CreatedAt, a.UpdatedAt, a.DiscoveredAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := pg.NewArticleRepo(db)
	if err := repo.Upsert(context.Background(), a); err != nil {
		t.Fatalf("Upsert err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestArticleRepo_Upsert_InvalidRow(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	repo := pg.NewArticleRepo(db)
	err := repo.Upsert(context.Background(), &entity.Article{URL: "https://example.com"})
	if err == nil {
		t.Fatal("Upsert accepted a row with no id")
	}
	var verr *entity.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

/* ─────────────────────────── 3. SetStageStatus ─────────────────────────── */

func TestArticleRepo_SetStageStatus_CompletedStampsTimestamp(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("SET download_status = \\$1, downloaded_at = \\$2").
		WithArgs(entity.StatusCompleted, sqlmock.AnyArg(), "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := pg.NewArticleRepo(db)
	err := repo.SetStageStatus(context.Background(), "A1", entity.StageDownload,
		repository.StageUpdate{Status: entity.StatusCompleted})
	if err != nil {
		t.Fatalf("SetStageStatus err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestArticleRepo_SetStageStatus_ErrorIncrementsRetries(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("retry_count = retry_count \\+ 1").
		WithArgs(entity.StatusFailed, "HTTP 404: not found", sqlmock.AnyArg(), "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := pg.NewArticleRepo(db)
	err := repo.SetStageStatus(context.Background(), "A1", entity.StageDownload,
		repository.StageUpdate{
			Status: entity.StatusFailed,
			Error:  errors.New("HTTP 404: not found"),
		})
	if err != nil {
		t.Fatalf("SetStageStatus err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestArticleRepo_SetStageStatus_RollbackOnError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("SET parse_status").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	repo := pg.NewArticleRepo(db)
	err := repo.SetStageStatus(context.Background(), "A1", entity.StageParse,
		repository.StageUpdate{Status: entity.StatusProcessing})
	if err == nil {
		t.Fatal("SetStageStatus succeeded on a failing exec")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestArticleRepo_SetStageStatus_UnknownStage(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	repo := pg.NewArticleRepo(db)
	err := repo.SetStageStatus(context.Background(), "A1", entity.Stage("bogus"),
		repository.StageUpdate{Status: entity.StatusPending})
	if err == nil {
		t.Fatal("SetStageStatus accepted an unknown stage")
	}
}

/* ─────────────────────────── 4. SetPaths ─────────────────────────── */

func TestArticleRepo_SetPaths_LeavesEmptyFieldsAlone(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE articles").
		WithArgs("/data/html/A1.html", "", "/data/metadata/A1.json", "/data/images/A1",
			sqlmock.AnyArg(), "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := pg.NewArticleRepo(db)
	err := repo.SetPaths(context.Background(), "A1", entity.ArtifactPaths{
		HTMLFilePath:     "/data/html/A1.html",
		MetadataFilePath: "/data/metadata/A1.json",
		ImagesDirPath:    "/data/images/A1",
	})
	if err != nil {
		t.Fatalf("SetPaths err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ─────────────────────────── 5. ListPending ─────────────────────────── */

func TestArticleRepo_ListPending(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2026, 7, 19, 0, 0, 0, 0, time.UTC)
	a := &entity.Article{
		ID: "A1", URL: "https://example.com/a1",
		DiscoveryStatus: entity.StatusCompleted,
		DownloadStatus:  entity.StatusPending,
		ParseStatus:     entity.StatusPending,
		StorageStatus:   entity.StatusPending,
		CreatedAt:       now, UpdatedAt: now,
	}
	mock.ExpectQuery("WHERE download_status = \\$1").
		WithArgs(entity.StatusPending, 10).
		WillReturnRows(artRow(a))

	repo := pg.NewArticleRepo(db)
	got, err := repo.ListPending(context.Background(), entity.StageDownload, 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListPending err=%v len=%d", err, len(got))
	}
	if got[0].ID != "A1" {
		t.Errorf("got[0].ID = %q, want A1", got[0].ID)
	}
}
