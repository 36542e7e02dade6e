package postgres_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"genesis-connector/internal/domain/entity"
	pg "genesis-connector/internal/infra/adapter/persistence/postgres"
)

func TestStatsRepo_AddDailyStats(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO processing_stats").
		WithArgs("2026-07-19", int64(3), int64(0), int64(0), int64(0), int64(1),
			int64(0), int64(0), 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := pg.NewStatsRepo(db)
	err := repo.AddDailyStats(context.Background(), "2026-07-19", entity.DailyStats{
		DiscoveredCount: 3,
		FailedCount:     1,
	})
	if err != nil {
		t.Fatalf("AddDailyStats err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestStatsRepo_GetDailyStats_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("FROM processing_stats").
		WithArgs("2026-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"date"}))

	repo := pg.NewStatsRepo(db)
	got, err := repo.GetDailyStats(context.Background(), "2026-01-01")
	if err != nil || got != nil {
		t.Fatalf("GetDailyStats = %+v err=%v, want nil, nil", got, err)
	}
}
