package database_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/database"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
)

func newMockRepo(t *testing.T) (*database.HitRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	return database.NewHitRepository(db), mock
}

func TestHitRepository_BulkInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	hits := []domain.ValidatedHit{
		{
			TaskID:         "task-1",
			MainURL:        "https://shop.example",
			SubURL:         "https://shop.example/pay",
			Category:       "payments",
			MatchedKeyword: "merchant@upi",
			Snippet:        "pay merchant@upi now",
			Source:         domain.SourceContext,
			Confidence:     0.85,
		},
		{
			TaskID:         "task-1",
			MainURL:        "https://shop.example",
			SubURL:         "https://shop.example/shop",
			Category:       "narcotics",
			MatchedKeyword: "weed",
			Snippet:        "buy weed online",
			Source:         domain.SourceRegex,
			Confidence:     1.0,
		},
	}

	mock.ExpectExec("INSERT INTO analysis_hits").
		WithArgs(
			"task-1", "https://shop.example", "https://shop.example/pay",
			"payments", "merchant@upi", "pay merchant@upi now", "context", 0.85,
			"task-1", "https://shop.example", "https://shop.example/shop",
			"narcotics", "weed", "buy weed online", "regex", 1.0,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.BulkInsert(ctx, hits); err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHitRepository_BulkInsert_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)

	if err := repo.BulkInsert(context.Background(), nil); err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected no queries for empty batch: %v", err)
	}
}

func TestHitRepository_AttachScreenshot(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE analysis_hits").
		WithArgs("/bucket/screenshots/task-1/abc.png", "task-1", "https://shop.example/pay", "merchant@upi").
		WillReturnResult(sqlmock.NewResult(0, 1))

	attached, err := repo.AttachScreenshot(ctx, "task-1", "https://shop.example/pay", "merchant@upi", "/bucket/screenshots/task-1/abc.png")
	if err != nil {
		t.Fatalf("AttachScreenshot() error = %v", err)
	}
	if !attached {
		t.Error("expected attached=true when a row matched")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHitRepository_AttachScreenshot_NoRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE analysis_hits").
		WithArgs("/p.png", "task-1", "https://shop.example/pay", "merchant@upi").
		WillReturnResult(sqlmock.NewResult(0, 0))

	attached, err := repo.AttachScreenshot(context.Background(), "task-1", "https://shop.example/pay", "merchant@upi", "/p.png")
	if err != nil {
		t.Fatalf("AttachScreenshot() error = %v", err)
	}
	if attached {
		t.Error("expected attached=false when no row matched")
	}
}

func TestHitRepository_CountByTask(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountByTask(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("CountByTask() error = %v", err)
	}
	if count != 7 {
		t.Errorf("expected count=7, got %d", count)
	}
}
