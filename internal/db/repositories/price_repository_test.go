package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

var priceCols = []string{
	"id", "hospital_id", "code", "code_type", "description", "gross_charge",
	"discounted_cash", "payer_name", "plan_name", "created_at", "updated_at",
}

func f64ptr(f float64) *float64 { return &f }

func newPriceRepo(t *testing.T) (*PriceRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPriceRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestPriceList_CodeFilter(t *testing.T) {
	repo, mock := newPriceRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM prices`).
		WithArgs("h-1", "99213").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("FROM prices").
		WithArgs("h-1", "99213", 20, 0).
		WillReturnRows(sqlmock.NewRows(priceCols).
			AddRow("p-1", "h-1", "99213", models.CodeTypeCPT, "Office visit",
				f64ptr(250), f64ptr(175), strptr("Aetna"), nil, time.Now(), time.Now()))

	prices, total, err := repo.List(context.Background(), PriceFilters{HospitalID: "h-1", Code: "99213"}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(prices) != 1 {
		t.Fatalf("total=%d len=%d, want 1/1", total, len(prices))
	}
	if prices[0].GrossCharge == nil || *prices[0].GrossCharge != 250 {
		t.Errorf("GrossCharge = %v, want 250", prices[0].GrossCharge)
	}
}

// ---------------------------------------------------------------------------
// ReplaceForHospital
// ---------------------------------------------------------------------------

func TestReplaceForHospital(t *testing.T) {
	repo, mock := newPriceRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM prices").
		WithArgs("h-1").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("INSERT INTO prices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO prices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch := []*models.Price{
		{Code: "99213", CodeType: models.CodeTypeCPT, Description: "Office visit"},
		{Code: "470", CodeType: models.CodeTypeDRG, Description: "Major joint replacement"},
	}
	n, err := repo.ReplaceForHospital(context.Background(), "h-1", batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceForHospital_RollsBackOnInsertError(t *testing.T) {
	repo, mock := newPriceRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM prices").
		WithArgs("h-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO prices").
		WillReturnError(errDB)
	mock.ExpectRollback()

	batch := []*models.Price{{Code: "99213", CodeType: models.CodeTypeCPT}}
	_, err := repo.ReplaceForHospital(context.Background(), "h-1", batch)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceForHospital_EmptyBatchClearsPrices(t *testing.T) {
	repo, mock := newPriceRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM prices").
		WithArgs("h-1").
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectCommit()

	n, err := repo.ReplaceForHospital(context.Background(), "h-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0", n)
	}
}

// ---------------------------------------------------------------------------
// CountForHospital
// ---------------------------------------------------------------------------

func TestCountForHospital(t *testing.T) {
	repo, mock := newPriceRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM prices`).
		WithArgs("h-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1234))

	count, err := repo.CountForHospital(context.Background(), "h-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1234 {
		t.Errorf("count = %d, want 1234", count)
	}
}
