package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

var errDB = errors.New("db error")

var activityCols = []string{
	"id", "user_id", "action", "resource_type", "resource_id", "metadata",
	"ip_address", "user_agent", "success", "error_message", "created_at",
}

var activityActorCols = append(append([]string{}, activityCols...),
	"actor_email", "actor_first_name", "actor_last_name")

func strptr(s string) *string { return &s }

func newActivityRepo(t *testing.T) (*ActivityRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewActivityRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// Insert
// ---------------------------------------------------------------------------

func TestActivityInsert_AssignsIDAndTimestamp(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectExec("INSERT INTO activity_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.ActivityLog{
		Action:   "hospital_view",
		Success:  true,
		Metadata: map[string]interface{}{"duration_ms": 12},
	}
	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be assigned")
	}
}

func TestActivityInsert_DBError(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectExec("INSERT INTO activity_logs").
		WillReturnError(errDB)

	err := repo.Insert(context.Background(), &models.ActivityLog{Action: "auth_login"})
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestActivityList_NoFilters(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM activity_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("LEFT JOIN users").
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows(activityActorCols).
			AddRow("log-1", strptr("user-1"), "hospital_view", strptr("hospital"), strptr("h-1"),
				[]byte(`{"duration_ms":12}`), strptr("10.0.0.1"), strptr("curl/8"), true, nil, time.Now(),
				strptr("alice@example.com"), strptr("Alice"), strptr("Smith")).
			AddRow("log-2", nil, "auth_login_failed", nil, nil,
				nil, strptr("10.0.0.2"), nil, false, strptr("invalid credentials"), time.Now(),
				nil, nil, nil))

	records, total, err := repo.List(context.Background(), ActivityFilters{}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Metadata["duration_ms"] != float64(12) {
		t.Errorf("metadata duration_ms = %v, want 12", records[0].Metadata["duration_ms"])
	}
	if records[0].ActorEmail == nil || *records[0].ActorEmail != "alice@example.com" {
		t.Errorf("actor email = %v, want alice@example.com", records[0].ActorEmail)
	}
	if records[1].ActorEmail != nil {
		t.Error("expected nil actor email for anonymous record")
	}
}

func TestActivityList_SuccessFilter(t *testing.T) {
	repo, mock := newActivityRepo(t)
	success := false
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM activity_logs`).
		WithArgs(false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("LEFT JOIN users").
		WithArgs(false, 10, 0).
		WillReturnRows(sqlmock.NewRows(activityActorCols))

	records, total, err := repo.List(context.Background(), ActivityFilters{Success: &success}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(records) != 0 {
		t.Errorf("expected empty result, got total=%d len=%d", total, len(records))
	}
}

func TestActivityList_CountError(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM activity_logs`).
		WillReturnError(errDB)

	_, _, err := repo.List(context.Background(), ActivityFilters{}, 50, 0)
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func TestActivityStats(t *testing.T) {
	repo, mock := newActivityRepo(t)
	now := time.Now().UTC()
	since := now.Add(-7 * 24 * time.Hour)

	mock.ExpectQuery(`COUNT\(\*\) FILTER`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"total", "success_count", "distinct_actors"}).
			AddRow(10, 7, 3))
	mock.ExpectQuery("GROUP BY action").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"action", "count"}).
			AddRow("hospital_view", 6).
			AddRow("auth_login", 4))
	mock.ExpectQuery("SELECT created_at").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).
			AddRow(now.Add(-30 * time.Minute)).
			AddRow(now.Add(-90 * time.Minute)).
			AddRow(now.Add(-90 * time.Minute)).
			AddRow(now.Add(-5 * time.Hour)))

	stats, err := repo.Stats(context.Background(), since, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 10 || stats.SuccessCount != 7 {
		t.Errorf("totals = %d/%d, want 10/7", stats.Total, stats.SuccessCount)
	}
	if stats.FailureCount != 3 {
		t.Errorf("FailureCount = %d, want 3", stats.FailureCount)
	}
	if stats.DistinctActors != 3 {
		t.Errorf("DistinctActors = %d, want 3", stats.DistinctActors)
	}
	if len(stats.TopActions) != 2 || stats.TopActions[0].Action != "hospital_view" {
		t.Errorf("TopActions = %+v", stats.TopActions)
	}
	if len(stats.Hourly) != 24 {
		t.Fatalf("len(Hourly) = %d, want 24", len(stats.Hourly))
	}
	if stats.Hourly[0] != 1 || stats.Hourly[1] != 2 || stats.Hourly[5] != 1 {
		t.Errorf("Hourly buckets = %v", stats.Hourly)
	}
}

func TestActivityStats_AggregateError(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery(`COUNT\(\*\) FILTER`).
		WillReturnError(errDB)

	_, err := repo.Stats(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// CountLoginFailures
// ---------------------------------------------------------------------------

func TestCountLoginFailures(t *testing.T) {
	repo, mock := newActivityRepo(t)
	since := time.Now().Add(-15 * time.Minute)
	mock.ExpectQuery("auth_login_failed").
		WithArgs("user-1", "10.0.0.1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))

	count, err := repo.CountLoginFailures(context.Background(), "user-1", "10.0.0.1", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 6 {
		t.Errorf("count = %d, want 6", count)
	}
}

// ---------------------------------------------------------------------------
// DeleteOlderThan / GetByID
// ---------------------------------------------------------------------------

func TestDeleteOlderThan(t *testing.T) {
	repo, mock := newActivityRepo(t)
	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	mock.ExpectExec("DELETE FROM activity_logs").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 42 {
		t.Errorf("deleted = %d, want 42", deleted)
	}
}

func TestActivityGetByID_NotFound(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery("FROM activity_logs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(activityCols))

	rec, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %v", rec)
	}
}

func TestActivityGetByID_Found(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery("FROM activity_logs").
		WithArgs("log-1").
		WillReturnRows(sqlmock.NewRows(activityCols).
			AddRow("log-1", strptr("user-1"), "price_update", strptr("price"), nil,
				[]byte(`{"rows":100}`), strptr("10.0.0.1"), nil, true, nil, time.Now()))

	rec, err := repo.GetByID(context.Background(), "log-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if rec.Metadata["rows"] != float64(100) {
		t.Errorf("metadata rows = %v, want 100", rec.Metadata["rows"])
	}
}
