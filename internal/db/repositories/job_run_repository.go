// job_run_repository.go implements JobRunRepository, recording background job
// executions and serving the recent-runs listing on the admin dashboard.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

// JobRunRepository handles job run database operations.
type JobRunRepository struct {
	db *sqlx.DB
}

// NewJobRunRepository creates a new JobRunRepository.
func NewJobRunRepository(db *sqlx.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

const jobRunColumns = `id, job_name, status, started_at, completed_at, records_processed, records_inserted, records_updated, error_message, triggered_by`

// Start records a new running job execution and returns its id.
func (r *JobRunRepository) Start(ctx context.Context, jobName, triggeredBy string) (string, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO job_runs (id, job_name, status, started_at, triggered_by)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, id, jobName, models.JobStatusRunning, time.Now().UTC(), triggeredBy)
	if err != nil {
		return "", fmt.Errorf("failed to record job start: %w", err)
	}
	return id, nil
}

// Complete marks a run as completed with its result counters.
func (r *JobRunRepository) Complete(ctx context.Context, id string, processed, inserted, updated int) error {
	query := `
		UPDATE job_runs
		SET status = $2, completed_at = $3, records_processed = $4, records_inserted = $5, records_updated = $6
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.JobStatusCompleted, time.Now().UTC(), processed, inserted, updated)
	if err != nil {
		return fmt.Errorf("failed to record job completion: %w", err)
	}
	return nil
}

// Fail marks a run as failed with the error message.
func (r *JobRunRepository) Fail(ctx context.Context, id, errorMessage string) error {
	query := `
		UPDATE job_runs
		SET status = $2, completed_at = $3, error_message = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.JobStatusFailed, time.Now().UTC(), errorMessage)
	if err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}
	return nil
}

// List returns recent runs ordered newest-first, optionally filtered by job
// name.
func (r *JobRunRepository) List(ctx context.Context, jobName string, limit, offset int) ([]*models.JobRun, int64, error) {
	where := ``
	args := make([]interface{}, 0)
	paramIndex := 1
	if jobName != "" {
		where = fmt.Sprintf(` WHERE job_name = $%d`, paramIndex)
		args = append(args, jobName)
		paramIndex++
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count job runs: %w", err)
	}

	query := `SELECT ` + jobRunColumns + ` FROM job_runs` + where
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	runs := make([]*models.JobRun, 0)
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list job runs: %w", err)
	}
	return runs, total, nil
}

// GetByID retrieves a single run, or nil when absent.
func (r *JobRunRepository) GetByID(ctx context.Context, id string) (*models.JobRun, error) {
	var run models.JobRun
	err := r.db.GetContext(ctx, &run, `SELECT `+jobRunColumns+` FROM job_runs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}
	return &run, nil
}
