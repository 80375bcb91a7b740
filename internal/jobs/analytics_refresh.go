// analytics_refresh.go rebuilds the price_analytics materialized view.
package jobs

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

// AnalyticsRefreshJob refreshes the per-hospital pricing summary view.
// CONCURRENTLY keeps the view readable during the rebuild; it requires the
// view's unique index, which the migration creates.
type AnalyticsRefreshJob struct {
	db *sqlx.DB
}

// NewAnalyticsRefreshJob creates the view refresh job.
func NewAnalyticsRefreshJob(db *sqlx.DB) *AnalyticsRefreshJob {
	return &AnalyticsRefreshJob{db: db}
}

// Name implements Job.
func (j *AnalyticsRefreshJob) Name() string { return models.JobAnalyticsRefresh }

// Run implements Job.
func (j *AnalyticsRefreshJob) Run(ctx context.Context) (Result, error) {
	if _, err := j.db.ExecContext(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY price_analytics`); err != nil {
		return Result{}, fmt.Errorf("failed to refresh price_analytics: %w", err)
	}
	return Result{Processed: 1}, nil
}
