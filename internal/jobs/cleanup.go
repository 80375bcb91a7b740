// cleanup.go prunes activity records past the retention window.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

// ActivityPruner deletes old activity records. Implemented by
// repositories.ActivityRepository.
type ActivityPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob deletes activity records older than the configured retention.
// retentionDays is a function so a config hot reload takes effect on the next
// run without re-wiring the scheduler.
type CleanupJob struct {
	activity      ActivityPruner
	retentionDays func() int
}

// NewCleanupJob creates the retention job.
func NewCleanupJob(activity ActivityPruner, retentionDays func() int) *CleanupJob {
	return &CleanupJob{activity: activity, retentionDays: retentionDays}
}

// Name implements Job.
func (j *CleanupJob) Name() string { return models.JobCleanup }

// Run implements Job. The deleted count is reported as Processed.
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	days := j.retentionDays()
	if days < 1 {
		return Result{}, fmt.Errorf("invalid retention %d days", days)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	deleted, err := j.activity.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("failed to prune activity records: %w", err)
	}

	return Result{Processed: int(deleted)}, nil
}
