// full_refresh.go chains the import pipeline end to end for operators who
// want one button: directory import, file discovery, then price re-import.
package jobs

import (
	"context"
	"fmt"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

// FullRefreshJob runs the three sync jobs in dependency order. A failure in
// an earlier stage aborts the later ones, since they would operate on stale
// inputs.
type FullRefreshJob struct {
	stages []Job
}

// NewFullRefreshJob composes the pipeline.
func NewFullRefreshJob(importJob *HospitalImportJob, scanJob *PRAScanJob, priceJob *PriceUpdateJob) *FullRefreshJob {
	return &FullRefreshJob{stages: []Job{importJob, scanJob, priceJob}}
}

// Name implements Job.
func (j *FullRefreshJob) Name() string { return models.JobPRAFullRefresh }

// Run implements Job. Counts accumulate across stages.
func (j *FullRefreshJob) Run(ctx context.Context) (Result, error) {
	var total Result
	for _, stage := range j.stages {
		result, err := stage.Run(ctx)
		total.Processed += result.Processed
		total.Inserted += result.Inserted
		total.Updated += result.Updated
		if err != nil {
			return total, fmt.Errorf("stage %s failed: %w", stage.Name(), err)
		}
	}
	return total, nil
}
