// pra_scan.go discovers which hospitals have published machine-readable
// transparency files and records the file URL on the hospital row.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
	"github.com/itz4blitz/glimmr-api-sub005/internal/pra"
)

// PRAScanJob walks every known hospital, asks the PRA API for its published
// files, and stores the preferred file URL. A hospital with no published file
// is processed but not updated; upstream errors for one hospital do not abort
// the scan.
type PRAScanJob struct {
	client    PRAClient
	hospitals HospitalScanStore
}

// HospitalScanStore is the persistence the scan needs. Implemented by
// repositories.HospitalRepository.
type HospitalScanStore interface {
	List(ctx context.Context, filters repositories.HospitalFilters, limit, offset int) ([]*models.Hospital, int64, error)
	Update(ctx context.Context, h *models.Hospital) error
}

// NewPRAScanJob creates the transparency-file discovery job.
func NewPRAScanJob(client PRAClient, hospitals HospitalScanStore) *PRAScanJob {
	return &PRAScanJob{client: client, hospitals: hospitals}
}

// Name implements Job.
func (j *PRAScanJob) Name() string { return models.JobPRAScan }

// Run implements Job.
func (j *PRAScanJob) Run(ctx context.Context) (Result, error) {
	var result Result

	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		hospitals, _, err := j.hospitals.List(ctx, repositories.HospitalFilters{}, pageSize, offset)
		if err != nil {
			return result, fmt.Errorf("failed to list hospitals: %w", err)
		}
		if len(hospitals) == 0 {
			break
		}

		for _, h := range hospitals {
			result.Processed++

			files, err := j.client.ListTransparencyFiles(ctx, h.CCN)
			if err != nil {
				slog.Warn("transparency file lookup failed", "ccn", h.CCN, "error", err)
				continue
			}

			fileURL := preferredFileURL(files)
			if fileURL == "" {
				continue
			}
			if h.TransparencyFileURL != nil && *h.TransparencyFileURL == fileURL {
				continue
			}

			h.TransparencyFileURL = &fileURL
			if err := j.hospitals.Update(ctx, h); err != nil {
				slog.Warn("failed to record transparency file", "ccn", h.CCN, "error", err)
				continue
			}
			result.Updated++
		}
	}

	return result, nil
}

// preferredFileURL picks which published file to track: CSV over JSON, then
// first listed. CSV is preferred because the price importer parses it
// natively.
func preferredFileURL(files []pra.TransparencyFile) string {
	if len(files) == 0 {
		return ""
	}
	for _, f := range files {
		if f.Format == "csv" {
			return f.URL
		}
	}
	return files[0].URL
}
