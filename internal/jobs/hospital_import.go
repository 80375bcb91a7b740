// hospital_import.go syncs the hospital directory from the PRA API into the
// hospitals table, keyed by CCN.
package jobs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/pra"
)

// importPageSize is the directory page size requested from the PRA API.
const importPageSize = 200

// PRAClient is the subset of the PRA API the jobs use.
type PRAClient interface {
	ListHospitals(ctx context.Context, state string, page, perPage int) ([]pra.Hospital, int, error)
	ListTransparencyFiles(ctx context.Context, ccn string) ([]pra.TransparencyFile, error)
	DownloadFile(ctx context.Context, fileURL string) (io.ReadCloser, error)
}

// HospitalStore is the hospital persistence the jobs need. Implemented by
// repositories.HospitalRepository.
type HospitalStore interface {
	UpsertBatch(ctx context.Context, batch []*models.Hospital) (inserted, updated int, err error)
	ListWithTransparencyFiles(ctx context.Context) ([]*models.Hospital, error)
	Update(ctx context.Context, h *models.Hospital) error
	TouchLastImported(ctx context.Context, id string, at time.Time) error
}

// HospitalImportJob pulls the full hospital directory and upserts it by CCN.
// Insert and update counts come from the database's conflict resolution, not
// from assuming every row was new.
type HospitalImportJob struct {
	client    PRAClient
	hospitals HospitalStore
}

// NewHospitalImportJob creates the directory import job.
func NewHospitalImportJob(client PRAClient, hospitals HospitalStore) *HospitalImportJob {
	return &HospitalImportJob{client: client, hospitals: hospitals}
}

// Name implements Job.
func (j *HospitalImportJob) Name() string { return models.JobHospitalImport }

// Run pages through the directory, upserting each page as one batch.
func (j *HospitalImportJob) Run(ctx context.Context) (Result, error) {
	var result Result

	for page := 1; ; page++ {
		entries, total, err := j.client.ListHospitals(ctx, "", page, importPageSize)
		if err != nil {
			return result, fmt.Errorf("failed to list hospitals (page %d): %w", page, err)
		}
		if len(entries) == 0 {
			break
		}

		batch := make([]*models.Hospital, 0, len(entries))
		for _, e := range entries {
			if e.CCN == "" {
				continue
			}
			h := &models.Hospital{
				Name:  e.Name,
				State: e.State,
				City:  e.City,
				CCN:   e.CCN,
			}
			if e.Address != "" {
				h.Address = &e.Address
			}
			if e.Website != "" {
				h.Website = &e.Website
			}
			batch = append(batch, h)
		}

		inserted, updated, err := j.hospitals.UpsertBatch(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("failed to upsert hospital batch (page %d): %w", page, err)
		}

		result.Processed += len(entries)
		result.Inserted += inserted
		result.Updated += updated

		if result.Processed >= total {
			break
		}
	}

	return result, nil
}
