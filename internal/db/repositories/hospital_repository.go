// hospital_repository.go implements HospitalRepository, providing database
// queries for hospital records including the batch upsert used by imports.
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

// HospitalRepository handles hospital database operations.
type HospitalRepository struct {
	db *sqlx.DB
}

// NewHospitalRepository creates a new HospitalRepository.
func NewHospitalRepository(db *sqlx.DB) *HospitalRepository {
	return &HospitalRepository{db: db}
}

const hospitalColumns = `id, name, state, city, address, ccn, website, transparency_file_url, last_imported_at, created_at, updated_at`

// HospitalFilters contains filters for listing hospitals.
type HospitalFilters struct {
	// Search matches case-insensitively against name and city.
	Search string
	// State is an exact two-letter state match.
	State string
}

// Create inserts a new hospital. ID and timestamps are assigned here.
func (r *HospitalRepository) Create(ctx context.Context, h *models.Hospital) error {
	h.ID = uuid.New().String()
	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now

	query := `
		INSERT INTO hospitals (id, name, state, city, address, ccn, website, transparency_file_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.Name, h.State, h.City, h.Address, h.CCN, h.Website, h.TransparencyFileURL,
		h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create hospital: %w", err)
	}
	return nil
}

// GetByID retrieves a hospital by id, or nil when absent.
func (r *HospitalRepository) GetByID(ctx context.Context, id string) (*models.Hospital, error) {
	var h models.Hospital
	err := r.db.GetContext(ctx, &h, `SELECT `+hospitalColumns+` FROM hospitals WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hospital: %w", err)
	}
	return &h, nil
}

// List retrieves hospitals with filters and pagination.
func (r *HospitalRepository) List(ctx context.Context, filters HospitalFilters, limit, offset int) ([]*models.Hospital, int64, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.Search != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d OR city ILIKE $%d)`, paramIndex, paramIndex)
		args = append(args, "%"+filters.Search+"%")
		paramIndex++
	}
	if filters.State != "" {
		where += fmt.Sprintf(` AND state = $%d`, paramIndex)
		args = append(args, filters.State)
		paramIndex++
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hospitals`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count hospitals: %w", err)
	}

	query := `SELECT ` + hospitalColumns + ` FROM hospitals` + where
	query += fmt.Sprintf(` ORDER BY name ASC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	hospitals := make([]*models.Hospital, 0)
	if err := r.db.SelectContext(ctx, &hospitals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list hospitals: %w", err)
	}
	return hospitals, total, nil
}

// ListWithTransparencyFiles returns hospitals that have a known transparency
// file URL, for the price-update job.
func (r *HospitalRepository) ListWithTransparencyFiles(ctx context.Context) ([]*models.Hospital, error) {
	hospitals := make([]*models.Hospital, 0)
	query := `SELECT ` + hospitalColumns + ` FROM hospitals WHERE transparency_file_url IS NOT NULL ORDER BY last_imported_at ASC NULLS FIRST`
	if err := r.db.SelectContext(ctx, &hospitals, query); err != nil {
		return nil, fmt.Errorf("failed to list hospitals with transparency files: %w", err)
	}
	return hospitals, nil
}

// Update persists mutable hospital fields.
func (r *HospitalRepository) Update(ctx context.Context, h *models.Hospital) error {
	h.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE hospitals
		SET name = $2, state = $3, city = $4, address = $5, website = $6, transparency_file_url = $7, updated_at = $8
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		h.ID, h.Name, h.State, h.City, h.Address, h.Website, h.TransparencyFileURL, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update hospital: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a hospital and, via FK cascade, its prices.
func (r *HospitalRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM hospitals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete hospital: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchLastImported records a completed price import for the hospital.
func (r *HospitalRepository) TouchLastImported(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE hospitals SET last_imported_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch last imported: %w", err)
	}
	return nil
}

// UpsertBatch inserts or updates hospitals keyed by CCN and returns true
// insert/update counts. Postgres exposes whether ON CONFLICT took the insert
// or the update path via xmax: inserted rows have xmax = 0.
func (r *HospitalRepository) UpsertBatch(ctx context.Context, batch []*models.Hospital) (inserted, updated int, err error) {
	query := `
		INSERT INTO hospitals (id, name, state, city, address, ccn, website, transparency_file_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (ccn) DO UPDATE
		SET name = EXCLUDED.name,
		    state = EXCLUDED.state,
		    city = EXCLUDED.city,
		    address = EXCLUDED.address,
		    website = EXCLUDED.website,
		    transparency_file_url = COALESCE(EXCLUDED.transparency_file_url, hospitals.transparency_file_url),
		    updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS was_inserted
	`

	now := time.Now().UTC()
	for _, h := range batch {
		if h.ID == "" {
			h.ID = uuid.New().String()
		}
		var wasInserted bool
		scanErr := r.db.QueryRowContext(ctx, query,
			h.ID, h.Name, h.State, h.City, h.Address, h.CCN, h.Website, h.TransparencyFileURL, now, now,
		).Scan(&wasInserted)
		if scanErr != nil {
			return inserted, updated, fmt.Errorf("failed to upsert hospital %s: %w", h.CCN, scanErr)
		}
		if wasInserted {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, nil
}
