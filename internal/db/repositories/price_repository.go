// price_repository.go implements PriceRepository, providing database queries
// for charge rows including the batch replace used by price imports.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

// PriceRepository handles price database operations.
type PriceRepository struct {
	db *sqlx.DB
}

// NewPriceRepository creates a new PriceRepository.
func NewPriceRepository(db *sqlx.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

const priceColumns = `id, hospital_id, code, code_type, description, gross_charge, discounted_cash, payer_name, plan_name, created_at, updated_at`

// PriceFilters contains filters for querying prices.
type PriceFilters struct {
	HospitalID string
	// Code is an exact billing-code match.
	Code     string
	CodeType string
	// Search matches case-insensitively against the description.
	Search string
}

// List retrieves prices with filters and pagination.
func (r *PriceRepository) List(ctx context.Context, filters PriceFilters, limit, offset int) ([]*models.Price, int64, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.HospitalID != "" {
		where += fmt.Sprintf(` AND hospital_id = $%d`, paramIndex)
		args = append(args, filters.HospitalID)
		paramIndex++
	}
	if filters.Code != "" {
		where += fmt.Sprintf(` AND code = $%d`, paramIndex)
		args = append(args, filters.Code)
		paramIndex++
	}
	if filters.CodeType != "" {
		where += fmt.Sprintf(` AND code_type = $%d`, paramIndex)
		args = append(args, filters.CodeType)
		paramIndex++
	}
	if filters.Search != "" {
		where += fmt.Sprintf(` AND description ILIKE $%d`, paramIndex)
		args = append(args, "%"+filters.Search+"%")
		paramIndex++
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prices`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count prices: %w", err)
	}

	query := `SELECT ` + priceColumns + ` FROM prices` + where
	query += fmt.Sprintf(` ORDER BY code ASC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	prices := make([]*models.Price, 0)
	if err := r.db.SelectContext(ctx, &prices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list prices: %w", err)
	}
	return prices, total, nil
}

// ReplaceForHospital atomically replaces all charge rows for a hospital with
// the freshly parsed batch. A transparency file is the complete published
// price list, so replace-rather-than-merge keeps stale rows from surviving a
// re-import.
func (r *PriceRepository) ReplaceForHospital(ctx context.Context, hospitalID string, batch []*models.Price) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin price replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM prices WHERE hospital_id = $1`, hospitalID); err != nil {
		return 0, fmt.Errorf("failed to clear prices for hospital: %w", err)
	}

	insert := `
		INSERT INTO prices (id, hospital_id, code, code_type, description, gross_charge, discounted_cash, payer_name, plan_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	now := time.Now().UTC()
	for _, p := range batch {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, insert,
			p.ID, hospitalID, p.Code, p.CodeType, p.Description,
			p.GrossCharge, p.DiscountedCash, p.PayerName, p.PlanName, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert price %s: %w", p.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit price replace: %w", err)
	}
	return len(batch), nil
}

// CountForHospital returns the number of charge rows currently stored for a
// hospital.
func (r *PriceRepository) CountForHospital(ctx context.Context, hospitalID string) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prices WHERE hospital_id = $1`, hospitalID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return count, nil
}
