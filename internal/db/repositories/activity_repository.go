// activity_repository.go implements ActivityRepository, the single persistence
// choke point for activity log records plus the read-side queries backing the
// admin dashboard (filtered listing, aggregate stats, hourly histogram).
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

// ActivityRepository handles activity log database operations.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// ActivityFilters contains filters for querying activity logs.
type ActivityFilters struct {
	// Search matches case-insensitively against action, resource type, and
	// the serialized metadata.
	Search string
	// Action is a substring match against the action column.
	Action string
	// ResourceType is an exact match.
	ResourceType string
	// Success filters by outcome when non-nil.
	Success *bool
	// Since restricts to records created at or after this instant.
	Since time.Time
}

// ActivityStats is the aggregate statistics payload for the dashboard.
type ActivityStats struct {
	Total          int64         `json:"total"`
	SuccessCount   int64         `json:"success_count"`
	FailureCount   int64         `json:"failure_count"`
	DistinctActors int64         `json:"distinct_actors"`
	TopActions     []ActionCount `json:"top_actions"`
	// Hourly holds 24 buckets for the trailing day; index i counts rows in
	// [now-(i+1)h, now-i·h), so index 0 is the most recent hour.
	Hourly []int64 `json:"hourly"`
}

// ActionCount is one entry of the top-actions ranking.
type ActionCount struct {
	Action string `json:"action" db:"action"`
	Count  int64  `json:"count" db:"count"`
}

// Insert writes one activity log record. The id and creation timestamp are
// assigned here; metadata is serialized to JSONB.
func (r *ActivityRepository) Insert(ctx context.Context, rec *models.ActivityLog) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var metadataJSON []byte
	if rec.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal activity metadata: %w", err)
		}
	}

	query := `
		INSERT INTO activity_logs (id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Action,
		rec.ResourceType,
		rec.ResourceID,
		metadataJSON,
		rec.IPAddress,
		rec.UserAgent,
		rec.Success,
		rec.ErrorMessage,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}

// List retrieves activity logs with filters and pagination, joining actor
// display fields when the user row still exists. Metadata is deserialized from
// its stored JSONB form.
func (r *ActivityRepository) List(ctx context.Context, filters ActivityFilters, limit, offset int) ([]*models.ActivityLogWithActor, int64, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.Search != "" {
		where += fmt.Sprintf(` AND (a.action ILIKE $%d OR a.resource_type ILIKE $%d OR a.metadata::text ILIKE $%d)`,
			paramIndex, paramIndex, paramIndex)
		args = append(args, "%"+filters.Search+"%")
		paramIndex++
	}
	if filters.Action != "" {
		where += fmt.Sprintf(` AND a.action LIKE $%d`, paramIndex)
		args = append(args, "%"+filters.Action+"%")
		paramIndex++
	}
	if filters.ResourceType != "" {
		where += fmt.Sprintf(` AND a.resource_type = $%d`, paramIndex)
		args = append(args, filters.ResourceType)
		paramIndex++
	}
	if filters.Success != nil {
		where += fmt.Sprintf(` AND a.success = $%d`, paramIndex)
		args = append(args, *filters.Success)
		paramIndex++
	}
	if !filters.Since.IsZero() {
		where += fmt.Sprintf(` AND a.created_at >= $%d`, paramIndex)
		args = append(args, filters.Since)
		paramIndex++
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM activity_logs a` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity logs: %w", err)
	}

	query := `
		SELECT a.id, a.user_id, a.action, a.resource_type, a.resource_id, a.metadata,
		       a.ip_address, a.user_agent, a.success, a.error_message, a.created_at,
		       u.email AS actor_email, u.first_name AS actor_first_name, u.last_name AS actor_last_name
		FROM activity_logs a
		LEFT JOIN users u ON u.id = a.user_id` + where
	query += fmt.Sprintf(` ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity logs: %w", err)
	}
	defer rows.Close()

	records := make([]*models.ActivityLogWithActor, 0)
	for rows.Next() {
		rec := &models.ActivityLogWithActor{}
		var metadataJSON []byte

		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Action,
			&rec.ResourceType,
			&rec.ResourceID,
			&metadataJSON,
			&rec.IPAddress,
			&rec.UserAgent,
			&rec.Success,
			&rec.ErrorMessage,
			&rec.CreatedAt,
			&rec.ActorEmail,
			&rec.ActorFirstName,
			&rec.ActorLastName,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan activity log: %w", err)
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal activity metadata: %w", err)
			}
		}
		records = append(records, rec)
	}

	return records, total, rows.Err()
}

// Stats computes the aggregate dashboard statistics for records created at or
// after since, plus the trailing-24h hourly histogram relative to now.
func (r *ActivityRepository) Stats(ctx context.Context, since, now time.Time) (*ActivityStats, error) {
	stats := &ActivityStats{Hourly: make([]int64, 24)}

	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE success) AS success_count,
			COUNT(DISTINCT user_id) FILTER (WHERE user_id IS NOT NULL) AS distinct_actors
		FROM activity_logs
		WHERE created_at >= $1
	`
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&stats.Total, &stats.SuccessCount, &stats.DistinctActors); err != nil {
		return nil, fmt.Errorf("failed to aggregate activity stats: %w", err)
	}
	stats.FailureCount = stats.Total - stats.SuccessCount

	topQuery := `
		SELECT action, COUNT(*) AS count
		FROM activity_logs
		WHERE created_at >= $1
		GROUP BY action
		ORDER BY count DESC, action ASC
		LIMIT 10
	`
	if err := r.db.SelectContext(ctx, &stats.TopActions, topQuery, since); err != nil {
		return nil, fmt.Errorf("failed to rank activity actions: %w", err)
	}

	// One pass over the trailing day; buckets are filled in Go so empty hours
	// still appear as zeroes.
	hourQuery := `
		SELECT created_at
		FROM activity_logs
		WHERE created_at >= $1 AND created_at < $2
	`
	rows, err := r.db.QueryContext(ctx, hourQuery, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var createdAt time.Time
		if err := rows.Scan(&createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity timestamp: %w", err)
		}
		bucket := int(now.Sub(createdAt).Hours())
		if bucket >= 0 && bucket < 24 {
			stats.Hourly[bucket]++
		}
	}

	return stats, rows.Err()
}

// CountLoginFailures counts auth_login_failed records for the exact
// (actor, IP) pair created at or after since. Used by the suspicious-activity
// threshold rule.
func (r *ActivityRepository) CountLoginFailures(ctx context.Context, userID, ipAddress string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM activity_logs
		WHERE action = 'auth_login_failed'
		  AND user_id = $1
		  AND ip_address = $2
		  AND created_at >= $3
	`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, userID, ipAddress, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count login failures: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes records created before cutoff and returns the number
// deleted. Called by the retention cleanup job only; nothing on the request
// path deletes activity records.
func (r *ActivityRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activity_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired activity logs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// GetByID retrieves a single record, or nil when absent.
func (r *ActivityRepository) GetByID(ctx context.Context, id string) (*models.ActivityLog, error) {
	query := `
		SELECT id, user_id, action, resource_type, resource_id, metadata,
		       ip_address, user_agent, success, error_message, created_at
		FROM activity_logs
		WHERE id = $1
	`
	rec := &models.ActivityLog{}
	var metadataJSON []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Action,
		&rec.ResourceType,
		&rec.ResourceID,
		&metadataJSON,
		&rec.IPAddress,
		&rec.UserAgent,
		&rec.Success,
		&rec.ErrorMessage,
		&rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity log: %w", err)
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal activity metadata: %w", err)
		}
	}
	return rec, nil
}
