// Package models - job_run.go defines the JobRun model recording one execution
// of a background job, whether scheduled or manually triggered.
package models

import "time"

// Job run statuses.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Known job names. These match the trigger endpoints under /api/v1/jobs.
const (
	JobPRAScan          = "pra_scan"
	JobPRAFullRefresh   = "pra_full_refresh"
	JobPriceUpdate      = "price_update"
	JobHospitalImport   = "hospital_import"
	JobCleanup          = "cleanup"
	JobAnalyticsRefresh = "analytics_refresh"
)

// JobRun represents a single execution of a background job.
type JobRun struct {
	ID               string     `json:"id" db:"id"`
	JobName          string     `json:"job_name" db:"job_name"`
	Status           string     `json:"status" db:"status"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	RecordsProcessed int        `json:"records_processed" db:"records_processed"`
	RecordsInserted  int        `json:"records_inserted" db:"records_inserted"`
	RecordsUpdated   int        `json:"records_updated" db:"records_updated"`
	ErrorMessage     *string    `json:"error_message,omitempty" db:"error_message"`
	// TriggeredBy is "scheduler" for interval runs or the triggering user's
	// id for manual runs.
	TriggeredBy string `json:"triggered_by" db:"triggered_by"`
}
