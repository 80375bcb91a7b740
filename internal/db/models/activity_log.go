package models

import "time"

// ActivityLog is one recorded API action. UserID is nullable so anonymous
// traffic (failed logins, public reads) still gets a record, and there is no
// foreign key to users so records outlive account deletion.
type ActivityLog struct {
	ID           string                 `json:"id" db:"id"`
	UserID       *string                `json:"user_id" db:"user_id"`
	Action       string                 `json:"action" db:"action"`
	ResourceType *string                `json:"resource_type" db:"resource_type"`
	ResourceID   *string                `json:"resource_id" db:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata" db:"-"`
	IPAddress    *string                `json:"ip_address" db:"ip_address"`
	UserAgent    *string                `json:"user_agent" db:"user_agent"`
	Success      bool                   `json:"success" db:"success"`
	ErrorMessage *string                `json:"error_message" db:"error_message"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}

// ActivityLogWithActor joins in actor display fields for the dashboard
// listing. The fields are nil when the record is anonymous or the account has
// since been deleted.
type ActivityLogWithActor struct {
	ActivityLog
	ActorEmail     *string `json:"actor_email" db:"actor_email"`
	ActorFirstName *string `json:"actor_first_name" db:"actor_first_name"`
	ActorLastName  *string `json:"actor_last_name" db:"actor_last_name"`
}
