// Package models - hospital.go defines the Hospital model for facilities whose
// machine-readable transparency files are tracked and imported.
package models

import "time"

// Hospital represents a facility publishing price transparency data.
type Hospital struct {
	ID string `json:"id" db:"id"`
	// Name is the facility's legal or common name.
	Name    string  `json:"name" db:"name"`
	State   string  `json:"state" db:"state"`
	City    string  `json:"city" db:"city"`
	Address *string `json:"address,omitempty" db:"address"`
	// CCN is the CMS certification number, the stable identity used for
	// import deduplication.
	CCN                 string     `json:"ccn" db:"ccn"`
	Website             *string    `json:"website,omitempty" db:"website"`
	TransparencyFileURL *string    `json:"transparency_file_url,omitempty" db:"transparency_file_url"`
	LastImportedAt      *time.Time `json:"last_imported_at,omitempty" db:"last_imported_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}
