// Package models - price.go defines the Price model for a single charge line
// extracted from a hospital's machine-readable transparency file.
package models

import "time"

// Price code types as published in transparency files.
const (
	CodeTypeCPT   = "CPT"
	CodeTypeHCPCS = "HCPCS"
	CodeTypeDRG   = "DRG"
	CodeTypeNDC   = "NDC"
)

// Price represents one charge row for a hospital.
type Price struct {
	ID             string    `json:"id" db:"id"`
	HospitalID     string    `json:"hospital_id" db:"hospital_id"`
	Code           string    `json:"code" db:"code"`
	CodeType       string    `json:"code_type" db:"code_type"`
	Description    string    `json:"description" db:"description"`
	GrossCharge    *float64  `json:"gross_charge,omitempty" db:"gross_charge"`
	DiscountedCash *float64  `json:"discounted_cash,omitempty" db:"discounted_cash"`
	PayerName      *string   `json:"payer_name,omitempty" db:"payer_name"`
	PlanName       *string   `json:"plan_name,omitempty" db:"plan_name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
