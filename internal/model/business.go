package model

import "time"

// Business is a tenant. Code is the 6-digit public business id that scopes
// physical cards and mappings. Institutes are businesses with IsInstitute set.
type Business struct {
	ID           string    `json:"id"`
	Code         string    `json:"businessId"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	MobileNumber string    `json:"mobileNumber"`
	PINHash      string    `json:"-"`
	IsInstitute  bool      `json:"isInstitute"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
