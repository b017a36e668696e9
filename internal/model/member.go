// Package model defines the data structures used throughout the application.
package model

import "time"

// Member is a primary cardholder. PrimaryCardNumber is the identity every
// secondary card (physical or digital) resolves to.
//
// MobileNumber is the natural key used for login and for matching during
// card issuance. Email is optional; an empty string is stored as NULL so the
// UNIQUE index only applies to members that actually gave one.
type Member struct {
	ID                string    `json:"id"`
	MobileNumber      string    `json:"mobileNumber"`
	Email             string    `json:"email,omitempty"`
	FullName          string    `json:"fullName"`
	PINHash           string    `json:"-"`
	PrimaryCardNumber int64     `json:"primaryCardNumber,string"`
	CreatedBy         string    `json:"createdBy,omitempty"` // referrer: a business code or staff id
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
