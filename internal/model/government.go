package model

import "time"

// GovernmentUser is an officer with read access to the card programme.
// Accounts are created by staff and sign in with email and password.
type GovernmentUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	MobileNumber string    `json:"mobileNumber"`
	Department   string    `json:"department"`
	Designation  string    `json:"designation"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
