package models

import "time"

type User struct {
	ID                  int        `json:"id" example:"1"`                     // User ID
	Email               string     `json:"email" example:"user@example.com"`   // User email
	FirstName           string     `json:"firstName" example:"Aminata"`        // User first name
	LastName            string     `json:"lastName" example:"Diallo"`          // User last name
	PhoneNumber         string     `json:"phoneNumber" example:"771234567"`    // User phone number
	Role                string     `json:"role" example:"user"`                // user or agent
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}
