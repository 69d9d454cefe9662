package models

import "time"

type Company struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Name           string    `json:"name"`
	SignatoryEmail string    `json:"signatory_email"`
	ManagerEmails  []string  `json:"manager_emails"` // CLA managers, notified of approval requests
}
