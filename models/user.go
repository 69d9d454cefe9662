package models

import "time"

type User struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Name           string    `json:"name"`
	Emails         []string  `json:"emails"`
	GitHubID       *int64    `json:"github_id,omitempty"`
	GitHubUsername string    `json:"github_username,omitempty"`
	CompanyID      *string   `json:"company_id,omitempty"`
}
