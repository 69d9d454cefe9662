package models

import "time"

// RepositoryProvider identifies the code host a repository lives on.
type RepositoryProvider string

const (
	RepositoryProviderGitHub RepositoryProvider = "github"
)

// Repository links a code-host repository to the project whose CLAs cover it.
type Repository struct {
	ID             string             `json:"id"`
	ProjectID      string             `json:"project_id"`
	CreatedAt      time.Time          `json:"created_at"`
	Provider       RepositoryProvider `json:"provider"`
	ExternalID     int64              `json:"external_id"`
	FullName       string             `json:"full_name"`
	InstallationID int64              `json:"installation_id"`
}
