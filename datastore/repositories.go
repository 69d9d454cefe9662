package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/signet/models"
	"github.com/google/uuid"
)

// RepositoryRepository handles database operations for code-host repositories
// linked to projects.
type RepositoryRepository struct {
	db *sql.DB
}

func NewRepositoryRepository(db *sql.DB) *RepositoryRepository {
	return &RepositoryRepository{db: db}
}

const repositoryColumns = `id, project_id, created_at, provider, external_id, full_name, installation_id`

func scanRepository(row interface{ Scan(...any) error }) (models.Repository, error) {
	var repo models.Repository
	var provider string
	err := row.Scan(&repo.ID, &repo.ProjectID, &repo.CreatedAt, &provider,
		&repo.ExternalID, &repo.FullName, &repo.InstallationID)
	repo.Provider = models.RepositoryProvider(provider)
	return repo, err
}

func (r *RepositoryRepository) CreateRepository(ctx context.Context, repo *models.Repository) error {
	if _, err := uuid.Parse(repo.ID); err != nil {
		return fmt.Errorf("invalid repository ID format: %w", err)
	}
	if _, err := uuid.Parse(repo.ProjectID); err != nil {
		return fmt.Errorf("invalid project ID format: %w", err)
	}
	if repo.Provider != models.RepositoryProviderGitHub {
		return fmt.Errorf("unsupported repository provider: %s", repo.Provider)
	}
	if repo.FullName == "" {
		return fmt.Errorf("repository full name cannot be empty")
	}

	query := `
		INSERT INTO repositories (` + repositoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		repo.ID, repo.ProjectID, repo.CreatedAt, string(repo.Provider),
		repo.ExternalID, repo.FullName, repo.InstallationID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert repository: %w", classifyWriteError(err))
	}
	return nil
}

// GetRepositoriesByProjectID retrieves all repositories covered by a project.
func (r *RepositoryRepository) GetRepositoriesByProjectID(ctx context.Context, projectID string) ([]models.Repository, error) {
	if _, err := uuid.Parse(projectID); err != nil {
		return nil, fmt.Errorf("invalid project ID format: %w", err)
	}

	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE project_id = $1 ORDER BY full_name ASC`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories for project %s: %w", projectID, err)
	}
	defer rows.Close()

	repos := []models.Repository{}
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repository row for project %s: %w", projectID, err)
		}
		repos = append(repos, repo)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repository rows for project %s: %w", projectID, err)
	}
	return repos, nil
}

// GetRepositoryByExternalID looks a repository up by the code host's own ID,
// as delivered in webhook payloads.
func (r *RepositoryRepository) GetRepositoryByExternalID(ctx context.Context, provider models.RepositoryProvider, externalID int64) (*models.Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE provider = $1 AND external_id = $2`
	repo, err := scanRepository(r.db.QueryRowContext(ctx, query, string(provider), externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("repository not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get repository %s/%d: %w", provider, externalID, err)
	}
	return &repo, nil
}
