package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/signet/models"
	"github.com/google/uuid"
)

// ProjectRepository handles database operations for the projects table.
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, created_at, name, slug, description, icla_enabled, ccla_enabled`

func scanProject(row interface{ Scan(...any) error }) (models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.CreatedAt, &p.Name, &p.Slug, &p.Description, &p.ICLAEnabled, &p.CCLAEnabled)
	return p, err
}

// CreateProject inserts a new project record.
func (r *ProjectRepository) CreateProject(ctx context.Context, project *models.Project) error {
	if _, err := uuid.Parse(project.ID); err != nil {
		return fmt.Errorf("invalid project ID format: %w", err)
	}
	if project.Name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if project.Slug == "" {
		return fmt.Errorf("project slug cannot be empty")
	}

	query := `
		INSERT INTO projects (id, created_at, name, slug, description, icla_enabled, ccla_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		project.ID, project.CreatedAt, project.Name, project.Slug, project.Description,
		project.ICLAEnabled, project.CCLAEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", classifyWriteError(err))
	}
	return nil
}

// GetProjectByID retrieves a project by its ID.
func (r *ProjectRepository) GetProjectByID(ctx context.Context, projectID string) (*models.Project, error) {
	if _, err := uuid.Parse(projectID); err != nil {
		return nil, fmt.Errorf("invalid project ID format: %w", err)
	}

	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	project, err := scanProject(r.db.QueryRowContext(ctx, query, projectID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("project not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get project by ID: %w", err)
	}
	return &project, nil
}

// GetProjects retrieves all projects ordered by name.
func (r *ProjectRepository) GetProjects(ctx context.Context) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY name ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, project)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}
	return projects, nil
}

// DeleteProject removes a project. Repositories and signatures cascade.
func (r *ProjectRepository) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := uuid.Parse(projectID); err != nil {
		return fmt.Errorf("invalid project ID format: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", projectID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for delete project %s: %w", projectID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("project not found (ID: %s): %w", projectID, sql.ErrNoRows)
	}
	return nil
}
