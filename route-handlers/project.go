package routehandlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/webutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

type ProjectStore interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProjects(ctx context.Context) ([]models.Project, error)
	GetProjectByID(ctx context.Context, projectID string) (*models.Project, error)
	DeleteProject(ctx context.Context, projectID string) error
}

type RepositoryStore interface {
	CreateRepository(ctx context.Context, repo *models.Repository) error
	GetRepositoriesByProjectID(ctx context.Context, projectID string) ([]models.Repository, error)
}

type ProjectSignatureLister interface {
	GetSignaturesByProjectID(ctx context.Context, projectID string) ([]models.Signature, error)
}

// ProjectHandler serves projects and the repositories and signatures that
// belong to them.
type ProjectHandler struct {
	Repo         ProjectStore
	Repositories RepositoryStore
	Signatures   ProjectSignatureLister
	Events       EventRecorder
}

func NewProjectHandler(
	repo ProjectStore,
	repositories RepositoryStore,
	signatures ProjectSignatureLister,
	events EventRecorder,
) *ProjectHandler {
	return &ProjectHandler{
		Repo:         repo,
		Repositories: repositories,
		Signatures:   signatures,
		Events:       events,
	}
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	ICLAEnabled *bool  `json:"icla_enabled"`
	CCLAEnabled *bool  `json:"ccla_enabled"`
}

// HandleCreateProject creates a project. The slug defaults to one derived
// from the name.
// Example route: POST /api/projects
func (h *ProjectHandler) HandleCreateProject(w http.ResponseWriter, r *http.Request) error {
	var req createProjectRequest
	if err := webutil.DecodeJSON(r, &req); err != nil {
		return err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return webutil.ErrBadRequest("Name is required")
	}
	projectSlug := req.Slug
	if projectSlug == "" {
		projectSlug = slug.Make(name)
	}
	if !slug.IsSlug(projectSlug) {
		return webutil.ErrBadRequest(fmt.Sprintf("Invalid slug %q", projectSlug))
	}

	project := models.Project{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Name:        name,
		Slug:        projectSlug,
		Description: strings.TrimSpace(req.Description),
		ICLAEnabled: boolOrDefault(req.ICLAEnabled, true),
		CCLAEnabled: boolOrDefault(req.CCLAEnabled, true),
	}
	if !project.ICLAEnabled && !project.CCLAEnabled {
		return webutil.ErrBadRequest("At least one of icla_enabled or ccla_enabled must be true")
	}

	if err := h.Repo.CreateProject(r.Context(), &project); err != nil {
		return fmt.Errorf("failed to create project %s: %w", project.Slug, err)
	}

	recordEvent(r.Context(), h.Events, models.EventProjectCreated,
		eventRefs{ProjectID: project.ID},
		fmt.Sprintf("Project %s created", project.Name))

	log.Printf("INFO: Project created: %s (%s)", project.Slug, project.ID)
	webutil.RespondWithJSON(w, http.StatusCreated, project)
	return nil
}

func (h *ProjectHandler) HandleGetProjects(w http.ResponseWriter, r *http.Request) error {
	projects, err := h.Repo.GetProjects(r.Context())
	if err != nil {
		return fmt.Errorf("failed to retrieve projects: %w", err)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, projects)
	return nil
}

func (h *ProjectHandler) HandleGetProject(w http.ResponseWriter, r *http.Request) error {
	projectID, err := projectIDParam(r)
	if err != nil {
		return err
	}

	project, err := h.Repo.GetProjectByID(r.Context(), projectID)
	if err != nil {
		return fmt.Errorf("failed to retrieve project %s: %w", projectID, err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, project)
	return nil
}

// HandleDeleteProject removes a project together with its repositories and
// signatures.
// Example route: DELETE /api/projects/{id}
func (h *ProjectHandler) HandleDeleteProject(w http.ResponseWriter, r *http.Request) error {
	projectID, err := projectIDParam(r)
	if err != nil {
		return err
	}

	if err := h.Repo.DeleteProject(r.Context(), projectID); err != nil {
		return fmt.Errorf("failed to delete project %s: %w", projectID, err)
	}

	recordEvent(r.Context(), h.Events, models.EventProjectDeleted,
		eventRefs{ProjectID: projectID},
		fmt.Sprintf("Project %s deleted", projectID))

	log.Printf("INFO: Project %s deleted", projectID)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type createRepositoryRequest struct {
	ExternalID     int64  `json:"external_id"`
	FullName       string `json:"full_name"`
	InstallationID int64  `json:"installation_id"`
}

// HandleCreateRepository links a GitHub repository to a project so its pull
// requests are checked.
// Example route: POST /api/projects/{id}/repositories
func (h *ProjectHandler) HandleCreateRepository(w http.ResponseWriter, r *http.Request) error {
	projectID, err := projectIDParam(r)
	if err != nil {
		return err
	}

	var req createRepositoryRequest
	if err := webutil.DecodeJSON(r, &req); err != nil {
		return err
	}
	if req.ExternalID <= 0 {
		return webutil.ErrBadRequest("external_id is required")
	}
	if req.InstallationID <= 0 {
		return webutil.ErrBadRequest("installation_id is required")
	}
	if owner, name, ok := strings.Cut(req.FullName, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return webutil.ErrBadRequest("full_name must look like owner/repository")
	}

	repo := models.Repository{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		CreatedAt:      time.Now().UTC(),
		Provider:       models.RepositoryProviderGitHub,
		ExternalID:     req.ExternalID,
		FullName:       req.FullName,
		InstallationID: req.InstallationID,
	}
	if err := h.Repositories.CreateRepository(r.Context(), &repo); err != nil {
		return fmt.Errorf("failed to add repository %s to project %s: %w", req.FullName, projectID, err)
	}

	recordEvent(r.Context(), h.Events, models.EventRepositoryAdded,
		eventRefs{ProjectID: projectID},
		fmt.Sprintf("Repository %s added", repo.FullName))

	log.Printf("INFO: Repository %s added to project %s", repo.FullName, projectID)
	webutil.RespondWithJSON(w, http.StatusCreated, repo)
	return nil
}

func (h *ProjectHandler) HandleGetRepositories(w http.ResponseWriter, r *http.Request) error {
	projectID, err := projectIDParam(r)
	if err != nil {
		return err
	}

	repos, err := h.Repositories.GetRepositoriesByProjectID(r.Context(), projectID)
	if err != nil {
		return fmt.Errorf("failed to retrieve repositories for project %s: %w", projectID, err)
	}
	if repos == nil {
		repos = []models.Repository{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, repos)
	return nil
}

func (h *ProjectHandler) HandleGetProjectSignatures(w http.ResponseWriter, r *http.Request) error {
	projectID, err := projectIDParam(r)
	if err != nil {
		return err
	}

	sigs, err := h.Signatures.GetSignaturesByProjectID(r.Context(), projectID)
	if err != nil {
		return fmt.Errorf("failed to retrieve signatures for project %s: %w", projectID, err)
	}
	if sigs == nil {
		sigs = []models.Signature{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, sigs)
	return nil
}

func projectIDParam(r *http.Request) (string, error) {
	projectID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(projectID); err != nil {
		return "", webutil.ErrBadRequest("Invalid project ID format")
	}
	return projectID, nil
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
