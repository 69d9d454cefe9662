package routehandlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/webutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

type UserHandler struct {
	Repo UserStore
}

func NewUserHandler(repo UserStore) *UserHandler {
	return &UserHandler{Repo: repo}
}

func (h *UserHandler) HandleGetUsers(w http.ResponseWriter, r *http.Request) error {
	users, err := h.Repo.GetUsers(r.Context())
	if err != nil {
		return fmt.Errorf("failed to retrieve users: %w", err)
	}
	if users == nil {
		users = []models.User{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, users)
	return nil
}

type createUserRequest struct {
	Name           string   `json:"name"`
	Emails         []string `json:"emails"`
	GitHubID       *int64   `json:"github_id"`
	GitHubUsername string   `json:"github_username"`
	CompanyID      *string  `json:"company_id"`
}

func (h *UserHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) error {
	var req createUserRequest
	if err := webutil.DecodeJSON(r, &req); err != nil {
		return err
	}

	emails, err := normalizeEmails(req.Emails)
	if err != nil {
		return err
	}
	if len(emails) == 0 && req.GitHubID == nil {
		return webutil.ErrBadRequest("At least one email or a GitHub ID is required")
	}
	if req.GitHubID != nil && *req.GitHubID <= 0 {
		return webutil.ErrBadRequest("github_id must be positive")
	}
	if req.CompanyID != nil {
		if _, err := uuid.Parse(*req.CompanyID); err != nil {
			return webutil.ErrBadRequest("Invalid company_id format")
		}
	}

	newUser := models.User{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Name:           strings.TrimSpace(req.Name),
		Emails:         emails,
		GitHubID:       req.GitHubID,
		GitHubUsername: strings.TrimSpace(req.GitHubUsername),
		CompanyID:      req.CompanyID,
	}

	// A duplicate GitHub ID surfaces as datastore.ErrDuplicate (409) and an
	// unknown company as datastore.ErrMissingReference.
	if err := h.Repo.CreateUser(r.Context(), &newUser); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	webutil.RespondWithJSON(w, http.StatusCreated, newUser)
	return nil
}

func (h *UserHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) error {
	userID := chi.URLParam(r, "id") // "id" is the common constant name in routes.go
	if _, err := uuid.Parse(userID); err != nil {
		return webutil.ErrBadRequest("Invalid user ID format")
	}

	user, err := h.Repo.GetUserByID(r.Context(), userID)
	if err != nil {
		return fmt.Errorf("failed to retrieve user %s: %w", userID, err)
	}

	webutil.RespondWithJSON(w, http.StatusOK, user)
	return nil
}

// normalizeEmails trims and deduplicates addresses. Case is preserved since
// approval lists compare addresses exactly.
func normalizeEmails(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !looksLikeEmail(e) {
			return nil, webutil.ErrBadRequest(fmt.Sprintf("Invalid email address %q", e))
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func looksLikeEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n<>")
}
