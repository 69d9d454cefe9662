package webhooks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coreybb/signet/coverage"
	"github.com/coreybb/signet/githubapp"
	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/webutil"
)

const (
	// StatusContext names the commit status this service owns on pull requests.
	StatusContext = "signet/cla"

	eventPing        = "ping"
	eventPullRequest = "pull_request"

	maxPayloadBytes = 25 << 20
	// GitHub rejects status descriptions longer than this.
	maxStatusDescription = 140
)

var checkedActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

type CommitStatusClient interface {
	ListPullRequestCommits(ctx context.Context, installationID int64, repo string, number int) ([]githubapp.Commit, error)
	CreateStatus(ctx context.Context, installationID int64, repo, sha string, status githubapp.Status) error
}

type RepositoryLookup interface {
	GetRepositoryByExternalID(ctx context.Context, provider models.RepositoryProvider, externalID int64) (*models.Repository, error)
}

type CoverageChecker interface {
	Check(ctx context.Context, projectID string, contributors []coverage.Contributor) ([]coverage.Result, error)
}

// GitHubHandler checks CLA coverage for pull requests and reports it as a
// commit status.
type GitHubHandler struct {
	Secret   []byte
	Repos    RepositoryLookup
	GitHub   CommitStatusClient
	Coverage CoverageChecker
	SignURL  string
}

func NewGitHubHandler(secret string, repos RepositoryLookup, gh CommitStatusClient, checker CoverageChecker, signURL string) *GitHubHandler {
	if secret == "" {
		log.Println("WARNING: GITHUB_WEBHOOK_SECRET not set. All GitHub webhooks will be rejected.")
	}
	return &GitHubHandler{
		Secret:   []byte(secret),
		Repos:    repos,
		GitHub:   gh,
		Coverage: checker,
		SignURL:  signURL,
	}
}

type pullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		ID       int64  `json:"id"`
		FullName string `json:"full_name"`
	} `json:"repository"`
	Installation *struct {
		ID int64 `json:"id"`
	} `json:"installation"`
}

// webhookResponse is returned to GitHub for every accepted delivery.
type webhookResponse struct {
	Status  string            `json:"status"`
	Reason  string            `json:"reason,omitempty"`
	State   string            `json:"state,omitempty"`
	Results []coverage.Result `json:"results,omitempty"`
}

func (h *GitHubHandler) HandleEvent(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		return webutil.ErrBadRequest("Failed to read request body")
	}
	defer r.Body.Close()

	if !webutil.VerifyPayloadSignature(h.Secret, body, r.Header.Get(webutil.HeaderHubSignature256)) {
		return webutil.ErrUnauthorized("Invalid webhook signature")
	}

	event := r.Header.Get(webutil.HeaderGitHubEvent)
	delivery := r.Header.Get(webutil.HeaderGitHubDelivery)

	switch event {
	case eventPing:
		webutil.RespondWithJSON(w, http.StatusOK, webhookResponse{Status: "pong"})
		return nil
	case eventPullRequest:
	default:
		return ignore(w, "event "+strconv.Quote(event)+" not handled")
	}

	var payload pullRequestEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return webutil.ErrBadRequest("Invalid pull_request payload: " + err.Error())
	}
	if !checkedActions[payload.Action] {
		return ignore(w, "action "+strconv.Quote(payload.Action)+" not handled")
	}
	if payload.PullRequest.Head.SHA == "" || payload.Repository.FullName == "" {
		return webutil.ErrBadRequest("pull_request payload is missing head SHA or repository")
	}

	repo, err := h.Repos.GetRepositoryByExternalID(r.Context(), models.RepositoryProviderGitHub, payload.Repository.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("INFO (GitHubWebhook): Delivery %s for unregistered repository %s", delivery, payload.Repository.FullName)
			return ignore(w, "repository not registered")
		}
		return fmt.Errorf("failed to look up repository %d: %w", payload.Repository.ID, err)
	}

	installationID := repo.InstallationID
	if payload.Installation != nil && payload.Installation.ID != 0 {
		installationID = payload.Installation.ID
	}

	log.Printf("INFO (GitHubWebhook): Checking %s#%d (%s) for project %s, delivery %s",
		payload.Repository.FullName, payload.Number, payload.Action, repo.ProjectID, delivery)

	status, results, err := h.check(r.Context(), repo, installationID, payload)
	if err != nil {
		return err
	}

	if err := h.GitHub.CreateStatus(r.Context(), installationID, payload.Repository.FullName, payload.PullRequest.Head.SHA, status); err != nil {
		return fmt.Errorf("failed to publish CLA status: %w", err)
	}

	webutil.RespondWithJSON(w, http.StatusOK, webhookResponse{
		Status:  "checked",
		State:   string(status.State),
		Results: results,
	})
	return nil
}

func (h *GitHubHandler) check(ctx context.Context, repo *models.Repository, installationID int64, payload pullRequestEvent) (githubapp.Status, []coverage.Result, error) {
	commits, err := h.GitHub.ListPullRequestCommits(ctx, installationID, payload.Repository.FullName, payload.Number)
	if err != nil {
		return githubapp.Status{}, nil, fmt.Errorf("failed to list pull request commits: %w", err)
	}

	results, err := h.Coverage.Check(ctx, repo.ProjectID, CollectContributors(commits))
	if err != nil {
		h.reportError(ctx, installationID, payload)
		return githubapp.Status{}, nil, fmt.Errorf("failed to check CLA coverage: %w", err)
	}

	return h.statusFor(repo, payload, results), results, nil
}

func (h *GitHubHandler) statusFor(repo *models.Repository, payload pullRequestEvent, results []coverage.Result) githubapp.Status {
	if coverage.AllCovered(results) {
		return githubapp.Status{
			State:       githubapp.StatusSuccess,
			Description: "All contributors are covered by a CLA",
			Context:     StatusContext,
		}
	}

	missing := coverage.Missing(results)
	description := fmt.Sprintf("%d of %d contributors must sign a CLA", len(missing), len(results))
	if len(missing) == 1 {
		who := firstNonEmpty(missing[0].Contributor.Login, missing[0].Contributor.Email, missing[0].Contributor.Name)
		description = who + " must sign a CLA"
	}

	log.Printf("INFO (GitHubWebhook): %s#%d missing CLA for %d contributor(s)", payload.Repository.FullName, payload.Number, len(missing))
	return githubapp.Status{
		State:       githubapp.StatusFailure,
		TargetURL:   h.signURL(repo, payload),
		Description: truncate(description, maxStatusDescription),
		Context:     StatusContext,
	}
}

func (h *GitHubHandler) reportError(ctx context.Context, installationID int64, payload pullRequestEvent) {
	status := githubapp.Status{
		State:       githubapp.StatusError,
		Description: "CLA check failed, push again to retry",
		Context:     StatusContext,
	}
	if err := h.GitHub.CreateStatus(ctx, installationID, payload.Repository.FullName, payload.PullRequest.Head.SHA, status); err != nil {
		log.Printf("WARN (GitHubWebhook): Failed to report error status on %s@%s: %v",
			payload.Repository.FullName, payload.PullRequest.Head.SHA, err)
	}
}

func (h *GitHubHandler) signURL(repo *models.Repository, payload pullRequestEvent) string {
	if h.SignURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("project_id", repo.ProjectID)
	q.Set("repository", payload.Repository.FullName)
	q.Set("pull_request", strconv.Itoa(payload.Number))
	return h.SignURL + "?" + q.Encode()
}

func ignore(w http.ResponseWriter, reason string) error {
	webutil.RespondWithJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Reason: reason})
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	for len(string(runes)) > n-3 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
