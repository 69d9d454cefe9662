package webhooks

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coreybb/signet/coverage"
	"github.com/coreybb/signet/githubapp"
	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/webutil"
)

const testSecret = "webhook-secret"

type fakeRepos struct {
	repos map[int64]*models.Repository
}

func (f *fakeRepos) GetRepositoryByExternalID(ctx context.Context, provider models.RepositoryProvider, externalID int64) (*models.Repository, error) {
	if r, ok := f.repos[externalID]; ok && provider == models.RepositoryProviderGitHub {
		return r, nil
	}
	return nil, fmt.Errorf("repository %d: %w", externalID, sql.ErrNoRows)
}

type statusCall struct {
	installationID int64
	repo, sha      string
	status         githubapp.Status
}

type fakeGitHub struct {
	commits  []githubapp.Commit
	listErr  error
	statuses []statusCall
}

func (f *fakeGitHub) ListPullRequestCommits(ctx context.Context, installationID int64, repo string, number int) ([]githubapp.Commit, error) {
	return f.commits, f.listErr
}

func (f *fakeGitHub) CreateStatus(ctx context.Context, installationID int64, repo, sha string, status githubapp.Status) error {
	f.statuses = append(f.statuses, statusCall{installationID, repo, sha, status})
	return nil
}

// fakeCoverage covers contributors whose email is in covered.
type fakeCoverage struct {
	covered   map[string]bool
	err       error
	projectID string
	seen      []coverage.Contributor
}

func (f *fakeCoverage) Check(ctx context.Context, projectID string, contributors []coverage.Contributor) ([]coverage.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.projectID = projectID
	f.seen = contributors
	var results []coverage.Result
	for _, c := range contributors {
		results = append(results, coverage.Result{Contributor: c, Covered: f.covered[c.Email]})
	}
	return results, nil
}

type harness struct {
	handler  http.HandlerFunc
	github   *fakeGitHub
	coverage *fakeCoverage
}

func newHarness() *harness {
	gh := &fakeGitHub{commits: []githubapp.Commit{{
		SHA:         "c1",
		Message:     "Add widget\n\nCo-authored-by: Pat Doe <pat@ibm.com>",
		AuthorName:  "Sam",
		AuthorEmail: "sam@ibm.com",
		AuthorLogin: "sam",
		AuthorID:    10,
	}}}
	cov := &fakeCoverage{covered: map[string]bool{"sam@ibm.com": true}}
	repos := &fakeRepos{repos: map[int64]*models.Repository{
		555: {ID: "r1", ProjectID: "p1", Provider: models.RepositoryProviderGitHub, ExternalID: 555, FullName: "acme/widgets", InstallationID: 7},
	}}
	h := NewGitHubHandler(testSecret, repos, gh, cov, "https://cla.example.org/sign")
	return &harness{handler: webutil.MakeHandler(h.HandleEvent), github: gh, coverage: cov}
}

func pullRequestPayload(action string, repoID int64) []byte {
	b, _ := json.Marshal(map[string]any{
		"action":       action,
		"number":       12,
		"pull_request": map[string]any{"head": map[string]any{"sha": "deadbeef"}},
		"repository":   map[string]any{"id": repoID, "full_name": "acme/widgets"},
		"installation": map[string]any{"id": 8},
	})
	return b
}

func (h *harness) deliver(t *testing.T, event string, body []byte, signature string) (*httptest.ResponseRecorder, webhookResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set(webutil.HeaderGitHubEvent, event)
	req.Header.Set(webutil.HeaderGitHubDelivery, "d-1")
	req.Header.Set(webutil.HeaderHubSignature256, signature)
	rec := httptest.NewRecorder()
	h.handler(rec, req)

	var resp webhookResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, resp
}

func sign(body []byte) string {
	return webutil.SignPayload([]byte(testSecret), body)
}

func TestRejectsBadSignature(t *testing.T) {
	h := newHarness()
	body := pullRequestPayload("opened", 555)

	rec, _ := h.deliver(t, "pull_request", body, "sha256=00")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(h.github.statuses) != 0 {
		t.Error("no status should be published for unverified deliveries")
	}
}

func TestPing(t *testing.T) {
	h := newHarness()
	body := []byte(`{"zen":"Keep it logically awesome."}`)
	_, resp := h.deliver(t, "ping", body, sign(body))
	if resp.Status != "pong" {
		t.Errorf("status = %q, want pong", resp.Status)
	}
}

func TestIgnoredDeliveries(t *testing.T) {
	tests := []struct {
		name  string
		event string
		body  []byte
	}{
		{"other event", "issues", []byte(`{"action":"opened"}`)},
		{"closed action", "pull_request", pullRequestPayload("closed", 555)},
		{"unregistered repository", "pull_request", pullRequestPayload("opened", 999)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			rec, resp := h.deliver(t, tt.event, tt.body, sign(tt.body))
			if rec.Code != http.StatusOK || resp.Status != "ignored" {
				t.Errorf("got %d %+v, want 200 ignored", rec.Code, resp)
			}
			if len(h.github.statuses) != 0 {
				t.Error("ignored deliveries must not publish a status")
			}
		})
	}
}

func TestMissingCLASetsFailure(t *testing.T) {
	h := newHarness()
	body := pullRequestPayload("opened", 555)

	rec, resp := h.deliver(t, "pull_request", body, sign(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if resp.State != "failure" || len(resp.Results) != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if h.coverage.projectID != "p1" {
		t.Errorf("checked project %q, want p1", h.coverage.projectID)
	}

	if len(h.github.statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(h.github.statuses))
	}
	call := h.github.statuses[0]
	if call.installationID != 8 || call.repo != "acme/widgets" || call.sha != "deadbeef" {
		t.Errorf("unexpected status target: %+v", call)
	}
	if call.status.State != githubapp.StatusFailure || call.status.Context != StatusContext {
		t.Errorf("unexpected status: %+v", call.status)
	}
	if !strings.Contains(call.status.Description, "pat@ibm.com") {
		t.Errorf("description should name the missing contributor: %q", call.status.Description)
	}
	if !strings.HasPrefix(call.status.TargetURL, "https://cla.example.org/sign?") || !strings.Contains(call.status.TargetURL, "project_id=p1") {
		t.Errorf("unexpected target URL %q", call.status.TargetURL)
	}
}

func TestAllCoveredSetsSuccess(t *testing.T) {
	h := newHarness()
	h.coverage.covered["pat@ibm.com"] = true
	body := pullRequestPayload("synchronize", 555)

	_, resp := h.deliver(t, "pull_request", body, sign(body))
	if resp.State != "success" {
		t.Errorf("state = %q, want success", resp.State)
	}
	if s := h.github.statuses[0].status; s.State != githubapp.StatusSuccess || s.TargetURL != "" {
		t.Errorf("unexpected status: %+v", s)
	}
}

func TestCoverageErrorReportsErrorStatus(t *testing.T) {
	h := newHarness()
	h.coverage.err = errors.New("database unavailable")
	body := pullRequestPayload("reopened", 555)

	rec, _ := h.deliver(t, "pull_request", body, sign(body))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if len(h.github.statuses) != 1 || h.github.statuses[0].status.State != githubapp.StatusError {
		t.Errorf("expected an error status, got %+v", h.github.statuses)
	}
}

func TestListCommitsError(t *testing.T) {
	h := newHarness()
	h.github.listErr = &githubapp.APIError{StatusCode: http.StatusBadGateway, Message: "upstream"}
	body := pullRequestPayload("opened", 555)

	rec, _ := h.deliver(t, "pull_request", body, sign(body))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	got := truncate(strings.Repeat("é", 100), 20)
	if len(got) > 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() = %q (%d bytes)", got, len(got))
	}
}
