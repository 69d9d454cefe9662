package githubapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultAPIBaseURL = "https://api.github.com"
	acceptHeader      = "application/vnd.github+json"
	apiVersion        = "2022-11-28"

	commitsPerPage = 100
	// GitHub stops listing pull request commits after 250.
	maxPullRequestCommits = 250

	// Installation tokens are dropped from the cache this long before GitHub
	// expires them.
	tokenExpiryMargin = time.Minute
)

// StatusState is a GitHub commit status state.
type StatusState string

const (
	StatusSuccess StatusState = "success"
	StatusFailure StatusState = "failure"
	StatusPending StatusState = "pending"
	StatusError   StatusState = "error"
)

// Status is a commit status to publish on a SHA.
type Status struct {
	State       StatusState `json:"state"`
	TargetURL   string      `json:"target_url,omitempty"`
	Description string      `json:"description,omitempty"`
	Context     string      `json:"context"`
}

// Commit is the subset of a pull request commit needed to identify its
// contributors.
type Commit struct {
	SHA         string
	Message     string
	AuthorName  string
	AuthorEmail string
	AuthorLogin string
	AuthorID    int64
}

// Client talks to the GitHub REST API as a GitHub App installation.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *AppSigner
	tokens  *cache.Cache
}

// NewClient creates a Client. An empty baseURL targets api.github.com.
func NewClient(signer *AppSigner, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		signer:  signer,
		tokens:  cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

type installationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InstallationToken returns an access token for installationID, reusing a
// cached one while it has more than tokenExpiryMargin left.
func (c *Client) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	key := strconv.FormatInt(installationID, 10)
	if token, ok := c.tokens.Get(key); ok {
		return token.(string), nil
	}

	appJWT, err := c.signer.AppJWT()
	if err != nil {
		return "", err
	}

	var tok installationToken
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)
	if err := c.do(ctx, http.MethodPost, path, appJWT, nil, &tok); err != nil {
		return "", fmt.Errorf("failed to create installation token for %d: %w", installationID, err)
	}

	ttl := time.Until(tok.ExpiresAt) - tokenExpiryMargin
	if ttl > 0 {
		c.tokens.Set(key, tok.Token, ttl)
	}
	return tok.Token, nil
}

type apiCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
		ID    int64  `json:"id"`
	} `json:"author"`
}

// ListPullRequestCommits lists the commits of a pull request in repo
// ("owner/name").
func (c *Client) ListPullRequestCommits(ctx context.Context, installationID int64, repo string, number int) ([]Commit, error) {
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for page := 1; len(commits) < maxPullRequestCommits; page++ {
		path := fmt.Sprintf("/repos/%s/pulls/%d/commits?per_page=%d&page=%d", repo, number, commitsPerPage, page)
		var batch []apiCommit
		if err := c.do(ctx, http.MethodGet, path, token, nil, &batch); err != nil {
			return nil, fmt.Errorf("failed to list commits for %s#%d: %w", repo, number, err)
		}

		for _, ac := range batch {
			commit := Commit{
				SHA:         ac.SHA,
				Message:     ac.Commit.Message,
				AuthorName:  ac.Commit.Author.Name,
				AuthorEmail: ac.Commit.Author.Email,
			}
			if ac.Author != nil {
				commit.AuthorLogin = ac.Author.Login
				commit.AuthorID = ac.Author.ID
			}
			commits = append(commits, commit)
		}

		if len(batch) < commitsPerPage {
			break
		}
	}
	return commits, nil
}

// CreateStatus publishes status on sha in repo ("owner/name").
func (c *Client) CreateStatus(ctx context.Context, installationID int64, repo, sha string, status Status) error {
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/repos/%s/statuses/%s", repo, sha)
	if err := c.do(ctx, http.MethodPost, path, token, status, nil); err != nil {
		return fmt.Errorf("failed to create status on %s@%s: %w", repo, sha, err)
	}
	log.Printf("INFO (GitHubApp): Set %s status %q on %s@%s", status.Context, status.State, repo, sha)
	return nil
}

// APIError is a non-2xx response from GitHub.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github API returned status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiMsg struct {
			Message string `json:"message"`
		}
		msg := string(respBody)
		if json.Unmarshal(respBody, &apiMsg) == nil && apiMsg.Message != "" {
			msg = apiMsg.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
