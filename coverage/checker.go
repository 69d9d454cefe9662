// Package coverage decides whether pull request contributors are covered by
// a signed CLA on a project.
package coverage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/whitelist"
	"github.com/patrickmn/go-cache"
)

// Reason explains a coverage decision.
type Reason string

const (
	ReasonICLA             Reason = "individual CLA on file"
	ReasonCCLAApprovalList Reason = "corporate CLA approval list"
	ReasonCCLAGitHub       Reason = "corporate CLA GitHub username"
	ReasonUnknownUser      Reason = "no user record"
	ReasonNotApproved      Reason = "not on company approval list"
	ReasonNoSignature      Reason = "no signed CLA"
)

// Contributor is one identity found on a pull request.
type Contributor struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Login    string `json:"login,omitempty"`
	GitHubID int64  `json:"github_id,omitempty"`
}

// Result is the decision for one contributor.
type Result struct {
	Contributor Contributor `json:"contributor"`
	Covered     bool        `json:"covered"`
	Reason      Reason      `json:"reason"`
	UserID      string      `json:"user_id,omitempty"`
}

type UserLookup interface {
	GetUserByGitHubID(ctx context.Context, githubID int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type SignatureLookup interface {
	GetSignature(ctx context.Context, projectID string, sigType models.SignatureType, referenceID string) (*models.Signature, error)
}

// Checker resolves contributors to users and checks their ICLA and CCLA
// coverage. Compiled approval lists are cached per signature.
type Checker struct {
	users      UserLookup
	signatures SignatureLookup
	matchers   *cache.Cache
}

type cachedMatcher struct {
	updatedAt time.Time
	matcher   *whitelist.Matcher
}

// NewChecker creates a Checker whose compiled approval lists live for ttl.
func NewChecker(users UserLookup, signatures SignatureLookup, ttl time.Duration) *Checker {
	return &Checker{
		users:      users,
		signatures: signatures,
		matchers:   cache.New(ttl, 2*ttl),
	}
}

// Invalidate drops the compiled approval list of a signature.
func (c *Checker) Invalidate(signatureID string) {
	c.matchers.Delete(signatureID)
}

// Matcher returns the compiled approval list for sig, compiling it on first
// use or when the signature changed since it was cached.
func (c *Checker) Matcher(sig *models.Signature) *whitelist.Matcher {
	if v, ok := c.matchers.Get(sig.ID); ok {
		cm := v.(cachedMatcher)
		if cm.updatedAt.Equal(sig.UpdatedAt) {
			return cm.matcher
		}
	}
	m := whitelist.Compile(sig.ApprovalList)
	c.matchers.SetDefault(sig.ID, cachedMatcher{updatedAt: sig.UpdatedAt, matcher: m})
	return m
}

// Check decides coverage for every contributor on projectID.
func (c *Checker) Check(ctx context.Context, projectID string, contributors []Contributor) ([]Result, error) {
	results := make([]Result, 0, len(contributors))
	for _, contributor := range contributors {
		result, err := c.checkOne(ctx, projectID, contributor)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (c *Checker) checkOne(ctx context.Context, projectID string, contributor Contributor) (Result, error) {
	result := Result{Contributor: contributor}

	user, err := c.findUser(ctx, contributor)
	if err != nil {
		return result, err
	}
	if user == nil {
		result.Reason = ReasonUnknownUser
		return result, nil
	}
	result.UserID = user.ID

	icla, err := c.activeSignature(ctx, projectID, models.SignatureTypeICLA, user.ID)
	if err != nil {
		return result, err
	}
	if icla != nil {
		result.Covered = true
		result.Reason = ReasonICLA
		return result, nil
	}

	result.Reason = ReasonNoSignature
	if user.CompanyID == nil {
		return result, nil
	}
	ccla, err := c.activeSignature(ctx, projectID, models.SignatureTypeCCLA, *user.CompanyID)
	if err != nil {
		return result, err
	}
	if ccla == nil {
		return result, nil
	}

	if c.Matcher(ccla).Authorized(contributorEmails(contributor, user)) {
		result.Covered = true
		result.Reason = ReasonCCLAApprovalList
		return result, nil
	}
	if login := firstNonEmpty(contributor.Login, user.GitHubUsername); login != "" && containsFold(ccla.GitHubUsernames, login) {
		result.Covered = true
		result.Reason = ReasonCCLAGitHub
		return result, nil
	}

	result.Reason = ReasonNotApproved
	return result, nil
}

func (c *Checker) findUser(ctx context.Context, contributor Contributor) (*models.User, error) {
	if contributor.GitHubID != 0 {
		user, err := c.users.GetUserByGitHubID(ctx, contributor.GitHubID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to look up GitHub user %d: %w", contributor.GitHubID, err)
		}
	}
	if contributor.Email != "" {
		user, err := c.users.GetUserByEmail(ctx, contributor.Email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to look up user by email: %w", err)
		}
	}
	return nil, nil
}

func (c *Checker) activeSignature(ctx context.Context, projectID string, sigType models.SignatureType, referenceID string) (*models.Signature, error) {
	sig, err := c.signatures.GetSignature(ctx, projectID, sigType, referenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up %s for %s: %w", sigType, referenceID, err)
	}
	if !sig.Active() {
		return nil, nil
	}
	return sig, nil
}

// contributorEmails is the commit address followed by every address on the
// user record, without duplicates.
func contributorEmails(contributor Contributor, user *models.User) []string {
	emails := make([]string, 0, len(user.Emails)+1)
	seen := make(map[string]struct{}, len(user.Emails)+1)
	for _, e := range append([]string{contributor.Email}, user.Emails...) {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		emails = append(emails, e)
	}
	return emails
}

// GitHub logins are case-insensitive.
func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// AllCovered reports whether every result is covered. An empty set is covered.
func AllCovered(results []Result) bool {
	for _, r := range results {
		if !r.Covered {
			return false
		}
	}
	return true
}

// Missing returns the results that are not covered.
func Missing(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Covered {
			out = append(out, r)
		}
	}
	return out
}
