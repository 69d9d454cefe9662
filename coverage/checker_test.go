package coverage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/whitelist"
)

type fakeUsers struct {
	byGitHubID map[int64]*models.User
	byEmail    map[string]*models.User
	err        error
}

func (f *fakeUsers) GetUserByGitHubID(ctx context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.byGitHubID[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user with github id %d: %w", id, sql.ErrNoRows)
}

func (f *fakeUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user with email %s: %w", email, sql.ErrNoRows)
}

type fakeSignatures struct {
	sigs  map[string]*models.Signature
	calls int
}

func sigKey(projectID string, t models.SignatureType, ref string) string {
	return projectID + "/" + string(t) + "/" + ref
}

func (f *fakeSignatures) GetSignature(ctx context.Context, projectID string, t models.SignatureType, ref string) (*models.Signature, error) {
	f.calls++
	if s, ok := f.sigs[sigKey(projectID, t, ref)]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("signature: %w", sql.ErrNoRows)
}

func strPtr(s string) *string { return &s }

func fixture() (*fakeUsers, *fakeSignatures) {
	ibm := strPtr("ibm")
	alice := &models.User{ID: "u-alice", Emails: []string{"alice@example.org"}}
	bob := &models.User{ID: "u-bob", Emails: []string{"bob@ibm.com"}, CompanyID: ibm}
	carol := &models.User{ID: "u-carol", Emails: []string{"carol@gmail.com"}, CompanyID: ibm, GitHubUsername: "CarolDev"}
	dave := &models.User{ID: "u-dave", Emails: []string{"dave@ibm.co.uk"}, CompanyID: ibm}

	users := &fakeUsers{
		byGitHubID: map[int64]*models.User{1: alice, 2: bob, 3: carol},
		byEmail: map[string]*models.User{
			"alice@example.org": alice,
			"bob@ibm.com":       bob,
			"carol@gmail.com":   carol,
			"dave@ibm.co.uk":    dave,
		},
	}

	sigs := &fakeSignatures{sigs: map[string]*models.Signature{
		sigKey("k8s", models.SignatureTypeICLA, "u-alice"): {
			ID: "s-alice", Type: models.SignatureTypeICLA, Signed: true, Approved: true,
		},
		sigKey("k8s", models.SignatureTypeCCLA, "ibm"): {
			ID: "s-ibm", Type: models.SignatureTypeCCLA, Signed: true, Approved: true,
			ApprovalList:    whitelist.Entries{whitelist.Pattern("*@ibm.com")},
			GitHubUsernames: []string{"caroldev"},
		},
	}}
	return users, sigs
}

func TestCheck(t *testing.T) {
	users, sigs := fixture()
	checker := NewChecker(users, sigs, time.Minute)

	tests := []struct {
		name        string
		contributor Contributor
		covered     bool
		reason      Reason
	}{
		{"icla by github id", Contributor{GitHubID: 1}, true, ReasonICLA},
		{"icla by email", Contributor{Email: "alice@example.org"}, true, ReasonICLA},
		{"ccla approval list", Contributor{GitHubID: 2, Email: "bob@ibm.com"}, true, ReasonCCLAApprovalList},
		{"ccla github username is case-insensitive", Contributor{GitHubID: 3, Login: "CAROLDEV"}, true, ReasonCCLAGitHub},
		{"employee not on list", Contributor{Email: "dave@ibm.co.uk"}, false, ReasonNotApproved},
		{"unknown user", Contributor{Email: "mallory@ibm.com"}, false, ReasonUnknownUser},
		{"no identity", Contributor{Name: "anonymous"}, false, ReasonUnknownUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := checker.Check(context.Background(), "k8s", []Contributor{tt.contributor})
			if err != nil {
				t.Fatalf("Check() error: %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if results[0].Covered != tt.covered || results[0].Reason != tt.reason {
				t.Errorf("got covered=%v reason=%q, want covered=%v reason=%q",
					results[0].Covered, results[0].Reason, tt.covered, tt.reason)
			}
		})
	}
}

func TestCheckUsesAnyKnownEmail(t *testing.T) {
	users, sigs := fixture()
	// The commit address is personal but the user record holds a company address.
	users.byGitHubID[4] = &models.User{ID: "u-erin", Emails: []string{"erin@gmail.com", "erin@ibm.com"}, CompanyID: strPtr("ibm")}
	checker := NewChecker(users, sigs, time.Minute)

	results, err := checker.Check(context.Background(), "k8s", []Contributor{{GitHubID: 4, Email: "erin@gmail.com"}})
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].Covered {
		t.Errorf("expected coverage through a secondary address, got %+v", results[0])
	}
}

func TestCheckInactiveSignatures(t *testing.T) {
	users, sigs := fixture()
	sigs.sigs[sigKey("k8s", models.SignatureTypeICLA, "u-alice")].Approved = false
	sigs.sigs[sigKey("k8s", models.SignatureTypeCCLA, "ibm")].Signed = false
	checker := NewChecker(users, sigs, time.Minute)

	results, err := checker.Check(context.Background(), "k8s", []Contributor{{GitHubID: 1}, {GitHubID: 2}})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Covered || r.Reason != ReasonNoSignature {
			t.Errorf("expected no signature for %s, got %+v", r.UserID, r)
		}
	}
	if AllCovered(results) {
		t.Error("AllCovered() should be false")
	}
	if len(Missing(results)) != 2 {
		t.Errorf("expected 2 missing, got %d", len(Missing(results)))
	}
}

func TestCheckOtherProject(t *testing.T) {
	users, sigs := fixture()
	checker := NewChecker(users, sigs, time.Minute)

	results, err := checker.Check(context.Background(), "etcd", []Contributor{{GitHubID: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Covered {
		t.Error("signatures must not cover other projects")
	}
}

func TestCheckPropagatesLookupErrors(t *testing.T) {
	users, sigs := fixture()
	users.err = errors.New("connection refused")
	checker := NewChecker(users, sigs, time.Minute)

	if _, err := checker.Check(context.Background(), "k8s", []Contributor{{GitHubID: 1}}); err == nil {
		t.Error("expected lookup error")
	}
}

func TestMatcherCache(t *testing.T) {
	users, sigs := fixture()
	checker := NewChecker(users, sigs, time.Minute)
	sig := sigs.sigs[sigKey("k8s", models.SignatureTypeCCLA, "ibm")]

	first := checker.Matcher(sig)
	if checker.Matcher(sig) != first {
		t.Error("expected cached matcher for unchanged signature")
	}

	sig.ApprovalList = append(sig.ApprovalList, whitelist.Literal("dave@ibm.co.uk"))
	sig.UpdatedAt = sig.UpdatedAt.Add(time.Second)
	second := checker.Matcher(sig)
	if second == first {
		t.Error("expected recompilation after update")
	}
	if !second.Match("dave@ibm.co.uk") {
		t.Error("recompiled matcher should include new entry")
	}

	checker.Invalidate(sig.ID)
	if checker.Matcher(sig) == second {
		t.Error("expected recompilation after Invalidate")
	}
}

func TestAllCoveredEmpty(t *testing.T) {
	if !AllCovered(nil) {
		t.Error("no contributors means nothing is missing")
	}
}
