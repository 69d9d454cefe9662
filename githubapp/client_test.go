package githubapp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestNewAppSignerParsesPEM(t *testing.T) {
	key := testKey(t)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	signer, err := NewAppSigner(42, pemBytes)
	if err != nil {
		t.Fatalf("NewAppSigner() error: %v", err)
	}
	if signer.Key.N.Cmp(key.N) != 0 {
		t.Error("parsed key does not match")
	}

	if _, err := NewAppSigner(42, []byte("not a key")); err == nil {
		t.Error("expected error for invalid PEM")
	}
	if _, err := NewAppSigner(0, pemBytes); err == nil {
		t.Error("expected error for zero app ID")
	}
}

func TestAppJWTClaims(t *testing.T) {
	key := testKey(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := &AppSigner{AppID: 1234, Key: key, Now: func() time.Time { return now }}

	signed, err := signer.AppJWT()
	if err != nil {
		t.Fatalf("AppJWT() error: %v", err)
	}

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(signed, &claims, func(token *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if claims.Issuer != "1234" {
		t.Errorf("issuer = %q, want 1234", claims.Issuer)
	}
	if got := claims.IssuedAt.Time; !got.Equal(now.Add(-60 * time.Second)) {
		t.Errorf("iat = %v", got)
	}
	if got := claims.ExpiresAt.Time; !got.Equal(now.Add(9 * time.Minute)) {
		t.Errorf("exp = %v", got)
	}
}

type fakeGitHub struct {
	tokenCalls atomic.Int32
	statuses   []Status
	commits    int
	server     *httptest.Server
}

func newFakeGitHub(t *testing.T, commits int) *fakeGitHub {
	f := &fakeGitHub{commits: commits}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /app/installations/7/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ey") {
			t.Errorf("expected app JWT bearer, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "inst-token",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /repos/acme/widgets/pulls/3/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer inst-token" {
			t.Errorf("expected installation token, got %q", r.Header.Get("Authorization"))
		}
		var page int
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		start := (page - 1) * commitsPerPage
		var out []map[string]any
		for i := start; i < f.commits && i < start+commitsPerPage; i++ {
			out = append(out, map[string]any{
				"sha": fmt.Sprintf("sha%d", i),
				"commit": map[string]any{
					"message": "change",
					"author":  map[string]any{"name": "Dev", "email": "dev@ibm.com"},
				},
				"author": map[string]any{"login": "dev", "id": 99},
			})
		}
		if out == nil {
			out = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /repos/acme/widgets/statuses/abc", func(w http.ResponseWriter, r *http.Request) {
		var s Status
		_ = json.NewDecoder(r.Body).Decode(&s)
		f.statuses = append(f.statuses, s)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /repos/acme/missing/statuses/abc", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func TestInstallationTokenIsCached(t *testing.T) {
	gh := newFakeGitHub(t, 0)
	client := NewClient(&AppSigner{AppID: 1, Key: testKey(t)}, gh.server.URL, nil)

	for i := 0; i < 3; i++ {
		token, err := client.InstallationToken(context.Background(), 7)
		if err != nil {
			t.Fatalf("InstallationToken() error: %v", err)
		}
		if token != "inst-token" {
			t.Errorf("token = %q", token)
		}
	}
	if got := gh.tokenCalls.Load(); got != 1 {
		t.Errorf("expected 1 token exchange, got %d", got)
	}
}

func TestListPullRequestCommitsPaginates(t *testing.T) {
	gh := newFakeGitHub(t, 130)
	client := NewClient(&AppSigner{AppID: 1, Key: testKey(t)}, gh.server.URL, nil)

	commits, err := client.ListPullRequestCommits(context.Background(), 7, "acme/widgets", 3)
	if err != nil {
		t.Fatalf("ListPullRequestCommits() error: %v", err)
	}
	if len(commits) != 130 {
		t.Fatalf("expected 130 commits, got %d", len(commits))
	}
	c := commits[0]
	if c.AuthorLogin != "dev" || c.AuthorID != 99 || c.AuthorEmail != "dev@ibm.com" {
		t.Errorf("unexpected commit: %+v", c)
	}
}

func TestCreateStatus(t *testing.T) {
	gh := newFakeGitHub(t, 0)
	client := NewClient(&AppSigner{AppID: 1, Key: testKey(t)}, gh.server.URL, nil)

	status := Status{State: StatusFailure, Context: "signet/cla", Description: "missing CLA"}
	if err := client.CreateStatus(context.Background(), 7, "acme/widgets", "abc", status); err != nil {
		t.Fatalf("CreateStatus() error: %v", err)
	}
	if len(gh.statuses) != 1 || gh.statuses[0] != status {
		t.Errorf("unexpected statuses: %+v", gh.statuses)
	}

	err := client.CreateStatus(context.Background(), 7, "acme/missing", "abc", status)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "Not Found" {
		t.Errorf("expected APIError 404, got %v", err)
	}
}
