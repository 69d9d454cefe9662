package webutil

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coreybb/signet/datastore"
	"github.com/coreybb/signet/storage"
)

func TestMakeHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"http error", ErrBadRequest("Email is required"), http.StatusBadRequest, "Email is required"},
		{"wrapped http error", fmt.Errorf("ctx: %w", ErrPayloadTooLarge("")), http.StatusRequestEntityTooLarge, msgPayloadTooLarge},
		{"no rows", fmt.Errorf("project x: %w", sql.ErrNoRows), http.StatusNotFound, msgNotFound},
		{"missing document", fmt.Errorf("open: %w", storage.ErrDocumentNotFound), http.StatusNotFound, msgNotFound},
		{"duplicate", fmt.Errorf("%w: pq", datastore.ErrDuplicate), http.StatusConflict, "Resource already exists"},
		{"missing reference", fmt.Errorf("%w: pq", datastore.ErrMissingReference), http.StatusNotFound, "Referenced resource not found"},
		{"not corporate", fmt.Errorf("sig: %w", datastore.ErrNotCorporate), http.StatusUnprocessableEntity, "Only corporate CLAs have an approval list"},
		{"not pending", fmt.Errorf("request: %w", datastore.ErrNotPending), http.StatusConflict, "Approval request is no longer pending"},
		{"already signed", fmt.Errorf("sig: %w", datastore.ErrAlreadySigned), http.StatusConflict, "Signature is already signed"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, msgInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := MakeHandler(func(w http.ResponseWriter, r *http.Request) error { return tt.err })
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != tt.message {
				t.Errorf("error = %q, want %q", body["error"], tt.message)
			}
		})
	}
}

func TestMakeHandlerDoesNotOverwriteStartedResponse(t *testing.T) {
	h := MakeHandler(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusAccepted)
		return errors.New("late failure")
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestMakeHandlerWithPresetContentType(t *testing.T) {
	// Middleware sets Content-Type before the handler runs.
	h := MakeHandler(func(w http.ResponseWriter, r *http.Request) error {
		return ErrNotFound("Project not found")
	})
	rec := httptest.NewRecorder()
	rec.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	h(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"k8s"}`))
	if err := DecodeJSON(r, &v); err != nil || v.Name != "k8s" {
		t.Fatalf("DecodeJSON() = %v, name %q", err, v.Name)
	}

	for _, body := range []string{`{"nope":1}`, `{"name":`, `{"name":"a"} {"name":"b"}`} {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := DecodeJSON(r, &v)
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || httpErr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %v", body, err)
		}
	}
}

func TestVerifyPayloadSignature(t *testing.T) {
	secret := []byte("It's a Secret to Everybody")
	body := []byte("Hello, World!")

	// Example from GitHub's webhook validation documentation.
	const want = "sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17"
	if got := SignPayload(secret, body); got != want {
		t.Errorf("SignPayload() = %s, want %s", got, want)
	}

	if !VerifyPayloadSignature(secret, body, want) {
		t.Error("expected valid signature")
	}
	for _, header := range []string{"", "sha1=abc", "sha256=zz", want[:len(want)-1] + "0"} {
		if VerifyPayloadSignature(secret, body, header) {
			t.Errorf("header %q should not verify", header)
		}
	}
	if VerifyPayloadSignature(nil, body, want) {
		t.Error("empty secret must never verify")
	}
}
