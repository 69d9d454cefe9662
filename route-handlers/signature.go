package routehandlers

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/storage"
	"github.com/coreybb/signet/webutil"
	"github.com/coreybb/signet/whitelist"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxDocumentBytes = 20 << 20

var pdfMagic = []byte("%PDF-")

// SignatureStore persists signatures and their signing state.
type SignatureStore interface {
	CreateSignature(ctx context.Context, sig *models.Signature) error
	GetSignatureByID(ctx context.Context, signatureID string) (*models.Signature, error)
	MarkSigned(ctx context.Context, signatureID string, signedAt time.Time) error
	SetDocumentPath(ctx context.Context, signatureID string, path string) error
}

type SignatureHandler struct {
	Repo      SignatureStore
	Projects  ProjectLookup
	Users     UserLookup
	Companies CompanyLookup
	Documents storage.DocumentStore
	Events    EventRecorder
}

func NewSignatureHandler(
	repo SignatureStore,
	projects ProjectLookup,
	users UserLookup,
	companies CompanyLookup,
	documents storage.DocumentStore,
	events EventRecorder,
) *SignatureHandler {
	return &SignatureHandler{
		Repo:      repo,
		Projects:  projects,
		Users:     users,
		Companies: companies,
		Documents: documents,
		Events:    events,
	}
}

type createSignatureRequest struct {
	ProjectID       string            `json:"project_id"`
	Type            string            `json:"type"`
	ReferenceID     string            `json:"reference_id"`
	Approved        *bool             `json:"approved"`
	ApprovalList    whitelist.Entries `json:"approval_list"`
	GitHubUsernames []string          `json:"github_usernames"`
}

// HandleCreateSignature opens an ICLA for a user or a CCLA for a company on
// a project. The signature grants nothing until it is signed.
// Example route: POST /api/signatures
func (h *SignatureHandler) HandleCreateSignature(w http.ResponseWriter, r *http.Request) error {
	var req createSignatureRequest
	if err := webutil.DecodeJSON(r, &req); err != nil {
		return err
	}

	sigType, ok := models.IsValidSignatureType(req.Type)
	if !ok {
		return webutil.ErrBadRequest(fmt.Sprintf("Invalid signature type %q, expected icla or ccla", req.Type))
	}
	if _, err := uuid.Parse(req.ProjectID); err != nil {
		return webutil.ErrBadRequest("Invalid project_id format")
	}
	if _, err := uuid.Parse(req.ReferenceID); err != nil {
		return webutil.ErrBadRequest("Invalid reference_id format")
	}

	project, err := h.Projects.GetProjectByID(r.Context(), req.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project %s: %w", req.ProjectID, err)
	}

	refs := eventRefs{ProjectID: project.ID}
	switch sigType {
	case models.SignatureTypeICLA:
		if !project.ICLAEnabled {
			return webutil.ErrUnprocessableEntity("Project does not accept individual CLAs")
		}
		if len(req.ApprovalList) > 0 || len(req.GitHubUsernames) > 0 {
			return webutil.ErrBadRequest("Only corporate CLAs have an approval list")
		}
		if _, err := h.Users.GetUserByID(r.Context(), req.ReferenceID); err != nil {
			return referenceError("user", req.ReferenceID, err)
		}
		refs.UserID = req.ReferenceID
	case models.SignatureTypeCCLA:
		if !project.CCLAEnabled {
			return webutil.ErrUnprocessableEntity("Project does not accept corporate CLAs")
		}
		entries := make(whitelist.Entries, 0, len(req.ApprovalList))
		for _, e := range req.ApprovalList {
			e, err := normalizeEntry(e)
			if err != nil {
				return err
			}
			if !entries.Contains(e) {
				entries = append(entries, e)
			}
		}
		req.ApprovalList = entries
		usernames := make([]string, 0, len(req.GitHubUsernames))
		for _, u := range req.GitHubUsernames {
			if u = strings.TrimSpace(u); u != "" && !containsFold(usernames, u) {
				usernames = append(usernames, u)
			}
		}
		req.GitHubUsernames = usernames
		if _, err := h.Companies.GetCompanyByID(r.Context(), req.ReferenceID); err != nil {
			return referenceError("company", req.ReferenceID, err)
		}
		refs.CompanyID = req.ReferenceID
	}

	now := time.Now().UTC()
	sig := models.Signature{
		ID:              uuid.NewString(),
		CreatedAt:       now,
		UpdatedAt:       now,
		ProjectID:       project.ID,
		Type:            sigType,
		ReferenceID:     req.ReferenceID,
		Approved:        boolOrDefault(req.Approved, true),
		ApprovalList:    req.ApprovalList,
		GitHubUsernames: req.GitHubUsernames,
	}
	if sig.ApprovalList == nil {
		sig.ApprovalList = whitelist.Entries{}
	}
	if sig.GitHubUsernames == nil {
		sig.GitHubUsernames = []string{}
	}

	if err := h.Repo.CreateSignature(r.Context(), &sig); err != nil {
		return fmt.Errorf("failed to create %s for %s: %w", sig.Type, sig.ReferenceID, err)
	}

	recordEvent(r.Context(), h.Events, models.EventSignatureCreated, refs,
		fmt.Sprintf("%s created for %s on project %s", sig.Type, sig.ReferenceID, project.Name))

	log.Printf("INFO: Signature %s (%s) created on project %s", sig.ID, sig.Type, project.ID)
	webutil.RespondWithJSON(w, http.StatusCreated, sig)
	return nil
}

func (h *SignatureHandler) HandleGetSignature(w http.ResponseWriter, r *http.Request) error {
	sigID, err := signatureIDParam(r)
	if err != nil {
		return err
	}

	sig, err := h.Repo.GetSignatureByID(r.Context(), sigID)
	if err != nil {
		return fmt.Errorf("failed to retrieve signature %s: %w", sigID, err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, sig)
	return nil
}

// HandleSignSignature records that the signatory completed the agreement.
// Example route: POST /api/signatures/{id}/sign
func (h *SignatureHandler) HandleSignSignature(w http.ResponseWriter, r *http.Request) error {
	sigID, err := signatureIDParam(r)
	if err != nil {
		return err
	}

	sig, err := h.Repo.GetSignatureByID(r.Context(), sigID)
	if err != nil {
		return fmt.Errorf("failed to retrieve signature %s: %w", sigID, err)
	}
	if sig.Signed {
		return webutil.ErrConflict("Signature is already signed")
	}

	// A concurrent sign between the read and the update fails with
	// datastore.ErrAlreadySigned.
	signedAt := time.Now().UTC()
	if err := h.Repo.MarkSigned(r.Context(), sigID, signedAt); err != nil {
		return fmt.Errorf("failed to mark signature %s signed: %w", sigID, err)
	}
	sig.Signed = true
	sig.SignedAt = &signedAt
	sig.UpdatedAt = signedAt

	recordEvent(r.Context(), h.Events, models.EventSignatureSigned, signatureRefs(sig),
		fmt.Sprintf("%s %s signed", sig.Type, sig.ID))

	log.Printf("INFO: Signature %s signed", sigID)
	webutil.RespondWithJSON(w, http.StatusOK, sig)
	return nil
}

// HandleUploadDocument stores the signed PDF for a signature, replacing any
// earlier upload.
// Example route: PUT /api/signatures/{id}/document
func (h *SignatureHandler) HandleUploadDocument(w http.ResponseWriter, r *http.Request) error {
	sigID, err := signatureIDParam(r)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	mediaType, _, err := mime.ParseMediaType(r.Header.Get(webutil.HeaderContentType))
	if err != nil || mediaType != webutil.ContentTypePDF {
		return webutil.ErrUnsupportedMediaType("Document must be uploaded as application/pdf")
	}

	sig, err := h.Repo.GetSignatureByID(r.Context(), sigID)
	if err != nil {
		return fmt.Errorf("failed to retrieve signature %s: %w", sigID, err)
	}

	content, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes+1))
	if err != nil {
		return webutil.ErrBadRequestWrap("Failed to read document", err)
	}
	if len(content) > maxDocumentBytes {
		return webutil.ErrPayloadTooLarge("Document exceeds the maximum size")
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		return webutil.ErrBadRequest("Document is not a PDF")
	}

	path, err := h.Documents.Store(sig.ProjectID, string(sig.Type), sig.ID, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to store document for signature %s: %w", sigID, err)
	}

	if err := h.Repo.SetDocumentPath(r.Context(), sigID, path); err != nil {
		return fmt.Errorf("failed to save document path for signature %s: %w", sigID, err)
	}
	sig.DocumentPath = path

	recordEvent(r.Context(), h.Events, models.EventSignatureDocumentStored, signatureRefs(sig),
		fmt.Sprintf("Document stored for %s %s (%d bytes)", sig.Type, sig.ID, len(content)))

	webutil.RespondWithJSON(w, http.StatusOK, sig)
	return nil
}

// HandleDownloadDocument streams the signed PDF of a signature.
// Example route: GET /api/signatures/{id}/document
func (h *SignatureHandler) HandleDownloadDocument(w http.ResponseWriter, r *http.Request) error {
	sigID, err := signatureIDParam(r)
	if err != nil {
		return err
	}

	sig, err := h.Repo.GetSignatureByID(r.Context(), sigID)
	if err != nil {
		return fmt.Errorf("failed to retrieve signature %s: %w", sigID, err)
	}
	if sig.DocumentPath == "" {
		return webutil.ErrNotFound("No document has been uploaded for this signature")
	}

	f, err := h.Documents.Open(sig.DocumentPath)
	if err != nil {
		return fmt.Errorf("failed to open document for signature %s: %w", sigID, err)
	}
	defer f.Close()

	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypePDF)
	w.Header().Set(webutil.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": sig.ID + ".pdf"}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("WARN: Failed to stream document for signature %s: %v", sigID, err)
	}
	return nil
}

func signatureIDParam(r *http.Request) (string, error) {
	sigID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(sigID); err != nil {
		return "", webutil.ErrBadRequest("Invalid signature ID format")
	}
	return sigID, nil
}

// signatureRefs fills the event references implied by a signature.
func signatureRefs(sig *models.Signature) eventRefs {
	refs := eventRefs{ProjectID: sig.ProjectID}
	if sig.Type == models.SignatureTypeCCLA {
		refs.CompanyID = sig.ReferenceID
	} else {
		refs.UserID = sig.ReferenceID
	}
	return refs
}

// referenceError turns a failed lookup of a signature's reference into a 404
// when the record does not exist.
func referenceError(kind, id string, err error) error {
	if isNotFound(err) {
		return webutil.ErrNotFoundWrap(fmt.Sprintf("%s %s not found", kind, id), err)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
