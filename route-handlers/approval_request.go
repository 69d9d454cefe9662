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
)

const maxRequestMessageLength = 2000

type ApprovalRequestStore interface {
	CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error
	GetApprovalRequestByID(ctx context.Context, requestID string) (*models.ApprovalRequest, error)
	GetApprovalRequestsBySignatureID(ctx context.Context, signatureID string) ([]models.ApprovalRequest, error)
	DecideApprovalRequest(ctx context.Context, requestID string, status models.ApprovalRequestStatus, decidedAt time.Time) error
	// ApproveApprovalRequest approves the request and adds its address to the
	// approval list atomically, returning the updated signature.
	ApproveApprovalRequest(ctx context.Context, requestID string, decidedAt time.Time) (*models.Signature, error)
}

type ProjectLookup interface {
	GetProjectByID(ctx context.Context, projectID string) (*models.Project, error)
}

type CompanyLookup interface {
	GetCompanyByID(ctx context.Context, companyID string) (*models.Company, error)
}

type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// ApprovalNotifier emails CLA managers and requesters.
type ApprovalNotifier interface {
	ApprovalRequested(ctx context.Context, project *models.Project, company *models.Company, req *models.ApprovalRequest) error
	ApprovalDecided(ctx context.Context, project *models.Project, company *models.Company, req *models.ApprovalRequest) error
}

// ApprovalRequestHandler runs the flow where a contributor asks to be put on
// a company's CCLA approval list and a CLA manager decides.
type ApprovalRequestHandler struct {
	Requests   ApprovalRequestStore
	Signatures ApprovalListStore
	Projects   ProjectLookup
	Companies  CompanyLookup
	Users      UserLookup
	Matchers   MatcherCache
	Notifier   ApprovalNotifier
	Events     EventRecorder
}

func NewApprovalRequestHandler(
	requests ApprovalRequestStore,
	signatures ApprovalListStore,
	projects ProjectLookup,
	companies CompanyLookup,
	users UserLookup,
	matchers MatcherCache,
	notifier ApprovalNotifier,
	events EventRecorder,
) *ApprovalRequestHandler {
	return &ApprovalRequestHandler{
		Requests:   requests,
		Signatures: signatures,
		Projects:   projects,
		Companies:  companies,
		Users:      users,
		Matchers:   matchers,
		Notifier:   notifier,
		Events:     events,
	}
}

type createApprovalRequestRequest struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// HandleCreateApprovalRequest files a request to be added to a CCLA approval
// list and notifies the company's CLA managers.
// Example route: POST /api/signatures/{id}/approval-requests
func (h *ApprovalRequestHandler) HandleCreateApprovalRequest(w http.ResponseWriter, r *http.Request) error {
	sigID, err := signatureIDParam(r)
	if err != nil {
		return err
	}

	var body createApprovalRequestRequest
	if err := webutil.DecodeJSON(r, &body); err != nil {
		return err
	}
	if _, err := uuid.Parse(body.UserID); err != nil {
		return webutil.ErrBadRequest("Invalid user_id format")
	}
	email := strings.TrimSpace(body.Email)
	if email == "" {
		return webutil.ErrBadRequest("Email is required")
	}
	if len(body.Message) > maxRequestMessageLength {
		return webutil.ErrBadRequest(fmt.Sprintf("Message cannot exceed %d characters", maxRequestMessageLength))
	}

	sig, err := h.Signatures.GetSignatureByID(r.Context(), sigID)
	if err != nil {
		return fmt.Errorf("failed to retrieve signature %s: %w", sigID, err)
	}
	if sig.Type != models.SignatureTypeCCLA {
		return webutil.ErrUnprocessableEntity("Approval requests can only target corporate CLAs")
	}

	user, err := h.Users.GetUserByID(r.Context(), body.UserID)
	if err != nil {
		return referenceError("user", body.UserID, err)
	}
	if !contains(user.Emails, email) {
		return webutil.ErrUnprocessableEntity("Email does not belong to the user")
	}
	if h.Matchers.Matcher(sig).Match(email) {
		return webutil.ErrConflict("Email is already covered by the approval list")
	}

	req := models.ApprovalRequest{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		SignatureID: sig.ID,
		UserID:      user.ID,
		Email:       email,
		Message:     body.Message,
		Status:      models.ApprovalRequestStatusPending,
	}
	if err := h.Requests.CreateApprovalRequest(r.Context(), &req); err != nil {
		return fmt.Errorf("failed to create approval request for %s: %w", email, err)
	}

	refs := signatureRefs(sig)
	refs.UserID = user.ID
	recordEvent(r.Context(), h.Events, models.EventApprovalRequested, refs,
		fmt.Sprintf("%s asked to join approval list of %s", email, sig.ID))

	h.notify(r.Context(), sig, &req, h.Notifier.ApprovalRequested)

	log.Printf("INFO: Approval request %s filed by %s on signature %s", req.ID, email, sig.ID)
	webutil.RespondWithJSON(w, http.StatusCreated, req)
	return nil
}

func (h *ApprovalRequestHandler) HandleGetApprovalRequests(w http.ResponseWriter, r *http.Request) error {
	sigID, err := signatureIDParam(r)
	if err != nil {
		return err
	}

	reqs, err := h.Requests.GetApprovalRequestsBySignatureID(r.Context(), sigID)
	if err != nil {
		return fmt.Errorf("failed to retrieve approval requests for %s: %w", sigID, err)
	}
	if reqs == nil {
		reqs = []models.ApprovalRequest{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, reqs)
	return nil
}

// HandleApproveRequest approves a pending request and adds the requested
// address to the approval list as a literal entry.
// Example route: POST /api/approval-requests/{id}/approve
func (h *ApprovalRequestHandler) HandleApproveRequest(w http.ResponseWriter, r *http.Request) error {
	return h.decide(w, r, models.ApprovalRequestStatusApproved)
}

// HandleRejectRequest rejects a pending request.
// Example route: POST /api/approval-requests/{id}/reject
func (h *ApprovalRequestHandler) HandleRejectRequest(w http.ResponseWriter, r *http.Request) error {
	return h.decide(w, r, models.ApprovalRequestStatusRejected)
}

func (h *ApprovalRequestHandler) decide(w http.ResponseWriter, r *http.Request, status models.ApprovalRequestStatus) error {
	requestID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(requestID); err != nil {
		return webutil.ErrBadRequest("Invalid approval request ID format")
	}

	req, err := h.Requests.GetApprovalRequestByID(r.Context(), requestID)
	if err != nil {
		return fmt.Errorf("failed to retrieve approval request %s: %w", requestID, err)
	}
	if req.Status != models.ApprovalRequestStatusPending {
		return webutil.ErrConflict(fmt.Sprintf("Approval request is already %s", req.Status))
	}

	decidedAt := time.Now().UTC()
	var sig *models.Signature
	if status == models.ApprovalRequestStatusApproved {
		sig, err = h.Requests.ApproveApprovalRequest(r.Context(), requestID, decidedAt)
		if err != nil {
			return fmt.Errorf("failed to approve request %s: %w", requestID, err)
		}
		h.Matchers.Invalidate(sig.ID)
	} else {
		if err := h.Requests.DecideApprovalRequest(r.Context(), requestID, status, decidedAt); err != nil {
			return fmt.Errorf("failed to %s approval request %s: %w", status, requestID, err)
		}
		sig, err = h.Signatures.GetSignatureByID(r.Context(), req.SignatureID)
		if err != nil {
			return fmt.Errorf("failed to retrieve signature %s: %w", req.SignatureID, err)
		}
	}
	req.Status = status
	req.DecidedAt = &decidedAt

	eventType := models.EventApprovalRejected
	if status == models.ApprovalRequestStatusApproved {
		eventType = models.EventApprovalApproved
	}
	refs := signatureRefs(sig)
	refs.UserID = req.UserID
	recordEvent(r.Context(), h.Events, eventType, refs,
		fmt.Sprintf("Approval request of %s %s", req.Email, status))

	h.notify(r.Context(), sig, req, h.Notifier.ApprovalDecided)

	log.Printf("INFO: Approval request %s %s", req.ID, status)
	webutil.RespondWithJSON(w, http.StatusOK, req)
	return nil
}

// notify loads the project and company of sig and calls send. Failures are
// logged; the notification outcome is recorded by the notifier itself.
func (h *ApprovalRequestHandler) notify(
	ctx context.Context,
	sig *models.Signature,
	req *models.ApprovalRequest,
	send func(context.Context, *models.Project, *models.Company, *models.ApprovalRequest) error,
) {
	project, err := h.Projects.GetProjectByID(ctx, sig.ProjectID)
	if err != nil {
		log.Printf("WARN: Skipping notification for approval request %s, project lookup failed: %v", req.ID, err)
		return
	}
	company, err := h.Companies.GetCompanyByID(ctx, sig.ReferenceID)
	if err != nil {
		log.Printf("WARN: Skipping notification for approval request %s, company lookup failed: %v", req.ID, err)
		return
	}
	if err := send(ctx, project, company, req); err != nil {
		log.Printf("WARN: Notification for approval request %s failed: %v", req.ID, err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
