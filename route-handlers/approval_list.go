package routehandlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/webutil"
	"github.com/coreybb/signet/whitelist"
)

// kindGitHubUsername targets a CCLA's GitHub username list instead of its
// email approval list.
const kindGitHubUsername whitelist.Kind = "github_username"

// ApprovalListStore reads signatures and edits CCLA approval lists.
type ApprovalListStore interface {
	GetSignatureByID(ctx context.Context, signatureID string) (*models.Signature, error)
	ModifyApprovalList(ctx context.Context, signatureID string, modify func(sig *models.Signature) error) (*models.Signature, error)
}

// MatcherCache hands out compiled approval lists.
type MatcherCache interface {
	Matcher(sig *models.Signature) *whitelist.Matcher
	Invalidate(signatureID string)
}

type ApprovalListHandler struct {
	Signatures ApprovalListStore
	Matchers   MatcherCache
	Events     EventRecorder
}

func NewApprovalListHandler(signatures ApprovalListStore, matchers MatcherCache, events EventRecorder) *ApprovalListHandler {
	return &ApprovalListHandler{Signatures: signatures, Matchers: matchers, Events: events}
}

type approvalListResponse struct {
	SignatureID     string            `json:"signature_id"`
	Entries         whitelist.Entries `json:"entries"`
	GitHubUsernames []string          `json:"github_usernames"`
}

func newApprovalListResponse(sig *models.Signature) approvalListResponse {
	resp := approvalListResponse{
		SignatureID:     sig.ID,
		Entries:         sig.ApprovalList,
		GitHubUsernames: sig.GitHubUsernames,
	}
	if resp.Entries == nil {
		resp.Entries = whitelist.Entries{}
	}
	if resp.GitHubUsernames == nil {
		resp.GitHubUsernames = []string{}
	}
	return resp
}

// approvalListChange is one entry to add or remove. Kind is "literal",
// "pattern" or "github_username".
type approvalListChange struct {
	Kind  whitelist.Kind `json:"kind"`
	Value string         `json:"value"`
}

func decodeApprovalListChange(r *http.Request) (approvalListChange, error) {
	var change approvalListChange
	if err := webutil.DecodeJSON(r, &change); err != nil {
		return change, err
	}
	change.Value = strings.TrimSpace(change.Value)

	if change.Kind == kindGitHubUsername {
		if change.Value == "" {
			return change, webutil.ErrBadRequest("GitHub username cannot be empty")
		}
		return change, nil
	}
	entry, err := normalizeEntry(change.entry())
	if err != nil {
		return change, err
	}
	change.Value = entry.Value
	return change, nil
}

// normalizeEntry trims surrounding whitespace from an approval list value
// and validates it. Every entry stored through the API passes through here,
// so stored values and later removals agree.
func normalizeEntry(e whitelist.Entry) (whitelist.Entry, error) {
	e.Value = strings.TrimSpace(e.Value)
	if err := e.Validate(); err != nil {
		return e, webutil.ErrBadRequest("Invalid approval list entry: " + err.Error())
	}
	return e, nil
}

func (c approvalListChange) entry() whitelist.Entry {
	return whitelist.Entry{Kind: c.Kind, Value: c.Value}
}

// HandleGetApprovalList returns a CCLA's approval list.
// Example route: GET /api/signatures/{id}/approval-list
func (h *ApprovalListHandler) HandleGetApprovalList(w http.ResponseWriter, r *http.Request) error {
	sig, err := h.corporateSignature(r)
	if err != nil {
		return err
	}
	webutil.RespondWithJSON(w, http.StatusOK, newApprovalListResponse(sig))
	return nil
}

// HandleAddApprovalListEntry adds an entry or GitHub username to a CCLA.
// Example route: POST /api/signatures/{id}/approval-list
func (h *ApprovalListHandler) HandleAddApprovalListEntry(w http.ResponseWriter, r *http.Request) error {
	sigID, err := signatureIDParam(r)
	if err != nil {
		return err
	}
	change, err := decodeApprovalListChange(r)
	if err != nil {
		return err
	}

	sig, err := h.Signatures.ModifyApprovalList(r.Context(), sigID, func(sig *models.Signature) error {
		if change.Kind == kindGitHubUsername {
			if containsFold(sig.GitHubUsernames, change.Value) {
				return webutil.ErrConflict("GitHub username is already approved")
			}
			sig.GitHubUsernames = append(sig.GitHubUsernames, change.Value)
			return nil
		}
		if sig.ApprovalList.Contains(change.entry()) {
			return webutil.ErrConflict("Entry is already on the approval list")
		}
		sig.ApprovalList = append(sig.ApprovalList, change.entry())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add %s:%s to approval list of %s: %w", change.Kind, change.Value, sigID, err)
	}
	h.Matchers.Invalidate(sig.ID)

	recordEvent(r.Context(), h.Events, models.EventApprovalListAdded, signatureRefs(sig),
		fmt.Sprintf("Added %s %q to approval list of %s", change.Kind, change.Value, sig.ID))

	log.Printf("INFO: Added %s %q to approval list of signature %s", change.Kind, change.Value, sig.ID)
	webutil.RespondWithJSON(w, http.StatusOK, newApprovalListResponse(sig))
	return nil
}

// HandleRemoveApprovalListEntry removes an entry or GitHub username from a CCLA.
// Example route: DELETE /api/signatures/{id}/approval-list
func (h *ApprovalListHandler) HandleRemoveApprovalListEntry(w http.ResponseWriter, r *http.Request) error {
	sigID, err := signatureIDParam(r)
	if err != nil {
		return err
	}
	change, err := decodeApprovalListChange(r)
	if err != nil {
		return err
	}

	sig, err := h.Signatures.ModifyApprovalList(r.Context(), sigID, func(sig *models.Signature) error {
		if change.Kind == kindGitHubUsername {
			remaining := make([]string, 0, len(sig.GitHubUsernames))
			for _, u := range sig.GitHubUsernames {
				if !strings.EqualFold(u, change.Value) {
					remaining = append(remaining, u)
				}
			}
			if len(remaining) == len(sig.GitHubUsernames) {
				return webutil.ErrNotFound("GitHub username is not on the approval list")
			}
			sig.GitHubUsernames = remaining
			return nil
		}
		if !sig.ApprovalList.Contains(change.entry()) {
			return webutil.ErrNotFound("Entry is not on the approval list")
		}
		sig.ApprovalList = sig.ApprovalList.Without(change.entry())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s:%s from approval list of %s: %w", change.Kind, change.Value, sigID, err)
	}
	h.Matchers.Invalidate(sig.ID)

	recordEvent(r.Context(), h.Events, models.EventApprovalListRemoved, signatureRefs(sig),
		fmt.Sprintf("Removed %s %q from approval list of %s", change.Kind, change.Value, sig.ID))

	log.Printf("INFO: Removed %s %q from approval list of signature %s", change.Kind, change.Value, sig.ID)
	webutil.RespondWithJSON(w, http.StatusOK, newApprovalListResponse(sig))
	return nil
}

type approvalCheckRequest struct {
	Emails []string `json:"emails"`
}

type approvalCheckResponse struct {
	Authorized bool `json:"authorized"`
}

// HandleCheckApprovalList reports whether any of the given addresses is
// authorized by a CCLA's approval list.
// Example route: POST /api/signatures/{id}/approval-list/check
func (h *ApprovalListHandler) HandleCheckApprovalList(w http.ResponseWriter, r *http.Request) error {
	sig, err := h.corporateSignature(r)
	if err != nil {
		return err
	}

	var req approvalCheckRequest
	if err := webutil.DecodeJSON(r, &req); err != nil {
		return err
	}

	webutil.RespondWithJSON(w, http.StatusOK, approvalCheckResponse{
		Authorized: h.Matchers.Matcher(sig).Authorized(req.Emails),
	})
	return nil
}

func (h *ApprovalListHandler) corporateSignature(r *http.Request) (*models.Signature, error) {
	sigID, err := signatureIDParam(r)
	if err != nil {
		return nil, err
	}
	sig, err := h.Signatures.GetSignatureByID(r.Context(), sigID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve signature %s: %w", sigID, err)
	}
	if sig.Type != models.SignatureTypeCCLA {
		return nil, webutil.ErrUnprocessableEntity("Only corporate CLAs have an approval list")
	}
	return sig, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
