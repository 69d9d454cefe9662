package models

import "time"

// ApprovalRequestStatus defines the set of allowed statuses for an ApprovalRequest.
type ApprovalRequestStatus string

const (
	ApprovalRequestStatusPending  ApprovalRequestStatus = "pending"
	ApprovalRequestStatusApproved ApprovalRequestStatus = "approved"
	ApprovalRequestStatusRejected ApprovalRequestStatus = "rejected"
)

// ApprovalRequest is a contributor asking a company's CLA managers to add
// an address to a CCLA approval list.
type ApprovalRequest struct {
	ID          string                `json:"id"`
	CreatedAt   time.Time             `json:"created_at"`
	SignatureID string                `json:"signature_id"`
	UserID      string                `json:"user_id"`
	Email       string                `json:"email"`
	Message     string                `json:"message,omitempty"`
	Status      ApprovalRequestStatus `json:"status"`
	DecidedAt   *time.Time            `json:"decided_at,omitempty"`
}
