package models

import "time"

// EventType names an auditable action.
type EventType string

const (
	EventProjectCreated          EventType = "project.created"
	EventProjectDeleted          EventType = "project.deleted"
	EventRepositoryAdded         EventType = "repository.added"
	EventCompanyCreated          EventType = "company.created"
	EventSignatureCreated        EventType = "signature.created"
	EventSignatureSigned         EventType = "signature.signed"
	EventSignatureDocumentStored EventType = "signature.document_stored"
	EventApprovalListAdded       EventType = "approval_list.added"
	EventApprovalListRemoved     EventType = "approval_list.removed"
	EventApprovalRequested       EventType = "approval_request.created"
	EventApprovalApproved        EventType = "approval_request.approved"
	EventApprovalRejected        EventType = "approval_request.rejected"
)

// Event is an audit-log record. Project, company and user references are
// optional and depend on the event type.
type Event struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Type      EventType `json:"type"`
	ProjectID *string   `json:"project_id,omitempty"`
	CompanyID *string   `json:"company_id,omitempty"`
	UserID    *string   `json:"user_id,omitempty"`
	Summary   string    `json:"summary"`
}
