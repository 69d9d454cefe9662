package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coreybb/signet/models"
	"github.com/google/uuid"
)

// ErrNotConfigured is returned by senders that cannot deliver anything.
var ErrNotConfigured = errors.New("no email provider configured")

// Message is a single HTML email.
type Message struct {
	To       []string
	Subject  string
	HTMLBody string
}

// Sender is the adapter interface for mail transports.
type Sender interface {
	// Type names the transport (e.g. "smtp").
	Type() string
	Send(ctx context.Context, msg Message) error
}

// NotificationRecorder persists the outcome of every send.
type NotificationRecorder interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

const (
	kindApprovalRequested = "approval_requested"
	kindApprovalDecided   = "approval_decided"
)

// Service renders CLA notifications, hands them to the configured Sender
// and records each attempt.
type Service struct {
	sender   Sender
	recorder NotificationRecorder
	baseURL  string
	now      func() time.Time
}

func NewService(sender Sender, recorder NotificationRecorder, baseURL string) *Service {
	if sender == nil {
		sender = NoEmail{}
	}
	return &Service{
		sender:   sender,
		recorder: recorder,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

// ApprovalRequested tells a company's CLA managers that a contributor asked
// to be added to their CCLA approval list.
func (s *Service) ApprovalRequested(ctx context.Context, project *models.Project, company *models.Company, req *models.ApprovalRequest) error {
	recipients := company.ManagerEmails
	if len(recipients) == 0 {
		recipients = []string{company.SignatoryEmail}
	}

	body, err := renderApprovalRequested(approvalRequestedData{
		ProjectName: project.Name,
		CompanyName: company.Name,
		Email:       req.Email,
		Message:     sanitizeMessage(req.Message),
		ReviewURL:   fmt.Sprintf("%s/signatures/%s/approval-requests", s.baseURL, req.SignatureID),
	})
	if err != nil {
		return err
	}

	return s.send(ctx, kindApprovalRequested, Message{
		To:       recipients,
		Subject:  fmt.Sprintf("CLA approval request for %s from %s", project.Name, req.Email),
		HTMLBody: body,
	})
}

// ApprovalDecided tells the requester whether they were added.
func (s *Service) ApprovalDecided(ctx context.Context, project *models.Project, company *models.Company, req *models.ApprovalRequest) error {
	body, err := renderApprovalDecided(approvalDecidedData{
		ProjectName: project.Name,
		CompanyName: company.Name,
		Approved:    req.Status == models.ApprovalRequestStatusApproved,
	})
	if err != nil {
		return err
	}

	return s.send(ctx, kindApprovalDecided, Message{
		To:       []string{req.Email},
		Subject:  fmt.Sprintf("Your CLA approval request for %s was %s", project.Name, req.Status),
		HTMLBody: body,
	})
}

func (s *Service) send(ctx context.Context, kind string, msg Message) error {
	sendErr := s.sender.Send(ctx, msg)

	n := models.Notification{
		ID:         uuid.NewString(),
		CreatedAt:  s.now().UTC(),
		Kind:       kind,
		Recipients: msg.To,
		Subject:    msg.Subject,
	}

	switch {
	case errors.Is(sendErr, ErrNotConfigured):
		n.Status = models.NotificationStatusSkipped
		log.Printf("WARN (Notify): No email provider configured, dropped %s notification to %v", kind, msg.To)
		sendErr = nil
	case sendErr != nil:
		n.Status = models.NotificationStatusFailed
		n.ErrorMessage = sendErr.Error()
		log.Printf("ERROR (Notify): %s notification via %s failed: %v", kind, s.sender.Type(), sendErr)
	default:
		n.Status = models.NotificationStatusSent
		log.Printf("INFO (Notify): %s notification sent via %s to %v", kind, s.sender.Type(), msg.To)
	}

	if s.recorder != nil {
		if err := s.recorder.CreateNotification(ctx, &n); err != nil {
			log.Printf("WARN (Notify): Failed to record %s notification: %v", kind, err)
		}
	}

	return sendErr
}
