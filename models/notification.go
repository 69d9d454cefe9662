package models

import "time"

// NotificationStatus defines the outcome of a notification send.
type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusSkipped NotificationStatus = "skipped"
)

// Notification records one attempt to email a set of recipients.
type Notification struct {
	ID           string             `json:"id"`
	CreatedAt    time.Time          `json:"created_at"`
	Kind         string             `json:"kind"`
	Recipients   []string           `json:"recipients"`
	Subject      string             `json:"subject"`
	Status       NotificationStatus `json:"status"`
	ErrorMessage string             `json:"error_message,omitempty"`
}
