package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/signet/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if _, err := uuid.Parse(n.ID); err != nil {
		return fmt.Errorf("invalid notification ID format: %w", err)
	}

	query := `
		INSERT INTO notifications (id, created_at, kind, recipients, subject, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.CreatedAt, n.Kind, pq.Array(n.Recipients), n.Subject, string(n.Status), n.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}
