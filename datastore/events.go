package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/coreybb/signet/models"
	"github.com/google/uuid"
)

const defaultEventLimit = 100

// EventRepository handles the append-only audit log.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventFilter narrows GetEvents. Empty fields are ignored.
type EventFilter struct {
	ProjectID string
	CompanyID string
	Limit     int
}

func (r *EventRepository) CreateEvent(ctx context.Context, event *models.Event) error {
	if _, err := uuid.Parse(event.ID); err != nil {
		return fmt.Errorf("invalid event ID format: %w", err)
	}
	if event.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}

	query := `
		INSERT INTO events (id, created_at, event_type, project_id, company_id, user_id, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.CreatedAt, string(event.Type), event.ProjectID, event.CompanyID, event.UserID, event.Summary,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvents returns the most recent events matching filter.
func (r *EventRepository) GetEvents(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ProjectID != "" {
		if _, err := uuid.Parse(filter.ProjectID); err != nil {
			return nil, fmt.Errorf("invalid project ID format: %w", err)
		}
		args = append(args, filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.CompanyID != "" {
		if _, err := uuid.Parse(filter.CompanyID); err != nil {
			return nil, fmt.Errorf("invalid company ID format: %w", err)
		}
		args = append(args, filter.CompanyID)
		conditions = append(conditions, fmt.Sprintf("company_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	args = append(args, limit)

	query := `SELECT id, created_at, event_type, project_id, company_id, user_id, summary FROM events`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var (
			event     models.Event
			eventType string
		)
		if err := rows.Scan(&event.ID, &event.CreatedAt, &eventType, &event.ProjectID, &event.CompanyID, &event.UserID, &event.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		event.Type = models.EventType(eventType)
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}
