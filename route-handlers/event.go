package routehandlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/coreybb/signet/datastore"
	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/webutil"
	"github.com/google/uuid"
)

const maxEventLimit = 500

// EventRecorder appends to the audit log.
type EventRecorder interface {
	CreateEvent(ctx context.Context, event *models.Event) error
}

// eventRefs are the optional references of an audit record.
type eventRefs struct {
	ProjectID string
	CompanyID string
	UserID    string
}

// recordEvent writes an audit record. A failed write is logged and does not
// fail the request that triggered it.
func recordEvent(ctx context.Context, events EventRecorder, eventType models.EventType, refs eventRefs, summary string) {
	if events == nil {
		return
	}
	event := models.Event{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Type:      eventType,
		ProjectID: optional(refs.ProjectID),
		CompanyID: optional(refs.CompanyID),
		UserID:    optional(refs.UserID),
		Summary:   summary,
	}
	if err := events.CreateEvent(ctx, &event); err != nil {
		log.Printf("WARN (Events): Failed to record %s event: %v", eventType, err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type EventLister interface {
	GetEvents(ctx context.Context, filter datastore.EventFilter) ([]models.Event, error)
}

type EventHandler struct {
	Repo EventLister
}

func NewEventHandler(repo EventLister) *EventHandler {
	return &EventHandler{Repo: repo}
}

// HandleGetEvents lists recent audit events, optionally filtered.
// Example route: GET /api/events?project_id=...&company_id=...&limit=50
func (h *EventHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	filter := datastore.EventFilter{
		ProjectID: query.Get(webutil.QueryParamProjectID),
		CompanyID: query.Get(webutil.QueryParamCompanyID),
	}

	if filter.ProjectID != "" {
		if _, err := uuid.Parse(filter.ProjectID); err != nil {
			return webutil.ErrBadRequest("Invalid project_id format")
		}
	}
	if filter.CompanyID != "" {
		if _, err := uuid.Parse(filter.CompanyID); err != nil {
			return webutil.ErrBadRequest("Invalid company_id format")
		}
	}
	if limitStr := query.Get(webutil.QueryParamLimit); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxEventLimit {
			return webutil.ErrBadRequest(fmt.Sprintf("limit must be between 1 and %d", maxEventLimit))
		}
		filter.Limit = limit
	}

	events, err := h.Repo.GetEvents(r.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to retrieve events: %w", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, events)
	return nil
}
