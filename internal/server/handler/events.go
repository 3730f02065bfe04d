package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// EventService defines the audit log reads the event handler requires.
type EventService interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// EventHandler serves the engine's audit log.
type EventHandler struct {
	events EventService
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// eventView is the JSON shape of one audit log row.
type eventView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// listEventsResponse wraps the list endpoint output.
type listEventsResponse struct {
	Events []eventView `json:"events"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ListEvents returns audit log entries, newest first.
// GET /api/events?since=...&until=...&limit=50&offset=0
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.events.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	views := make([]eventView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, eventView(entry))
	}

	writeJSON(w, http.StatusOK, listEventsResponse{
		Events: views,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
