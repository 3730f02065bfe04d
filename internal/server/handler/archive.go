package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// ArchiveHandler serves the on-demand archive trigger.
type ArchiveHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one archive run
}

// NewArchiveHandler creates an ArchiveHandler with the given logger.
func NewArchiveHandler(logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{logger: logger}
}

// WithTriggerChannel sets the channel to send on when a run is requested.
// The archiver loop must receive from this channel to run one pass.
func (h *ArchiveHandler) WithTriggerChannel(ch chan<- struct{}) *ArchiveHandler {
	h.triggerCh = ch
	return h
}

// TriggerArchive enqueues one archive run. A non-blocking send is performed
// so a pending, not-yet-consumed trigger is not duplicated.
// POST /api/archive/run
func (h *ArchiveHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "archiver not running in this mode")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: archive run requested")
	select {
	case h.triggerCh <- struct{}{}:
	default:
		// already triggered and not yet consumed
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "archive run enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
