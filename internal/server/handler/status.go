package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// StatsSource reports live engine counters. Nil when the process runs
// without an in-process tracker (server-only mode).
type StatsSource interface {
	Stats() domain.EngineStats
}

// StatusHandler serves the engine status for the dashboard.
type StatusHandler struct {
	mode       string
	windowSize int
	startedAt  time.Time
	stats      StatsSource
}

// NewStatusHandler creates a StatusHandler. stats may be nil.
func NewStatusHandler(mode string, windowSize int, startedAt time.Time, stats StatsSource) *StatusHandler {
	return &StatusHandler{
		mode:       mode,
		windowSize: windowSize,
		startedAt:  startedAt,
		stats:      stats,
	}
}

// engineStatsView is the JSON shape of the tracker counters.
type engineStatsView struct {
	ProductsTracked   int64 `json:"products_tracked"`
	SnapshotsApplied  int64 `json:"snapshots_applied"`
	SnapshotsRejected int64 `json:"snapshots_rejected"`
	DeltasClamped     int64 `json:"deltas_clamped"`
	WindowsClosed     int64 `json:"windows_closed"`
}

// GetStatus responds with the current run mode, uptime, and engine counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"window_size":    h.windowSize,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.stats != nil {
		resp["engine"] = engineStatsView(h.stats.Stats())
	}
	writeJSON(w, http.StatusOK, resp)
}
