package domain

import "time"

// Engine event types published on the signal bus and recorded in the
// audit trail.
const (
	EventProductInitialized = "product_initialized"
	EventSnapshotRejected   = "snapshot_rejected"
	EventWindowClosed       = "window_closed"
	EventPatternDetected    = "pattern_detected"
	EventNoPattern          = "no_pattern"
	EventPollFailure        = "poll_failure"
)

// EngineEvent is a single observability event emitted by the ingestion
// pipeline: initializations, update outcomes, window boundaries, and
// poll failures.
type EngineEvent struct {
	ID        string
	Type      string
	ProductID string
	Outcome   UpdateOutcome
	Message   string
	At        time.Time
}
