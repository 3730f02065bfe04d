package domain

import "time"

// WindowResult is the outcome of analyzing one completed window of one
// product: either a selected recurrence pattern or an explicit
// no-pattern-detected verdict. Results are ephemeral to the engine and
// persisted only by the surrounding sinks.
type WindowResult struct {
	ID          string
	ProductID   string
	WindowIndex int64
	Detected    bool

	// Pattern fields, meaningful only when Detected. CombinedScore is on
	// the normalized scale used for selection; Homogeneity, Rhythm, and
	// Exclusion are the winning group's raw variances.
	GroupSize       int
	PeriodSnapshots float64
	Period          time.Duration
	CombinedScore   float64
	Homogeneity     float64
	Rhythm          float64
	Exclusion       float64
	MemberIndices   []int

	WindowStartedAt time.Time
	WindowClosedAt  time.Time
	AnalyzedAt      time.Time
	AnalysisTime    time.Duration
}

// ProductInfo is the registry row for a tracked product.
type ProductInfo struct {
	ProductID        string
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
	WindowsCompleted int64
	LastDetected     *bool
	UpdatedAt        time.Time
}

// EngineStats is a point-in-time summary of tracker activity, safe to
// read concurrently with ingestion.
type EngineStats struct {
	ProductsTracked   int64
	SnapshotsApplied  int64
	SnapshotsRejected int64
	DeltasClamped     int64
	WindowsClosed     int64
}
