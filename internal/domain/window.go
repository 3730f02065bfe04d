package domain

import "time"

// Window is one product's frozen histories for a completed window:
// index-aligned sequences of one fewer record than the window size (the
// first snapshot only establishes the baseline). Ownership transfers to
// the analysis stage when the window closes; the tracker keeps no
// reference to the slices.
type Window struct {
	ProductID        string
	Index            int64
	Prices           []float64
	MovingWeekDeltas []int64
	SummaryDeltas    []SummaryDelta
	StartedAt        time.Time
	ClosedAt         time.Time
}

// DeltaLen returns the length of the aligned delta sequences.
func (w Window) DeltaLen() int {
	return len(w.SummaryDeltas)
}
