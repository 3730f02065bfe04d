// Package tracker owns the mutable per-product state between window
// boundaries: it applies incoming snapshots, maintains the index-aligned
// history sequences, and detects window boundaries.
//
// A Tracker is NOT safe for concurrent use. The ingestion pipeline gives
// ownership of the whole tracker to a single goroutine and feeds it
// through a channel; only the Stats counters may be read from other
// goroutines.
package tracker

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// DefaultWindowSize is the number of applied snapshots per analysis
// window. At the reference 20-second poll cadence one window spans
// roughly an hour.
const DefaultWindowSize = 180

// Config configures a Tracker.
type Config struct {
	// WindowSize is the number of applied snapshots that close a window,
	// yielding WindowSize-1 aligned delta records. Defaults to
	// DefaultWindowSize when zero.
	WindowSize int
}

// productState is the per-product accumulation between window boundaries.
type productState struct {
	prices           []float64
	movingWeekDeltas []int64
	summaryDeltas    []domain.SummaryDelta
	snapshotCount    int
	windowCount      int64
	windowStartedAt  time.Time

	// prev is the diff baseline. hasBaseline is false for a brand-new
	// product and again after every window reset, so no delta ever spans
	// a window boundary.
	prev        domain.Snapshot
	hasBaseline bool
}

// Tracker is the product state store plus window aggregator.
type Tracker struct {
	windowSize int
	states     map[string]*productState
	logger     *slog.Logger

	productsTracked   atomic.Int64
	snapshotsApplied  atomic.Int64
	snapshotsRejected atomic.Int64
	deltasClamped     atomic.Int64
	windowsClosed     atomic.Int64
}

// New creates a Tracker.
func New(cfg Config, logger *slog.Logger) *Tracker {
	size := cfg.WindowSize
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Tracker{
		windowSize: size,
		states:     make(map[string]*productState),
		logger:     logger.With(slog.String("component", "tracker")),
	}
}

// WindowSize returns the configured snapshots-per-window count.
func (t *Tracker) WindowSize() int {
	return t.windowSize
}

// Apply applies one snapshot to the product's state.
//
// The first snapshot for a product (or the first after a window reset)
// only establishes the diff baseline. Every later snapshot appends
// exactly one record to each history sequence, changed or not, so the
// sequences stay index-aligned with the snapshot count. A malformed
// snapshot mutates nothing and does not advance the snapshot counter.
func (t *Tracker) Apply(snap domain.Snapshot) (domain.UpdateOutcome, error) {
	if err := snap.Validate(); err != nil {
		t.snapshotsRejected.Add(1)
		return domain.OutcomeRejected, fmt.Errorf("tracker: %w: %v", domain.ErrMalformedSnapshot, err)
	}

	st, ok := t.states[snap.ProductID]
	if !ok {
		st = &productState{}
		t.states[snap.ProductID] = st
		t.productsTracked.Add(1)
	}

	if !st.hasBaseline {
		st.prices = append(make([]float64, 0, t.windowSize), snap.Price)
		st.movingWeekDeltas = make([]int64, 0, t.windowSize-1)
		st.summaryDeltas = make([]domain.SummaryDelta, 0, t.windowSize-1)
		st.snapshotCount = 1
		st.windowStartedAt = snap.Timestamp
		st.prev = snap
		st.hasBaseline = true
		t.snapshotsApplied.Add(1)
		return domain.OutcomeInitialized, nil
	}

	st.prices = append(st.prices, snap.Price)

	mwDelta := snap.MovingWeek - st.prev.MovingWeek
	if mwDelta < 0 {
		// The moving-week indicator cannot decrease by definition; a
		// negative delta is upstream data corruption. Clamp, never store.
		t.deltasClamped.Add(1)
		t.logger.Warn("negative moving-week delta clamped",
			slog.String("product_id", snap.ProductID),
			slog.Int64("delta", mwDelta),
		)
		mwDelta = 0
	}
	st.movingWeekDeltas = append(st.movingWeekDeltas, mwDelta)
	st.summaryDeltas = append(st.summaryDeltas, diffSummaries(st.prev.Summary, snap.Summary))

	st.prev = snap
	st.snapshotCount++
	t.snapshotsApplied.Add(1)
	return domain.OutcomeUpdated, nil
}

// Tick reports whether the product's window is complete. When the
// snapshot count has reached the window size it returns the frozen
// window exactly once, resets the product's state, and increments its
// completed-window count; otherwise it returns nil.
func (t *Tracker) Tick(productID string) *domain.Window {
	st, ok := t.states[productID]
	if !ok || st.snapshotCount < t.windowSize {
		return nil
	}

	st.windowCount++
	w := &domain.Window{
		ProductID:        productID,
		Index:            st.windowCount,
		Prices:           st.prices,
		MovingWeekDeltas: st.movingWeekDeltas,
		SummaryDeltas:    st.summaryDeltas,
		StartedAt:        st.windowStartedAt,
		ClosedAt:         st.prev.Timestamp,
	}

	// Hand the slices to the caller and start over. The next snapshot
	// re-establishes the baseline.
	st.prices = nil
	st.movingWeekDeltas = nil
	st.summaryDeltas = nil
	st.snapshotCount = 0
	st.windowStartedAt = time.Time{}
	st.prev = domain.Snapshot{}
	st.hasBaseline = false

	t.windowsClosed.Add(1)
	t.logger.Info("window closed",
		slog.String("product_id", productID),
		slog.Int64("window_index", w.Index),
		slog.Int("deltas", w.DeltaLen()),
	)
	return w
}

// SnapshotCount returns the product's applied-snapshot count in the
// current window. Must be called from the goroutine that owns the
// tracker.
func (t *Tracker) SnapshotCount(productID string) int {
	if st, ok := t.states[productID]; ok {
		return st.snapshotCount
	}
	return 0
}

// WindowCount returns the product's completed-window count. Must be
// called from the goroutine that owns the tracker.
func (t *Tracker) WindowCount(productID string) int64 {
	if st, ok := t.states[productID]; ok {
		return st.windowCount
	}
	return 0
}

// Stats returns a snapshot of the tracker counters. Safe to call from
// any goroutine.
func (t *Tracker) Stats() domain.EngineStats {
	return domain.EngineStats{
		ProductsTracked:   t.productsTracked.Load(),
		SnapshotsApplied:  t.snapshotsApplied.Load(),
		SnapshotsRejected: t.snapshotsRejected.Load(),
		DeltasClamped:     t.deltasClamped.Load(),
		WindowsClosed:     t.windowsClosed.Load(),
	}
}
