// Package domain holds the shared value types and the store, cache, bus,
// and blob interfaces the rest of the service is wired through. It has no
// dependencies outside the standard library.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// OrderLevel is one aggregated order-book level of a product summary.
// PriceTicks identifies the level across consecutive snapshots (unit price
// in thousandths); SizeBucket is the order-size class the detector groups
// quantity changes by.
type OrderLevel struct {
	PriceTicks int64
	SizeBucket int64
	Quantity   int64
	Orders     int
}

// OrderSummary is the bucketed open-order summary of one side of a
// product's book, as delivered by the snapshot source. Levels are keyed by
// PriceTicks when diffed against the prior snapshot.
type OrderSummary []OrderLevel

// Snapshot is one per-product observation from the snapshot source: the
// current unit price, the rolling moving-week volume indicator, and the
// current order summary.
type Snapshot struct {
	ProductID  string
	Price      float64
	MovingWeek int64
	Summary    OrderSummary
	Timestamp  time.Time
}

// SnapshotBatch is one full poll of the snapshot source: every product's
// snapshot plus the source watermark the batch was produced at.
type SnapshotBatch struct {
	// LastUpdated is the source watermark in Unix milliseconds. A batch
	// whose watermark has not advanced carries no new observation.
	LastUpdated int64
	At          time.Time
	Snapshots   []Snapshot
}

// Validate reports whether the snapshot is well-formed enough to apply.
// A malformed snapshot must never mutate product state.
func (s Snapshot) Validate() error {
	var errs []error
	if s.ProductID == "" {
		errs = append(errs, errors.New("product id is required"))
	}
	if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
		errs = append(errs, fmt.Errorf("price %v is not finite", s.Price))
	} else if s.Price < 0 {
		errs = append(errs, fmt.Errorf("price %v is negative", s.Price))
	}
	if s.MovingWeek < 0 {
		errs = append(errs, fmt.Errorf("moving-week %d is negative", s.MovingWeek))
	}
	if s.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	return errors.Join(errs...)
}

// SummaryDelta records how much order quantity appeared (positive) or
// disappeared (negative) per size bucket between two consecutive
// snapshots, plus how many distinct orders were affected. A bucket whose
// raw level-wise changes carried both signs is excluded entirely rather
// than summed. Immutable once appended to a product history.
type SummaryDelta struct {
	Changes        map[int64]int64
	OrdersAffected int
}

// IsZero reports whether the delta records no change at all.
func (d SummaryDelta) IsZero() bool {
	return len(d.Changes) == 0 && d.OrdersAffected == 0
}

// UpdateOutcome is the result of applying one snapshot to the product
// state store.
type UpdateOutcome int

const (
	// OutcomeInitialized: the snapshot established a new baseline (first
	// observation of the product, or first after a window reset).
	OutcomeInitialized UpdateOutcome = iota
	// OutcomeUpdated: the snapshot was diffed against the baseline and
	// one record was appended to every history sequence.
	OutcomeUpdated
	// OutcomeRejected: the snapshot was malformed; state is untouched and
	// the snapshot counter did not advance.
	OutcomeRejected
)

// String returns the outcome name used in logs and events.
func (o UpdateOutcome) String() string {
	switch o {
	case OutcomeInitialized:
		return "initialized"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}
