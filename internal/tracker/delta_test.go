package tracker

import (
	"testing"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

func TestDiffSummaries_Appearance(t *testing.T) {
	prev := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 200, Orders: 3},
	}
	cur := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 200, Orders: 3},
		{PriceTicks: 1010, SizeBucket: 32, Quantity: 96, Orders: 2},
	}

	d := diffSummaries(prev, cur)

	if got := d.Changes[32]; got != 96 {
		t.Errorf("Changes[32] = %d, want 96", got)
	}
	if _, ok := d.Changes[64]; ok {
		t.Error("unchanged bucket 64 should not appear in Changes")
	}
	if d.OrdersAffected != 2 {
		t.Errorf("OrdersAffected = %d, want 2", d.OrdersAffected)
	}
}

func TestDiffSummaries_Disappearance(t *testing.T) {
	prev := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 200, Orders: 3},
		{PriceTicks: 1010, SizeBucket: 32, Quantity: 96, Orders: 2},
	}
	cur := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 200, Orders: 3},
	}

	d := diffSummaries(prev, cur)

	if got := d.Changes[32]; got != -96 {
		t.Errorf("Changes[32] = %d, want -96", got)
	}
	if d.OrdersAffected != 2 {
		t.Errorf("OrdersAffected = %d, want 2", d.OrdersAffected)
	}
}

func TestDiffSummaries_SignCancellationExcludesBucket(t *testing.T) {
	// Two levels fold into the same size bucket, one growing and one
	// shrinking by the same amount. The bucket must vanish from the
	// record entirely, not sum to zero.
	prev := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 100, Orders: 2},
		{PriceTicks: 1010, SizeBucket: 64, Quantity: 100, Orders: 2},
	}
	cur := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 150, Orders: 2},
		{PriceTicks: 1010, SizeBucket: 64, Quantity: 50, Orders: 2},
	}

	d := diffSummaries(prev, cur)

	if _, ok := d.Changes[64]; ok {
		t.Errorf("cancelled bucket 64 should be excluded, got Changes = %v", d.Changes)
	}
}

func TestDiffSummaries_SignCancellationUnevenMagnitudes(t *testing.T) {
	// Mixed signs exclude the bucket even when the magnitudes differ.
	prev := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 100, Orders: 2},
		{PriceTicks: 1010, SizeBucket: 64, Quantity: 100, Orders: 2},
	}
	cur := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 150, Orders: 2},
		{PriceTicks: 1010, SizeBucket: 64, Quantity: 70, Orders: 2},
	}

	d := diffSummaries(prev, cur)

	if _, ok := d.Changes[64]; ok {
		t.Errorf("mixed-sign bucket 64 should be excluded, got Changes = %v", d.Changes)
	}
}

func TestDiffSummaries_SameSignAccumulates(t *testing.T) {
	prev := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 100, Orders: 2},
		{PriceTicks: 1010, SizeBucket: 64, Quantity: 100, Orders: 2},
	}
	cur := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 130, Orders: 2},
		{PriceTicks: 1010, SizeBucket: 64, Quantity: 120, Orders: 2},
	}

	d := diffSummaries(prev, cur)

	if got := d.Changes[64]; got != 50 {
		t.Errorf("Changes[64] = %d, want 50", got)
	}
}

func TestDiffSummaries_UnchangedIsZeroRecord(t *testing.T) {
	s := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 200, Orders: 3},
		{PriceTicks: 1010, SizeBucket: 32, Quantity: 96, Orders: 2},
	}

	d := diffSummaries(s, s)

	if !d.IsZero() {
		t.Errorf("identical summaries should yield a zero record, got %+v", d)
	}
}

func TestDiffSummaries_DuplicateTicksMerge(t *testing.T) {
	// Levels repeated at the same price tick are summed before diffing.
	prev := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 60, Orders: 1},
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 40, Orders: 1},
	}
	cur := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 110, Orders: 2},
	}

	d := diffSummaries(prev, cur)

	if got := d.Changes[64]; got != 10 {
		t.Errorf("Changes[64] = %d, want 10", got)
	}
}

func TestDiffSummaries_OrdersAffectedAbsolute(t *testing.T) {
	prev := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 100, Orders: 5},
		{PriceTicks: 1010, SizeBucket: 32, Quantity: 100, Orders: 4},
	}
	cur := domain.OrderSummary{
		{PriceTicks: 1000, SizeBucket: 64, Quantity: 150, Orders: 8},
		{PriceTicks: 1010, SizeBucket: 32, Quantity: 80, Orders: 1},
	}

	d := diffSummaries(prev, cur)

	// |8-5| + |1-4| = 6
	if d.OrdersAffected != 6 {
		t.Errorf("OrdersAffected = %d, want 6", d.OrdersAffected)
	}
}
