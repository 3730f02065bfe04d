package tracker

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSnap(product string, price float64, movingWeek int64, at time.Time) domain.Snapshot {
	return domain.Snapshot{
		ProductID:  product,
		Price:      price,
		MovingWeek: movingWeek,
		Summary: domain.OrderSummary{
			{PriceTicks: int64(price * 1000), SizeBucket: 64, Quantity: 640, Orders: 10},
		},
		Timestamp: at,
	}
}

func TestTracker_FirstSnapshotInitializes(t *testing.T) {
	tr := New(Config{WindowSize: 5}, testLogger())
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	outcome, err := tr.Apply(testSnap("ENCHANTED_COAL", 412.5, 100000, at))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != domain.OutcomeInitialized {
		t.Errorf("outcome = %v, want %v", outcome, domain.OutcomeInitialized)
	}
	if got := tr.SnapshotCount("ENCHANTED_COAL"); got != 1 {
		t.Errorf("SnapshotCount = %d, want 1", got)
	}
	if got := tr.Stats().ProductsTracked; got != 1 {
		t.Errorf("ProductsTracked = %d, want 1", got)
	}
}

func TestTracker_MalformedRejectedWithoutAdvancing(t *testing.T) {
	tr := New(Config{WindowSize: 5}, testLogger())
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	if _, err := tr.Apply(testSnap("ENCHANTED_COAL", 412.5, 100000, at)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := testSnap("ENCHANTED_COAL", -1, 100050, at.Add(20*time.Second))
	outcome, err := tr.Apply(bad)
	if outcome != domain.OutcomeRejected {
		t.Errorf("outcome = %v, want %v", outcome, domain.OutcomeRejected)
	}
	if !errors.Is(err, domain.ErrMalformedSnapshot) {
		t.Errorf("error = %v, want ErrMalformedSnapshot", err)
	}

	if got := tr.SnapshotCount("ENCHANTED_COAL"); got != 1 {
		t.Errorf("SnapshotCount after rejection = %d, want 1", got)
	}
	if got := tr.Stats().SnapshotsRejected; got != 1 {
		t.Errorf("SnapshotsRejected = %d, want 1", got)
	}

	// A malformed first-ever snapshot must not create product state.
	outcome, _ = tr.Apply(testSnap("", 10, 100, at))
	if outcome != domain.OutcomeRejected {
		t.Errorf("outcome = %v, want %v", outcome, domain.OutcomeRejected)
	}
	if got := tr.Stats().ProductsTracked; got != 1 {
		t.Errorf("ProductsTracked = %d, want 1", got)
	}
}

func TestTracker_NegativeMovingWeekClamped(t *testing.T) {
	tr := New(Config{WindowSize: 3}, testLogger())
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	tr.Apply(testSnap("ENCHANTED_COAL", 412.5, 100000, at))
	tr.Apply(testSnap("ENCHANTED_COAL", 412.5, 99900, at.Add(20*time.Second)))
	tr.Apply(testSnap("ENCHANTED_COAL", 412.5, 99950, at.Add(40*time.Second)))

	w := tr.Tick("ENCHANTED_COAL")
	if w == nil {
		t.Fatal("expected a closed window")
	}
	if got := w.MovingWeekDeltas[0]; got != 0 {
		t.Errorf("clamped delta = %d, want 0", got)
	}
	if got := w.MovingWeekDeltas[1]; got != 50 {
		t.Errorf("delta = %d, want 50", got)
	}
	for i, d := range w.MovingWeekDeltas {
		if d < 0 {
			t.Errorf("MovingWeekDeltas[%d] = %d, negative deltas must never be stored", i, d)
		}
	}
	if got := tr.Stats().DeltasClamped; got != 1 {
		t.Errorf("DeltasClamped = %d, want 1", got)
	}
}

func TestTracker_WindowBoundary(t *testing.T) {
	const size = 5
	tr := New(Config{WindowSize: size}, testLogger())
	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < size; i++ {
		at := start.Add(time.Duration(i) * 20 * time.Second)
		if _, err := tr.Apply(testSnap("ENCHANTED_COAL", 412.5, int64(100000+i*10), at)); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		w := tr.Tick("ENCHANTED_COAL")
		if i < size-1 && w != nil {
			t.Fatalf("Tick fired early at snapshot %d", i+1)
		}
		if i == size-1 && w == nil {
			t.Fatal("Tick did not fire at the window boundary")
		}
		if i == size-1 {
			if len(w.Prices) != size {
				t.Errorf("len(Prices) = %d, want %d", len(w.Prices), size)
			}
			if len(w.MovingWeekDeltas) != size-1 {
				t.Errorf("len(MovingWeekDeltas) = %d, want %d", len(w.MovingWeekDeltas), size-1)
			}
			if len(w.SummaryDeltas) != size-1 {
				t.Errorf("len(SummaryDeltas) = %d, want %d", len(w.SummaryDeltas), size-1)
			}
			if w.Index != 1 {
				t.Errorf("window Index = %d, want 1", w.Index)
			}
			if !w.StartedAt.Equal(start) {
				t.Errorf("StartedAt = %v, want %v", w.StartedAt, start)
			}
		}
	}

	// The boundary fires exactly once.
	if w := tr.Tick("ENCHANTED_COAL"); w != nil {
		t.Error("Tick fired twice for the same window")
	}
	if got := tr.SnapshotCount("ENCHANTED_COAL"); got != 0 {
		t.Errorf("SnapshotCount after reset = %d, want 0", got)
	}
	if got := tr.WindowCount("ENCHANTED_COAL"); got != 1 {
		t.Errorf("WindowCount = %d, want 1", got)
	}

	// The next snapshot re-establishes the baseline; nothing about the
	// previous window influences the new one.
	outcome, err := tr.Apply(testSnap("ENCHANTED_COAL", 500, 200000, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != domain.OutcomeInitialized {
		t.Errorf("outcome after reset = %v, want %v", outcome, domain.OutcomeInitialized)
	}
}

func TestTracker_WindowIndexIncrements(t *testing.T) {
	const size = 3
	tr := New(Config{WindowSize: size}, testLogger())
	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	for win := 1; win <= 2; win++ {
		for i := 0; i < size; i++ {
			at := start.Add(time.Duration(win*size+i) * 20 * time.Second)
			if _, err := tr.Apply(testSnap("ENCHANTED_COAL", 412.5, int64(win*100000+i), at)); err != nil {
				t.Fatalf("apply: %v", err)
			}
		}
		w := tr.Tick("ENCHANTED_COAL")
		if w == nil {
			t.Fatalf("window %d did not close", win)
		}
		if w.Index != int64(win) {
			t.Errorf("window Index = %d, want %d", w.Index, win)
		}
	}
	if got := tr.Stats().WindowsClosed; got != 2 {
		t.Errorf("WindowsClosed = %d, want 2", got)
	}
}

func TestTracker_UnchangedSnapshotStillAppends(t *testing.T) {
	tr := New(Config{WindowSize: 4}, testLogger())
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	// Identical payloads except the timestamp. Every apply must still
	// append one record to each sequence so indices stay aligned.
	for i := 0; i < 4; i++ {
		snap := testSnap("ENCHANTED_COAL", 412.5, 100000, at.Add(time.Duration(i)*20*time.Second))
		if _, err := tr.Apply(snap); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	w := tr.Tick("ENCHANTED_COAL")
	if w == nil {
		t.Fatal("expected a closed window")
	}
	if len(w.Prices) != 4 {
		t.Errorf("len(Prices) = %d, want 4", len(w.Prices))
	}
	if len(w.MovingWeekDeltas) != 3 {
		t.Errorf("len(MovingWeekDeltas) = %d, want 3", len(w.MovingWeekDeltas))
	}
	for i, d := range w.MovingWeekDeltas {
		if d != 0 {
			t.Errorf("MovingWeekDeltas[%d] = %d, want 0", i, d)
		}
	}
	for i, d := range w.SummaryDeltas {
		if !d.IsZero() {
			t.Errorf("SummaryDeltas[%d] = %+v, want zero record", i, d)
		}
	}
}

func TestTracker_ProductsIsolated(t *testing.T) {
	tr := New(Config{WindowSize: 3}, testLogger())
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ts := at.Add(time.Duration(i) * 20 * time.Second)
		tr.Apply(testSnap("ENCHANTED_COAL", 412.5, int64(100000+i), ts))
		if i < 1 {
			tr.Apply(testSnap("ENCHANTED_LAPIS", 90.1, int64(5000+i), ts))
		}
	}

	if w := tr.Tick("ENCHANTED_LAPIS"); w != nil {
		t.Error("ENCHANTED_LAPIS window closed with only one snapshot")
	}
	if w := tr.Tick("ENCHANTED_COAL"); w == nil {
		t.Error("ENCHANTED_COAL window should have closed")
	}
	if got := tr.SnapshotCount("ENCHANTED_LAPIS"); got != 1 {
		t.Errorf("ENCHANTED_LAPIS SnapshotCount = %d, want 1", got)
	}
}
