package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/detector"
	"github.com/alanyoungcy/bazaarpulse/internal/domain"
	"github.com/alanyoungcy/bazaarpulse/internal/tracker"
)

func TestIngestor_ClosesWindowAndSubmits(t *testing.T) {
	tr := tracker.New(tracker.Config{WindowSize: 4}, testLogger())
	pool := detector.NewPool(detector.NewAnalyzer(detector.Config{}), 1, testLogger())

	in := make(chan domain.SnapshotBatch, 1)
	events := make(chan domain.EngineEvent, 16)
	ing := NewIngestor(tr, pool, in, events, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poolDone := make(chan error, 1)
	ingDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx) }()
	go func() { ingDone <- ing.Run(ctx) }()

	at := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	batch := domain.SnapshotBatch{LastUpdated: 1000, At: at}
	for i := 0; i < 4; i++ {
		batch.Snapshots = append(batch.Snapshots,
			testSnap("ENCHANTED_COAL", int64(100000+i), at.Add(time.Duration(i)*20*time.Second)))
	}
	in <- batch

	select {
	case res := <-pool.Results():
		if res.ProductID != "ENCHANTED_COAL" || res.WindowIndex != 1 {
			t.Errorf("result = %s window %d, want ENCHANTED_COAL window 1", res.ProductID, res.WindowIndex)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no result arrived after the window closed")
	}

	var types []string
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(5 * time.Second):
			t.Fatalf("saw events %v, want initialization and window close", types)
		}
	}
	if types[0] != domain.EventProductInitialized || types[1] != domain.EventWindowClosed {
		t.Errorf("event order = %v, want [%s %s]",
			types, domain.EventProductInitialized, domain.EventWindowClosed)
	}

	cancel()
	<-poolDone
	<-ingDone
}

func TestIngestor_MalformedSnapshotRejected(t *testing.T) {
	tr := tracker.New(tracker.Config{WindowSize: 4}, testLogger())
	pool := detector.NewPool(detector.NewAnalyzer(detector.Config{}), 1, testLogger())

	in := make(chan domain.SnapshotBatch, 1)
	events := make(chan domain.EngineEvent, 16)
	ing := NewIngestor(tr, pool, in, events, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	at := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	bad := testSnap("", 100000, at)
	in <- domain.SnapshotBatch{LastUpdated: 1000, At: at, Snapshots: []domain.Snapshot{bad}}

	select {
	case ev := <-events:
		if ev.Type != domain.EventSnapshotRejected {
			t.Errorf("event type = %q, want %q", ev.Type, domain.EventSnapshotRejected)
		}
		if ev.Outcome != domain.OutcomeRejected {
			t.Errorf("event outcome = %v, want %v", ev.Outcome, domain.OutcomeRejected)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no rejection event emitted")
	}

	if got := tr.Stats().SnapshotsRejected; got != 1 {
		t.Errorf("SnapshotsRejected = %d, want 1", got)
	}

	cancel()
	<-done
}

func TestIngestor_ReinitAfterResetIsQuiet(t *testing.T) {
	tr := tracker.New(tracker.Config{WindowSize: 2}, testLogger())
	pool := detector.NewPool(detector.NewAnalyzer(detector.Config{}), 1, testLogger())

	in := make(chan domain.SnapshotBatch, 2)
	events := make(chan domain.EngineEvent, 16)
	ing := NewIngestor(tr, pool, in, events, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poolDone := make(chan error, 1)
	ingDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx) }()
	go func() { ingDone <- ing.Run(ctx) }()

	at := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	mkBatch := func(i int) domain.SnapshotBatch {
		snapAt := at.Add(time.Duration(i) * 20 * time.Second)
		return domain.SnapshotBatch{
			LastUpdated: int64(1000 + i),
			At:          snapAt,
			Snapshots:   []domain.Snapshot{testSnap("ENCHANTED_COAL", int64(100000+i), snapAt)},
		}
	}

	// Two windows back to back: snapshots 1-2 close window 1 and reset,
	// snapshots 3-4 re-initialize and close window 2.
	for i := 0; i < 4; i++ {
		in <- mkBatch(i)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-pool.Results():
		case <-time.After(5 * time.Second):
			t.Fatalf("window %d never analyzed", i+1)
		}
	}

	cancel()
	<-poolDone
	<-ingDone
	close(events)

	var inits int
	for ev := range events {
		if ev.Type == domain.EventProductInitialized {
			inits++
		}
	}
	if inits != 1 {
		t.Errorf("saw %d initialization events, want only the first observation", inits)
	}
}
