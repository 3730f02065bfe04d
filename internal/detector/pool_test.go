package detector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_PerProductOrder(t *testing.T) {
	p := NewPool(NewAnalyzer(Config{}), 3, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	const n = 20
	for i := 1; i <= n; i++ {
		for _, product := range []string{"ENCHANTED_COAL", "ENCHANTED_LAPIS"} {
			w := buildWindow(9,
				func(int) int64 { return 1000 },
				func(int) int64 { return 0 },
			)
			w.ProductID = product
			w.Index = int64(i)
			if err := p.Submit(ctx, w); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
	}

	last := map[string]int64{}
	for i := 0; i < 2*n; i++ {
		res := <-p.Results()
		if res.WindowIndex != last[res.ProductID]+1 {
			t.Fatalf("%s: window %d arrived after %d, per-product order broken",
				res.ProductID, res.WindowIndex, last[res.ProductID])
		}
		last[res.ProductID] = res.WindowIndex
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	// The results channel is closed once Run has returned.
	if _, open := <-p.Results(); open {
		t.Error("results channel should be closed after Run returns")
	}
}

func TestPool_SubmitRespectsContext(t *testing.T) {
	p := NewPool(NewAnalyzer(Config{}), 1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No worker is draining the queue; once it is full, Submit must give
	// up on the cancelled context instead of blocking forever.
	w := buildWindow(9, func(int) int64 { return 0 }, func(int) int64 { return 0 })
	var err error
	for i := 0; i < queueBuffer+1; i++ {
		if err = p.Submit(ctx, w); err != nil {
			break
		}
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Submit = %v, want context.Canceled", err)
	}
}
