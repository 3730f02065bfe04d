package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/bazaarpulse/internal/detector"
	"github.com/alanyoungcy/bazaarpulse/internal/domain"
	"github.com/alanyoungcy/bazaarpulse/internal/tracker"
)

// Ingestor owns the tracker. It is the only goroutine that touches product
// state, so the tracker itself needs no locking; everything reaches it
// through the batch channel.
type Ingestor struct {
	tracker *tracker.Tracker
	pool    *detector.Pool
	in      <-chan domain.SnapshotBatch
	events  chan<- domain.EngineEvent
	logger  *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(tr *tracker.Tracker, pool *detector.Pool, in <-chan domain.SnapshotBatch, events chan<- domain.EngineEvent, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		tracker: tr,
		pool:    pool,
		in:      in,
		events:  events,
		logger:  logger.With(slog.String("component", "ingestor")),
	}
}

// Run applies incoming batches until the context is cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	i.logger.Info("ingestor started")
	for {
		select {
		case <-ctx.Done():
			i.logger.Info("ingestor stopped")
			return ctx.Err()
		case batch := <-i.in:
			if err := i.apply(ctx, batch); err != nil {
				return err
			}
		}
	}
}

// apply runs one batch through the tracker, submitting every completed
// window to the analysis pool. It only fails when the context ends while
// a hand-off is blocked.
func (i *Ingestor) apply(ctx context.Context, batch domain.SnapshotBatch) error {
	var windows int
	for _, snap := range batch.Snapshots {
		outcome, err := i.tracker.Apply(snap)
		switch outcome {
		case domain.OutcomeRejected:
			i.logger.Warn("snapshot rejected",
				slog.String("product_id", snap.ProductID),
				slog.String("error", err.Error()),
			)
			i.emit(ctx, domain.EngineEvent{
				ID:        uuid.New().String(),
				Type:      domain.EventSnapshotRejected,
				ProductID: snap.ProductID,
				Outcome:   outcome,
				Message:   err.Error(),
				At:        time.Now().UTC(),
			})
			continue
		case domain.OutcomeInitialized:
			// Re-initializations after a window reset are routine; only a
			// product's very first observation is worth an event.
			if i.tracker.WindowCount(snap.ProductID) == 0 {
				i.emit(ctx, domain.EngineEvent{
					ID:        uuid.New().String(),
					Type:      domain.EventProductInitialized,
					ProductID: snap.ProductID,
					Outcome:   outcome,
					At:        time.Now().UTC(),
				})
			}
		}

		w := i.tracker.Tick(snap.ProductID)
		if w == nil {
			continue
		}
		windows++

		i.emit(ctx, domain.EngineEvent{
			ID:        uuid.New().String(),
			Type:      domain.EventWindowClosed,
			ProductID: w.ProductID,
			Message:   fmt.Sprintf("window %d closed with %d deltas", w.Index, w.DeltaLen()),
			At:        time.Now().UTC(),
		})

		if err := i.pool.Submit(ctx, w); err != nil {
			return err
		}
	}

	if windows > 0 {
		i.logger.Info("batch applied",
			slog.Int64("watermark", batch.LastUpdated),
			slog.Int("snapshots", len(batch.Snapshots)),
			slog.Int("windows_closed", windows),
		)
	}
	return nil
}

func (i *Ingestor) emit(ctx context.Context, ev domain.EngineEvent) {
	select {
	case i.events <- ev:
	case <-ctx.Done():
	}
}
