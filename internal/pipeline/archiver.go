package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// Archiver moves old data from the database to S3 cold storage and prunes
// expired raw feed recordings.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	interval      time.Duration
	rawPrefix     string // empty disables recording pruning
	trigger       <-chan struct{}
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. The trigger channel fires an archive
// run on demand between ticks; nil means interval-only.
func NewArchiver(
	blobArchiver domain.Archiver,
	retentionDays int,
	interval time.Duration,
	rawPrefix string,
	trigger <-chan struct{},
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		interval:      interval,
		rawPrefix:     rawPrefix,
		trigger:       trigger,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive run. It calculates the cutoff time based on
// retentionDays and archives window results and audit entries older than the
// cutoff, then prunes raw recordings past the same cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	resultsArchived, err := a.blobArchiver.ArchiveResults(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving results before %v: %w", cutoff, err)
	}
	a.logger.Info("archived results", slog.Int64("count", resultsArchived))

	auditArchived, err := a.blobArchiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving audit entries before %v: %w", cutoff, err)
	}
	a.logger.Info("archived audit entries", slog.Int64("count", auditArchived))

	var rawPruned int64
	if a.rawPrefix != "" {
		rawPruned, err = a.blobArchiver.PruneRaw(ctx, a.rawPrefix, cutoff)
		if err != nil {
			return fmt.Errorf("pruning recordings before %v: %w", cutoff, err)
		}
		a.logger.Info("pruned recordings", slog.Int64("count", rawPruned))
	}

	a.logger.Info("archive run complete",
		slog.Int64("results_archived", resultsArchived),
		slog.Int64("audit_archived", auditArchived),
		slog.Int64("raw_pruned", rawPruned),
	)

	return nil
}

// RunLoop runs the archiver on a fixed interval until the context is
// cancelled. It does not run at startup; the first pass happens one full
// interval in, or earlier if the trigger channel fires. A failed run is
// logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context) error {
	a.logger.Info("archiver loop started", slog.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		case _, ok := <-a.trigger:
			if !ok {
				a.trigger = nil
				continue
			}
			a.logger.Info("archive run triggered")
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
