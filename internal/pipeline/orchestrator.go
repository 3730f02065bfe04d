package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bazaarpulse/internal/detector"
)

// Orchestrator manages the engine goroutines: feed polling, snapshot
// ingestion, window analysis, result sinking, replay, and cold-storage
// archival. Any component may be nil; the run mode decides which ones the
// app wires in.
type Orchestrator struct {
	poller   *Poller
	ingestor *Ingestor
	pool     *detector.Pool
	sink     *Sink
	replayer *Replayer
	archiver *Archiver
	logger   *slog.Logger
}

// OrchestratorOpts bundles the components a run mode wires together.
type OrchestratorOpts struct {
	Poller   *Poller
	Ingestor *Ingestor
	Pool     *detector.Pool
	Sink     *Sink
	Replayer *Replayer
	Archiver *Archiver
	Logger   *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(opts OrchestratorOpts) *Orchestrator {
	return &Orchestrator{
		poller:   opts.Poller,
		ingestor: opts.Ingestor,
		pool:     opts.Pool,
		sink:     opts.Sink,
		replayer: opts.Replayer,
		archiver: opts.Archiver,
		logger:   opts.Logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every wired component as a concurrent goroutine using an
// errgroup. Each goroutine respects ctx cancellation. If any goroutine
// returns a non-context error, the errgroup cancels the shared context and
// Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("engine starting")

	g, ctx := errgroup.WithContext(ctx)

	if o.poller != nil {
		g.Go(func() error {
			err := o.poller.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("poller: %w", err)
		})
	}

	if o.ingestor != nil {
		g.Go(func() error {
			err := o.ingestor.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("ingestor: %w", err)
		})
	}

	if o.pool != nil {
		g.Go(func() error {
			err := o.pool.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("analysis pool: %w", err)
		})
	}

	if o.sink != nil {
		g.Go(func() error {
			err := o.sink.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			if err != nil {
				return fmt.Errorf("sink: %w", err)
			}
			return nil // channels drained, replay finished
		})
	}

	if o.replayer != nil {
		g.Go(func() error {
			err := o.replayer.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			if err != nil {
				return fmt.Errorf("replayer: %w", err)
			}
			return nil
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("engine stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("engine stopped cleanly")
	return nil
}
