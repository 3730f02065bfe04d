package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bazaarpulse/internal/crypto"
	"github.com/alanyoungcy/bazaarpulse/internal/detector"
	"github.com/alanyoungcy/bazaarpulse/internal/domain"
	"github.com/alanyoungcy/bazaarpulse/internal/pipeline"
	"github.com/alanyoungcy/bazaarpulse/internal/platform/hypixel"
	"github.com/alanyoungcy/bazaarpulse/internal/server"
	"github.com/alanyoungcy/bazaarpulse/internal/server/handler"
	"github.com/alanyoungcy/bazaarpulse/internal/server/ws"
	"github.com/alanyoungcy/bazaarpulse/internal/tracker"
)

// engineParts carries the live-pipeline components a mode composes into an
// orchestrator. The tracker is exposed separately so the HTTP status
// endpoint can report engine counters.
type engineParts struct {
	tracker  *tracker.Tracker
	pool     *detector.Pool
	poller   *pipeline.Poller
	ingestor *pipeline.Ingestor
	sink     *pipeline.Sink
}

// buildDetectEngine assembles the live detection pipeline: feed client,
// tracker, analysis pool, poller, ingestor, and sink, connected by the
// batch and event channels.
func (a *App) buildDetectEngine(deps *Dependencies) (*engineParts, error) {
	apiKey, err := crypto.LoadSecret(crypto.SecretConfig{
		Raw:           a.cfg.Source.APIKey,
		EncryptedPath: a.cfg.Source.EncryptedKeyPath,
		Password:      a.cfg.Source.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("load api key: %w", err)
	}

	fetcher := hypixel.NewClient(
		a.cfg.Source.BaseURL,
		apiKey,
		hypixel.Side(strings.ToLower(a.cfg.Source.Side)),
	)

	tr := tracker.New(tracker.Config{WindowSize: a.cfg.Detector.WindowSize}, a.logger)
	analyzer := detector.NewAnalyzer(detector.Config{
		MinGroupSize: a.cfg.Detector.MinGroupSize,
		Cadence:      a.cfg.Source.PollInterval.Duration,
	})
	pool := detector.NewPool(analyzer, a.cfg.Detector.Workers, a.logger)

	var recorder *pipeline.Recorder
	if a.cfg.Record.Enabled {
		if deps.BlobWriter == nil {
			return nil, fmt.Errorf("recording enabled but object storage is not wired")
		}
		recorder = pipeline.NewRecorder(deps.BlobWriter, deps.BlobReader, a.cfg.Record.Prefix, a.logger)
	}

	// Batch capacity of one: if the ingestor falls behind, the poller
	// blocks rather than queueing stale feeds.
	batches := make(chan domain.SnapshotBatch, 1)
	events := make(chan domain.EngineEvent, 64)

	poller := pipeline.NewPoller(pipeline.PollerOpts{
		Fetcher:  fetcher,
		Limiter:  deps.RateLimiter,
		Locks:    deps.LockManager,
		Cache:    deps.SnapshotCache,
		Recorder: recorder,
		Products: a.cfg.Source.Products,
		Interval: a.cfg.Source.PollInterval.Duration,
		Out:      batches,
		Events:   events,
		Logger:   a.logger,
	})

	ingestor := pipeline.NewIngestor(tr, pool, batches, events, a.logger)

	sink := pipeline.NewSink(pipeline.SinkOpts{
		Results:  pool.Results(),
		Events:   events,
		Store:    deps.ResultStore,
		Products: deps.ProductStore,
		Cache:    deps.ResultCache,
		Bus:      deps.SignalBus,
		Audit:    deps.AuditStore,
		Notifier: deps.Notifier,
		Logger:   a.logger,
	})

	return &engineParts{
		tracker:  tr,
		pool:     pool,
		poller:   poller,
		ingestor: ingestor,
		sink:     sink,
	}, nil
}

// DetectMode runs the headless live pipeline: poll the feed, track windows,
// analyze them, and sink the results. No HTTP server is started.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode",
		slog.Duration("poll_interval", a.cfg.Source.PollInterval.Duration),
		slog.Int("window_size", a.cfg.Detector.WindowSize),
	)

	parts, err := a.buildDetectEngine(deps)
	if err != nil {
		return fmt.Errorf("detect mode: %w", err)
	}

	orch := pipeline.NewOrchestrator(pipeline.OrchestratorOpts{
		Poller:   parts.poller,
		Ingestor: parts.ingestor,
		Pool:     parts.pool,
		Sink:     parts.sink,
		Logger:   a.logger,
	})
	return orch.Run(ctx)
}

// ServerMode serves the HTTP and WebSocket API over the stores without
// running the detection pipeline. Results come from a detect-mode process
// sharing the same Postgres and Redis.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil, nil)
	return g.Wait()
}

// ReplayMode feeds recorded snapshot batches back through a fresh tracker
// and analyzer, persists the reproduced results, and exits. Only durable
// destinations are written: historical results must not overwrite live
// cache state or page an operator twice.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("prefix", a.cfg.Record.Prefix),
		slog.Int("window_size", a.cfg.Detector.WindowSize),
	)

	tr := tracker.New(tracker.Config{WindowSize: a.cfg.Detector.WindowSize}, a.logger)
	analyzer := detector.NewAnalyzer(detector.Config{
		MinGroupSize: a.cfg.Detector.MinGroupSize,
		Cadence:      a.cfg.Source.PollInterval.Duration,
	})

	results := make(chan domain.WindowResult, 64)
	replayer := pipeline.NewReplayer(pipeline.ReplayerOpts{
		Reader:   deps.BlobReader,
		Prefix:   a.cfg.Record.Prefix,
		Products: a.cfg.Source.Products,
		Tracker:  tr,
		Analyzer: analyzer,
		Out:      results,
		Logger:   a.logger,
	})

	sink := pipeline.NewSink(pipeline.SinkOpts{
		Results:  results,
		Store:    deps.ResultStore,
		Products: deps.ProductStore,
		Logger:   a.logger,
	})

	orch := pipeline.NewOrchestrator(pipeline.OrchestratorOpts{
		Replayer: replayer,
		Sink:     sink,
		Logger:   a.logger,
	})
	return orch.Run(ctx)
}

// ArchiveMode runs a single archival pass and exits: aged results and audit
// rows move to object storage, and raw recordings past retention are pruned.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if a.cfg.Archive.RetentionDays < 1 {
		return fmt.Errorf("archive mode: retention_days must be >= 1, got %d", a.cfg.Archive.RetentionDays)
	}

	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	arch := pipeline.NewArchiver(
		deps.Archiver,
		a.cfg.Archive.RetentionDays,
		a.cfg.Archive.Interval.Duration,
		a.cfg.Record.Prefix,
		nil,
		a.logger,
	)
	if err := arch.Run(ctx); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	return nil
}

// FullMode runs the live pipeline, the periodic archiver when enabled, and
// the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Duration("poll_interval", a.cfg.Source.PollInterval.Duration),
		slog.Int("window_size", a.cfg.Detector.WindowSize),
	)

	parts, err := a.buildDetectEngine(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	opts := pipeline.OrchestratorOpts{
		Poller:   parts.poller,
		Ingestor: parts.ingestor,
		Pool:     parts.pool,
		Sink:     parts.sink,
		Logger:   a.logger,
	}

	// The trigger channel lets POST /api/archive/run force a pass between
	// ticks of the archiver loop.
	var archiveTrigger chan struct{}
	if a.cfg.Archive.Enabled {
		archiveTrigger = make(chan struct{}, 1)
		opts.Archiver = pipeline.NewArchiver(
			deps.Archiver,
			a.cfg.Archive.RetentionDays,
			a.cfg.Archive.Interval.Duration,
			a.cfg.Record.Prefix,
			archiveTrigger,
			a.logger,
		)
	}

	g, ctx := errgroup.WithContext(ctx)

	orch := pipeline.NewOrchestrator(opts)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, parts.tracker, archiveTrigger)
	}

	return g.Wait()
}

// startHTTPServer adds the WebSocket hub, the HTTP server, and its shutdown
// watcher to the given errgroup. stats may be nil (server mode has no
// in-process engine); archiveTrigger may be nil (archiver not running).
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	stats handler.StatsSource,
	archiveTrigger chan<- struct{},
) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("ws hub: %w", err)
	})

	archiveHandler := handler.NewArchiveHandler(a.logger)
	if archiveTrigger != nil {
		archiveHandler = archiveHandler.WithTriggerChannel(archiveTrigger)
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			AuthToken:   a.cfg.Server.AuthToken,
			RateLimit:   a.cfg.Server.RateLimit,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Status:   handler.NewStatusHandler(a.cfg.Mode, a.cfg.Detector.WindowSize, startedAt, stats),
			Products: handler.NewProductHandler(deps.ProductStore, deps.SnapshotCache, a.logger),
			Results:  handler.NewResultHandler(deps.ResultStore, deps.ResultCache, deps.SignalBus, pipeline.StreamResults, a.logger),
			Events:   handler.NewEventHandler(deps.AuditStore, a.logger),
			Archive:  archiveHandler,
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
