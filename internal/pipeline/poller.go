// Package pipeline wires the snapshot feed, the tracker, the analysis
// pool, and the persistence sinks into the running engine.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// Bus channels and streams the pipeline publishes on.
const (
	// ChannelResults carries one JSON payload per analyzed window.
	ChannelResults = "bz:results"
	// ChannelEvents carries engine lifecycle events.
	ChannelEvents = "bz:events"
	// ChannelPattern matches every pipeline channel, for wildcard
	// subscribers such as the websocket hub.
	ChannelPattern = "bz:*"
	// StreamResults is the durable stream mirror of ChannelResults.
	StreamResults = "stream:results"
)

// Upstream protection. The keyed bazaar endpoint allows 300 requests per
// five minutes; the limiter holds the engine well inside that even when
// the poll interval is misconfigured.
const (
	sourceRateKey    = "bazaar_poll"
	sourceRateLimit  = 60
	sourceRateWindow = time.Minute

	// pollLockKey guards one cadence slot across accidental replicas.
	pollLockKey = "poll"
)

// SnapshotFetcher pulls one full snapshot batch from the upstream feed.
// It reports domain.ErrNotModified when the feed has not advanced past
// the given watermark.
type SnapshotFetcher interface {
	FetchSince(ctx context.Context, watermark int64) (domain.SnapshotBatch, error)
}

// PollerOpts bundles the poller's collaborators.
type PollerOpts struct {
	Fetcher  SnapshotFetcher
	Limiter  domain.RateLimiter
	Locks    domain.LockManager
	Cache    domain.SnapshotCache
	Recorder *Recorder // nil disables raw recording
	Products []string  // empty tracks the whole feed
	Interval time.Duration
	Out      chan<- domain.SnapshotBatch
	Events   chan<- domain.EngineEvent
	Logger   *slog.Logger
}

// Poller drives the snapshot feed on a fixed cadence. It owns the
// lastUpdated watermark, so an unchanged feed is skipped without touching
// the tracker.
type Poller struct {
	fetcher   SnapshotFetcher
	limiter   domain.RateLimiter
	locks     domain.LockManager
	cache     domain.SnapshotCache
	recorder  *Recorder
	products  map[string]bool
	interval  time.Duration
	out       chan<- domain.SnapshotBatch
	events    chan<- domain.EngineEvent
	logger    *slog.Logger
	watermark int64
}

// NewPoller creates a Poller.
func NewPoller(opts PollerOpts) *Poller {
	products := make(map[string]bool, len(opts.Products))
	for _, id := range opts.Products {
		products[id] = true
	}
	return &Poller{
		fetcher:  opts.Fetcher,
		limiter:  opts.Limiter,
		locks:    opts.Locks,
		cache:    opts.Cache,
		recorder: opts.Recorder,
		products: products,
		interval: opts.Interval,
		out:      opts.Out,
		events:   opts.Events,
		logger:   opts.Logger.With(slog.String("component", "poller")),
	}
}

// RunLoop polls the feed on a repeating interval until the context is
// cancelled. Poll failures are reported as events and never stop the loop.
func (p *Poller) RunLoop(ctx context.Context) error {
	p.logger.Info("poller started",
		slog.Duration("interval", p.interval),
		slog.Int("product_filter", len(p.products)),
	)

	// Run immediately on start.
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one poll pass: rate limit, cadence lock, fetch, record, cache,
// and hand-off to the ingestor.
func (p *Poller) poll(ctx context.Context) {
	allowed, err := p.limiter.Allow(ctx, sourceRateKey, sourceRateLimit, sourceRateWindow)
	if err != nil {
		// The cadence itself bounds the request rate, so a limiter outage
		// degrades to an unguarded poll instead of stalling detection.
		p.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
	} else if !allowed {
		p.logger.Warn("poll rate limit reached, skipping tick")
		return
	}

	// The lock guards the whole cadence slot and expires on its own, so
	// the unlock closure is deliberately discarded.
	if _, err := p.locks.Acquire(ctx, pollLockKey, p.interval); err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			p.logger.Debug("another instance polled this slot")
			return
		}
		p.logger.Warn("poll lock unavailable", slog.String("error", err.Error()))
	}

	batch, err := p.fetcher.FetchSince(ctx, p.watermark)
	if err != nil {
		if errors.Is(err, domain.ErrNotModified) {
			p.logger.Debug("feed unchanged", slog.Int64("watermark", p.watermark))
			return
		}
		p.logger.Error("poll failed", slog.String("error", err.Error()))
		p.emit(ctx, domain.EngineEvent{
			ID:      uuid.New().String(),
			Type:    domain.EventPollFailure,
			Message: err.Error(),
			At:      time.Now().UTC(),
		})
		return
	}
	p.watermark = batch.LastUpdated

	if p.recorder != nil {
		// The recording keeps the unfiltered feed so a replay can apply a
		// different product filter.
		if err := p.recorder.Record(ctx, batch); err != nil {
			p.logger.Warn("raw recording failed", slog.String("error", err.Error()))
		}
	}

	if len(p.products) > 0 {
		kept := batch.Snapshots[:0]
		for _, snap := range batch.Snapshots {
			if p.products[snap.ProductID] {
				kept = append(kept, snap)
			}
		}
		batch.Snapshots = kept
	}
	if len(batch.Snapshots) == 0 {
		p.logger.Debug("no tracked products in batch", slog.Int64("watermark", batch.LastUpdated))
		return
	}

	if err := p.cache.SetBatch(ctx, batch.Snapshots); err != nil {
		p.logger.Warn("snapshot cache update failed", slog.String("error", err.Error()))
	}

	select {
	case p.out <- batch:
		p.logger.Debug("batch dispatched",
			slog.Int64("watermark", batch.LastUpdated),
			slog.Int("snapshots", len(batch.Snapshots)),
		)
	case <-ctx.Done():
	}
}

func (p *Poller) emit(ctx context.Context, ev domain.EngineEvent) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}
