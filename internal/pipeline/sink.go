package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// Notifier sends filtered operator notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ResultWriter is the slice of the result store the sink writes through.
type ResultWriter interface {
	Insert(ctx context.Context, res domain.WindowResult) error
}

// ProductRecorder maintains the product registry: registration on first
// sighting and per-window verdict bookkeeping.
type ProductRecorder interface {
	Upsert(ctx context.Context, info domain.ProductInfo) error
	RecordResult(ctx context.Context, productID string, detected bool, at time.Time) error
}

// resultEvent is the bus payload published for every analyzed window.
type resultEvent struct {
	Type            string    `json:"type"`
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	WindowIndex     int64     `json:"window_index"`
	Detected        bool      `json:"detected"`
	GroupSize       int       `json:"group_size,omitempty"`
	PeriodSnapshots float64   `json:"period_snapshots,omitempty"`
	PeriodSeconds   float64   `json:"period_seconds,omitempty"`
	CombinedScore   float64   `json:"combined_score"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// engineEvent is the bus payload published for engine lifecycle events.
type engineEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	ProductID string    `json:"product_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// SinkOpts bundles the sink's collaborators. Cache, Bus, and Notifier may
// be nil: replay writes durable rows only, so historical results never
// overwrite live cache state or page an operator twice.
type SinkOpts struct {
	Results  <-chan domain.WindowResult
	Events   <-chan domain.EngineEvent // nil when the mode emits no events
	Store    ResultWriter
	Products ProductRecorder
	Cache    domain.ResultCache
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Notifier Notifier
	Logger   *slog.Logger
}

// Sink drains analysis results and engine events into their destinations:
// Postgres for durability, Redis for the latest-value cache and the
// pub/sub fan-out, and the notifier for operator alerts. A failing
// destination is logged and skipped; one slow or broken sink never stops
// the engine.
type Sink struct {
	results  <-chan domain.WindowResult
	events   <-chan domain.EngineEvent
	store    ResultWriter
	products ProductRecorder
	cache    domain.ResultCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger
}

// NewSink creates a Sink.
func NewSink(opts SinkOpts) *Sink {
	return &Sink{
		results:  opts.Results,
		events:   opts.Events,
		store:    opts.Store,
		products: opts.Products,
		cache:    opts.Cache,
		bus:      opts.Bus,
		audit:    opts.Audit,
		notifier: opts.Notifier,
		logger:   opts.Logger.With(slog.String("component", "sink")),
	}
}

// Run consumes both channels until the context ends or every producer has
// closed its channel. A closed channel is parked at nil so the select
// keeps draining the other one.
func (s *Sink) Run(ctx context.Context) error {
	s.logger.Info("sink started")
	results, events := s.results, s.events

	for {
		if results == nil && events == nil {
			s.logger.Info("sink drained")
			return nil
		}

		select {
		case <-ctx.Done():
			s.logger.Info("sink stopped")
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			s.handleResult(ctx, res)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Sink) handleResult(ctx context.Context, res domain.WindowResult) {
	if err := s.store.Insert(ctx, res); err != nil {
		s.logger.Error("result insert failed",
			slog.String("result_id", res.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.products.RecordResult(ctx, res.ProductID, res.Detected, res.AnalyzedAt); err != nil {
		s.logger.Error("product registry update failed",
			slog.String("product_id", res.ProductID),
			slog.String("error", err.Error()),
		)
	}

	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, res); err != nil {
			s.logger.Warn("result cache update failed",
				slog.String("product_id", res.ProductID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(resultEvent{
			Type:            "window_result",
			ID:              res.ID,
			ProductID:       res.ProductID,
			WindowIndex:     res.WindowIndex,
			Detected:        res.Detected,
			GroupSize:       res.GroupSize,
			PeriodSnapshots: res.PeriodSnapshots,
			PeriodSeconds:   res.Period.Seconds(),
			CombinedScore:   res.CombinedScore,
			AnalyzedAt:      res.AnalyzedAt,
		})
		if err != nil {
			s.logger.Error("result payload marshal failed", slog.String("error", err.Error()))
			return
		}

		if err := s.bus.Publish(ctx, ChannelResults, payload); err != nil {
			s.logger.Warn("result publish failed", slog.String("error", err.Error()))
		}
		if err := s.bus.StreamAppend(ctx, StreamResults, payload); err != nil {
			s.logger.Warn("result stream append failed", slog.String("error", err.Error()))
		}
	}

	s.notifyResult(ctx, res)

	s.logger.Debug("result persisted",
		slog.String("product_id", res.ProductID),
		slog.Int64("window_index", res.WindowIndex),
		slog.Bool("detected", res.Detected),
	)
}

func (s *Sink) notifyResult(ctx context.Context, res domain.WindowResult) {
	if s.notifier == nil {
		return
	}

	var event, title, message string
	if res.Detected {
		event = domain.EventPatternDetected
		title = fmt.Sprintf("Pattern detected: %s", res.ProductID)
		message = fmt.Sprintf("window %d: %d members every %.1f snapshots (%s), score %.3f",
			res.WindowIndex, res.GroupSize, res.PeriodSnapshots, res.Period, res.CombinedScore)
	} else {
		event = domain.EventNoPattern
		title = fmt.Sprintf("No pattern: %s", res.ProductID)
		message = fmt.Sprintf("window %d closed without a recurring group", res.WindowIndex)
	}

	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}

func (s *Sink) handleEvent(ctx context.Context, ev domain.EngineEvent) {
	if ev.Type == domain.EventProductInitialized {
		info := domain.ProductInfo{
			ProductID:   ev.ProductID,
			FirstSeenAt: ev.At,
			LastSeenAt:  ev.At,
			UpdatedAt:   ev.At,
		}
		if err := s.products.Upsert(ctx, info); err != nil {
			s.logger.Error("product registration failed",
				slog.String("product_id", ev.ProductID),
				slog.String("error", err.Error()),
			)
		}
	}

	detail := map[string]any{"at": ev.At.Format(time.RFC3339)}
	if ev.ProductID != "" {
		detail["product_id"] = ev.ProductID
	}
	if ev.Message != "" {
		detail["message"] = ev.Message
	}

	if err := s.audit.Log(ctx, ev.Type, detail); err != nil {
		s.logger.Error("audit log failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
	}

	if s.bus != nil {
		payload, err := json.Marshal(engineEvent{
			Type:      ev.Type,
			ID:        ev.ID,
			ProductID: ev.ProductID,
			Message:   ev.Message,
			At:        ev.At,
		})
		if err != nil {
			s.logger.Error("event payload marshal failed", slog.String("error", err.Error()))
			return
		}
		if err := s.bus.Publish(ctx, ChannelEvents, payload); err != nil {
			s.logger.Warn("event publish failed", slog.String("error", err.Error()))
		}
	}

	if s.notifier != nil {
		title := fmt.Sprintf("Engine event: %s", ev.Type)
		if err := s.notifier.Notify(ctx, ev.Type, title, ev.Message); err != nil {
			s.logger.Warn("notification failed", slog.String("error", err.Error()))
		}
	}
}
