package detector

import (
	"context"
	"hash/fnv"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

const (
	// DefaultWorkers is the pool size when the configuration does not
	// say otherwise.
	DefaultWorkers = 4

	queueBuffer   = 32
	resultsBuffer = 64
)

// Pool fans closed windows out to a fixed set of analysis workers.
// Windows are sharded by product, so one product's windows always run on
// the same worker and its results come out in window order; results of
// different products interleave freely.
type Pool struct {
	analyzer *Analyzer
	queues   []chan *domain.Window
	results  chan domain.WindowResult
	logger   *slog.Logger
}

// NewPool creates a Pool of the given size around one shared Analyzer.
func NewPool(analyzer *Analyzer, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queues := make([]chan *domain.Window, workers)
	for i := range queues {
		queues[i] = make(chan *domain.Window, queueBuffer)
	}
	return &Pool{
		analyzer: analyzer,
		queues:   queues,
		results:  make(chan domain.WindowResult, resultsBuffer),
		logger:   logger.With(slog.String("component", "analysis_pool")),
	}
}

// Results returns the channel the pool emits verdicts on. It is closed
// after Run returns.
func (p *Pool) Results() <-chan domain.WindowResult {
	return p.results
}

// Submit queues a window on its product's worker. It blocks when that
// worker's queue is full rather than dropping or reordering the window.
func (p *Pool) Submit(ctx context.Context, w *domain.Window) error {
	select {
	case p.queues[p.shard(w.ProductID)] <- w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is cancelled. The results
// channel is closed on the way out.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("analysis pool started", slog.Int("workers", len(p.queues)))
	defer p.logger.Info("analysis pool stopped")

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.queues {
		queue := p.queues[i]
		g.Go(func() error {
			return p.worker(gctx, queue)
		})
	}
	err := g.Wait()
	close(p.results)
	return err
}

func (p *Pool) worker(ctx context.Context, queue <-chan *domain.Window) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w := <-queue:
			res := p.analyzer.Analyze(w)
			p.logger.Debug("window analyzed",
				slog.String("product_id", res.ProductID),
				slog.Int64("window_index", res.WindowIndex),
				slog.Bool("detected", res.Detected),
				slog.Duration("took", res.AnalysisTime),
			)
			select {
			case p.results <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (p *Pool) shard(productID string) int {
	h := fnv.New32a()
	h.Write([]byte(productID))
	return int(h.Sum32() % uint32(len(p.queues)))
}
