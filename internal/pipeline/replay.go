package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/bazaarpulse/internal/detector"
	"github.com/alanyoungcy/bazaarpulse/internal/domain"
	"github.com/alanyoungcy/bazaarpulse/internal/tracker"
)

// replayScanBuffer sizes the line scanner for full-feed recordings; a single
// poll of every product runs well past bufio's 64KB default.
const replayScanBuffer = 1 << 20

// ReplayerOpts bundles the replayer's collaborators.
type ReplayerOpts struct {
	Reader   domain.BlobReader
	Prefix   string
	Products []string // empty means every recorded product
	Tracker  *tracker.Tracker
	Analyzer *detector.Analyzer
	Out      chan<- domain.WindowResult
	Logger   *slog.Logger
}

// Replayer feeds recorded batches back through a tracker and analyzer,
// reproducing the window results the live engine would have computed. It
// runs single-threaded: replay has the whole recording up front, so worker
// fan-out buys nothing and strict feed order costs nothing.
type Replayer struct {
	reader   domain.BlobReader
	prefix   string
	products map[string]bool
	tracker  *tracker.Tracker
	analyzer *detector.Analyzer
	out      chan<- domain.WindowResult
	logger   *slog.Logger
}

// NewReplayer creates a Replayer.
func NewReplayer(opts ReplayerOpts) *Replayer {
	prefix := opts.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	products := make(map[string]bool, len(opts.Products))
	for _, id := range opts.Products {
		products[id] = true
	}
	return &Replayer{
		reader:   opts.Reader,
		prefix:   prefix,
		products: products,
		tracker:  opts.Tracker,
		analyzer: opts.Analyzer,
		out:      opts.Out,
		logger:   opts.Logger.With(slog.String("component", "replayer")),
	}
}

// Run replays every recording under the prefix in feed order and closes the
// output channel when the set is exhausted.
func (r *Replayer) Run(ctx context.Context) error {
	defer close(r.out)

	infos, err := r.reader.List(ctx, r.prefix)
	if err != nil {
		return fmt.Errorf("pipeline: list recordings: %w", err)
	}
	if len(infos) == 0 {
		r.logger.Warn("no recordings found", slog.String("prefix", r.prefix))
		return nil
	}

	// Paths embed the millisecond watermark, so lexicographic order is
	// feed order.
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })

	r.logger.Info("replay started",
		slog.String("prefix", r.prefix),
		slog.Int("recordings", len(infos)),
	)

	var snapshots, windows int
	for _, info := range infos {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, w, err := r.replayObject(ctx, info.Path)
		snapshots += n
		windows += w
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("recording skipped",
				slog.String("path", info.Path),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.Info("replay finished",
		slog.Int("snapshots", snapshots),
		slog.Int("windows", windows),
	)
	return nil
}

// replayObject streams one recording through the tracker, analyzing and
// emitting every window that closes along the way.
func (r *Replayer) replayObject(ctx context.Context, path string) (snapshots, windows int, err error) {
	rc, err := r.reader.Get(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, replayScanBuffer), replayScanBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rs recordedSnapshot
		if err := json.Unmarshal(line, &rs); err != nil {
			return snapshots, windows, fmt.Errorf("decode line %d: %w", snapshots+1, err)
		}
		if len(r.products) > 0 && !r.products[rs.ProductID] {
			continue
		}

		snap := decodeRecorded(rs)
		if _, err := r.tracker.Apply(snap); err != nil {
			r.logger.Debug("snapshot rejected",
				slog.String("product_id", snap.ProductID),
				slog.String("error", err.Error()),
			)
			continue
		}
		snapshots++

		w := r.tracker.Tick(snap.ProductID)
		if w == nil {
			continue
		}
		windows++

		res := r.analyzer.Analyze(w)
		select {
		case r.out <- res:
		case <-ctx.Done():
			return snapshots, windows, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return snapshots, windows, fmt.Errorf("scan: %w", err)
	}
	return snapshots, windows, nil
}
