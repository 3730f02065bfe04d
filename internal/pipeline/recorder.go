package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// recordedLevel and recordedSnapshot are the JSONL shapes written to object
// storage. The replayer decodes the same shapes, so recordings made by any
// engine version with these fields stay replayable.
type recordedLevel struct {
	PriceTicks int64 `json:"price_ticks"`
	SizeBucket int64 `json:"size_bucket"`
	Quantity   int64 `json:"quantity"`
	Orders     int   `json:"orders"`
}

type recordedSnapshot struct {
	ProductID  string          `json:"product_id"`
	Price      float64         `json:"price"`
	MovingWeek int64           `json:"moving_week"`
	Summary    []recordedLevel `json:"summary,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func encodeRecorded(snap domain.Snapshot) recordedSnapshot {
	rs := recordedSnapshot{
		ProductID:  snap.ProductID,
		Price:      snap.Price,
		MovingWeek: snap.MovingWeek,
		Timestamp:  snap.Timestamp,
	}
	for _, lvl := range snap.Summary {
		rs.Summary = append(rs.Summary, recordedLevel(lvl))
	}
	return rs
}

func decodeRecorded(rs recordedSnapshot) domain.Snapshot {
	snap := domain.Snapshot{
		ProductID:  rs.ProductID,
		Price:      rs.Price,
		MovingWeek: rs.MovingWeek,
		Timestamp:  rs.Timestamp,
	}
	for _, lvl := range rs.Summary {
		snap.Summary = append(snap.Summary, domain.OrderLevel(lvl))
	}
	return snap
}

// Recorder writes every polled batch to object storage as one JSONL object,
// keyed by the feed watermark so a recording set replays in feed order.
type Recorder struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
	logger *slog.Logger
}

// NewRecorder creates a Recorder that writes under the given key prefix.
// A nil reader disables the duplicate-object probe.
func NewRecorder(writer domain.BlobWriter, reader domain.BlobReader, prefix string, logger *slog.Logger) *Recorder {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Recorder{
		writer: writer,
		reader: reader,
		prefix: prefix,
		logger: logger.With(slog.String("component", "recorder")),
	}
}

// recordPath buckets objects by UTC day and hour. The file name is the
// 13-digit millisecond watermark, so lexicographic order is feed order.
func (r *Recorder) recordPath(batch domain.SnapshotBatch) string {
	return fmt.Sprintf("%s%s/%d.jsonl", r.prefix, batch.At.UTC().Format("2006-01-02/15"), batch.LastUpdated)
}

// Record uploads the batch, one snapshot per line. A watermark already
// recorded is left alone: a restart resets the in-memory watermark and
// the first poll re-serves the last feed, which would otherwise rewrite
// an identical object. A failed probe falls through to the upload.
func (r *Recorder) Record(ctx context.Context, batch domain.SnapshotBatch) error {
	if len(batch.Snapshots) == 0 {
		return nil
	}

	path := r.recordPath(batch)
	if r.reader != nil {
		ok, err := r.reader.Exists(ctx, path)
		if err != nil {
			r.logger.Warn("recording probe failed", slog.String("path", path), slog.Any("error", err))
		} else if ok {
			r.logger.Debug("batch already recorded", slog.String("path", path))
			return nil
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, snap := range batch.Snapshots {
		if err := enc.Encode(encodeRecorded(snap)); err != nil {
			return fmt.Errorf("pipeline: encode recording: %w", err)
		}
	}

	if err := r.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("pipeline: record batch: %w", err)
	}

	r.logger.Debug("batch recorded",
		slog.String("path", path),
		slog.Int("snapshots", len(batch.Snapshots)),
	)
	return nil
}
