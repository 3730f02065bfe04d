package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
	"github.com/redis/go-redis/v9"
)

// snapshotTTL bounds how long a cached snapshot survives without a refresh,
// so a product that drops out of the feed stops serving stale reads.
const snapshotTTL = 5 * time.Minute

// SnapshotCache implements domain.SnapshotCache using one JSON value per
// product at key "snapshot:{productID}".
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(productID string) string {
	return "snapshot:" + productID
}

// cachedLevel and cachedSnapshot are the stored JSON shapes. Domain types
// carry no tags, so the cache owns its own encoding.
type cachedLevel struct {
	PriceTicks int64 `json:"price_ticks"`
	SizeBucket int64 `json:"size_bucket"`
	Quantity   int64 `json:"quantity"`
	Orders     int   `json:"orders"`
}

type cachedSnapshot struct {
	ProductID  string        `json:"product_id"`
	Price      float64       `json:"price"`
	MovingWeek int64         `json:"moving_week"`
	Summary    []cachedLevel `json:"summary,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

func encodeSnapshot(snap domain.Snapshot) ([]byte, error) {
	cs := cachedSnapshot{
		ProductID:  snap.ProductID,
		Price:      snap.Price,
		MovingWeek: snap.MovingWeek,
		Timestamp:  snap.Timestamp,
	}
	for _, lvl := range snap.Summary {
		cs.Summary = append(cs.Summary, cachedLevel(lvl))
	}
	return json.Marshal(cs)
}

func decodeSnapshot(data []byte) (domain.Snapshot, error) {
	var cs cachedSnapshot
	if err := json.Unmarshal(data, &cs); err != nil {
		return domain.Snapshot{}, err
	}
	snap := domain.Snapshot{
		ProductID:  cs.ProductID,
		Price:      cs.Price,
		MovingWeek: cs.MovingWeek,
		Timestamp:  cs.Timestamp,
	}
	for _, lvl := range cs.Summary {
		snap.Summary = append(snap.Summary, domain.OrderLevel(lvl))
	}
	return snap, nil
}

// Set stores the latest snapshot for a product.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot %s: %w", snap.ProductID, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.ProductID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.ProductID, err)
	}
	return nil
}

// Get retrieves the latest snapshot for a product.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *SnapshotCache) Get(ctx context.Context, productID string) (domain.Snapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot %s: %w", productID, err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", productID, err)
	}
	return snap, nil
}

// SetBatch stores a full poll's worth of snapshots using a pipeline.
func (sc *SnapshotCache) SetBatch(ctx context.Context, snaps []domain.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	pipe := sc.rdb.Pipeline()
	for _, snap := range snaps {
		data, err := encodeSnapshot(snap)
		if err != nil {
			return fmt.Errorf("redis: encode snapshot %s: %w", snap.ProductID, err)
		}
		pipe.Set(ctx, snapshotKey(snap.ProductID), data, snapshotTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot batch: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
