package domain

import (
	"context"
	"time"
)

// SnapshotCache holds the latest raw snapshot per product.
type SnapshotCache interface {
	Set(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, productID string) (Snapshot, error)
	SetBatch(ctx context.Context, snaps []Snapshot) error
}

// ResultCache holds the latest window result per product.
type ResultCache interface {
	SetLatest(ctx context.Context, res WindowResult) error
	GetLatest(ctx context.Context, productID string) (WindowResult, error)
}

// RateLimiter provides distributed rate limiting. Callers skip or
// reschedule denied work; nothing in the engine blocks on a free slot.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
