package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	// streamMaxLen bounds durable streams via XADD MAXLEN ~. At one entry
	// per analyzed window this holds several days of results.
	streamMaxLen int64 = 10000

	// subscriberBuffer absorbs bursts between the pub/sub pump and its
	// consumer.
	subscriberBuffer = 128

	payloadField = "payload"
)

// SignalBus carries engine events over Redis: pub/sub for live fan-out and
// a capped stream for catch-up reads.
type SignalBus struct {
	rdb *redis.Client
}

func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish fans the payload out to current subscribers of the channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe follows a channel, or a glob pattern when the name contains
// wildcards. The returned channel closes once ctx ends. A subscriber that
// stops draining stalls only its own pump goroutine, never the publisher.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var sub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		sub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		sub = sb.rdb.Subscribe(ctx, channel)
	}
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	// Closing the subscription ends the pump's range loop.
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// StreamAppend adds the payload to a capped stream.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries recorded after lastID; "0", "0-0",
// or "" read from the beginning. The read never blocks: a caught-up cursor
// yields an empty slice, and the caller polls again with the last ID it saw.
func (sb *SignalBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	start := "-"
	if lastID != "" && lastID != "0" && lastID != "0-0" {
		start = "(" + lastID
	}

	entries, err := sb.rdb.XRangeN(ctx, stream, start, "+", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	msgs := make([]domain.StreamMessage, 0, len(entries))
	for _, entry := range entries {
		payload, ok := entryPayload(entry)
		if !ok {
			continue
		}
		msgs = append(msgs, domain.StreamMessage{ID: entry.ID, Payload: payload})
	}
	return msgs, nil
}

func entryPayload(entry redis.XMessage) ([]byte, bool) {
	switch v := entry.Values[payloadField].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
