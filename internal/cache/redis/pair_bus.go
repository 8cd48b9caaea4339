package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hedgeworks/crossarb/internal/domain"
)

const (
	// defaultStream is the stream name used when none is configured.
	defaultStream = "crossarb:pairs"

	// streamMaxLen caps the stream so an idle engine does not let the
	// matcher grow it without bound. Trimming is approximate.
	streamMaxLen = 10000

	// readBlock bounds each XREAD so callers regain control periodically
	// and can observe context cancellation.
	readBlock = 5 * time.Second
)

// PairBus implements domain.PairBus on a Redis stream. The matcher publishes
// serialized outcome pairs; the engine consumes them with Read, tracking its
// own last-seen ID.
type PairBus struct {
	rdb    *redis.Client
	stream string
}

// NewPairBus creates a PairBus on the named stream. An empty name selects
// the default stream.
func NewPairBus(c *Client, stream string) *PairBus {
	if stream == "" {
		stream = defaultStream
	}
	return &PairBus{rdb: c.Underlying(), stream: stream}
}

// Publish appends a serialized pair to the stream.
func (b *PairBus) Publish(ctx context.Context, payload []byte) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: pair publish: %w", err)
	}
	return nil
}

// Read returns up to count entries after lastID, blocking briefly when the
// stream is empty. A block timeout returns an empty batch with no error.
func (b *PairBus) Read(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if count <= 0 {
		count = 1
	}

	streams, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{b.stream, lastID},
		Count:   int64(count),
		Block:   readBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: pair read: %w", err)
	}

	var msgs []domain.StreamMessage
	for _, stream := range streams {
		for _, entry := range stream.Messages {
			payload, ok := entry.Values["payload"]
			if !ok {
				continue
			}

			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}

			msgs = append(msgs, domain.StreamMessage{ID: entry.ID, Payload: data})
		}
	}
	return msgs, nil
}

// Compile-time interface check.
var _ domain.PairBus = (*PairBus)(nil)
