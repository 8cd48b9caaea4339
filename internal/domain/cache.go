package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting for venue API calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// SettlementCache memoizes venue settlement answers so the reconciler does
// not hammer market endpoints. Resolved statuses are immutable and cached
// long; unresolved ones briefly.
type SettlementCache interface {
	Get(ctx context.Context, venue Venue, marketID string) (SettlementStatus, bool, error)
	Set(ctx context.Context, venue Venue, marketID string, st SettlementStatus) error
}

// StreamMessage is a single entry read from a pair stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// PairBus carries matched outcome pairs from an external matcher process to
// the engine over a durable stream.
type PairBus interface {
	Publish(ctx context.Context, payload []byte) error
	Read(ctx context.Context, lastID string, count int) ([]StreamMessage, error)
}
