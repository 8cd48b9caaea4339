package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
)

const (
	// readBatch bounds how many stream entries one read returns.
	readBatch = 64

	// readRetryDelay spaces out retries when the stream read fails.
	readRetryDelay = time.Second
)

// RedisSource consumes the matcher's pair stream through a domain.PairBus.
// It starts at the stream tail: entries published before startup are stale
// quotes and are skipped, the same rule the engine applies at shutdown.
type RedisSource struct {
	bus    domain.PairBus
	logger *slog.Logger
}

// NewRedisSource creates a source reading from the given bus.
func NewRedisSource(bus domain.PairBus, logger *slog.Logger) *RedisSource {
	return &RedisSource{
		bus:    bus,
		logger: logger.With(slog.String("component", "redis_feed")),
	}
}

// Run implements Source.
func (s *RedisSource) Run(ctx context.Context, out chan<- domain.OutcomePair) error {
	s.logger.InfoContext(ctx, "redis feed started")
	defer s.logger.InfoContext(ctx, "redis feed stopped")

	lastID := "$"
	for {
		msgs, err := s.bus.Read(ctx, lastID, readBatch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WarnContext(ctx, "pair stream read failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", readRetryDelay),
			)
			if err := sleep(ctx, readRetryDelay); err != nil {
				return err
			}
			continue
		}

		for _, msg := range msgs {
			lastID = msg.ID

			pair, err := DecodePair(msg.Payload)
			if err != nil {
				s.logger.WarnContext(ctx, "dropping bad feed message",
					slog.String("stream_id", msg.ID),
					slog.String("error", err.Error()),
				)
				continue
			}

			select {
			case out <- pair:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
