package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/hedgeworks/crossarb/internal/blob/s3"
	"github.com/hedgeworks/crossarb/internal/cache/redis"
	"github.com/hedgeworks/crossarb/internal/config"
	"github.com/hedgeworks/crossarb/internal/domain"
	"github.com/hedgeworks/crossarb/internal/notify"
	"github.com/hedgeworks/crossarb/internal/store/file"
	"github.com/hedgeworks/crossarb/internal/store/postgres"
)

// Dependencies bundles the concrete infrastructure the modes operate on. It
// is constructed by Wire and torn down by the returned cleanup function.
// Optional pieces stay nil when their backend is disabled; the modes check
// before wiring them into the pipeline.
type Dependencies struct {
	// Persistence
	LedgerStore domain.LedgerStore
	EventStore  domain.TradeEventStore

	// Redis-backed services
	RateLimiter     domain.RateLimiter
	SettlementCache domain.SettlementCache
	PairBus         domain.PairBus

	// Blob storage
	Archiver domain.LedgerArchiver

	// Notifications
	Notifier  *notify.Notifier
	Announcer *notify.TradeAnnouncer
}

// isTradingMode reports whether the mode runs the engine pipeline. Only
// trading modes consume the pair stream, the venue rate limiter, and the
// operator notifications; the state summary reads the ledger and exits.
func isTradingMode(mode string) bool {
	switch mode {
	case "live", "simulate":
		return true
	default:
		return false
	}
}

// Wire constructs the concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (ledger snapshot store and/or trade event journal) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.EventStore = postgres.NewTradeEventStore(pool)
		if cfg.Ledger.Backend == "postgres" {
			deps.LedgerStore = postgres.NewLedgerStore(pool)
		}
	}

	// --- Ledger store (file backend unless Postgres claimed it above) ---
	switch cfg.Ledger.Backend {
	case "file":
		deps.LedgerStore = file.NewLedgerStore(cfg.Ledger.Path)
	case "postgres":
		if deps.LedgerStore == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ledger backend %q requires postgres.enabled", cfg.Ledger.Backend)
		}
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown ledger backend %q", cfg.Ledger.Backend)
	}

	// --- Redis (rate limiter, settlement cache, pair stream) ---
	if cfg.Redis.Enabled && isTradingMode(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Redis.RateLimit, cfg.Redis.RateWindow.Duration)
		deps.SettlementCache = redis.NewSettlementCache(redisClient,
			cfg.Redis.SettlementResolvedTTL.Duration,
			cfg.Redis.SettlementUnresolvedTTL.Duration,
		)
		deps.PairBus = redis.NewPairBus(redisClient, cfg.Feed.Stream)
	}

	// --- S3 blob storage (ledger snapshot archiving) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3 health: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
	}

	// --- Notifications ---
	if isTradingMode(mode) {
		var senders []notify.Sender
		if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegramSender(
				cfg.Notify.TelegramToken,
				cfg.Notify.TelegramChatID,
			))
		}
		if cfg.Notify.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
		}
		if len(senders) > 0 {
			deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
			deps.Announcer = notify.NewTradeAnnouncer(deps.Notifier)
		}
	}

	return deps, cleanup, nil
}
