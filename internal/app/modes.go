package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hedgeworks/crossarb/internal/crypto"
	"github.com/hedgeworks/crossarb/internal/domain"
	"github.com/hedgeworks/crossarb/internal/engine"
	"github.com/hedgeworks/crossarb/internal/feed"
	"github.com/hedgeworks/crossarb/internal/ledger"
	"github.com/hedgeworks/crossarb/internal/platform/kalshi"
	"github.com/hedgeworks/crossarb/internal/platform/polymarket"
	"github.com/hedgeworks/crossarb/internal/platform/sim"
)

// LiveMode runs the engine against the real venue APIs. Both clients must
// authenticate before any pair is processed; an engine that can place one
// leg but not the other would turn every opportunity into naked exposure.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	kc, err := a.newKalshiClient(deps)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}
	pc, err := a.newPolymarketClient(ctx, deps)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}

	clients := map[domain.Venue]domain.VenueClient{
		domain.VenueKalshi:     kc,
		domain.VenuePolymarket: pc,
	}
	return a.runEngine(ctx, deps, clients)
}

// SimulateMode runs the identical pipeline against in-memory venue clients:
// immediate fills, no real order calls. Settlement queries are delegated to
// the real read-only market endpoints where credentials allow, so simulated
// trades settle against actual outcomes.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode")

	kc := sim.NewClient(domain.VenueKalshi)
	pc := sim.NewClient(domain.VenuePolymarket)

	if a.cfg.Polymarket.GammaHost != "" {
		// Gamma market reads are unauthenticated; no wallet needed.
		ro := polymarket.NewClient(a.cfg.Polymarket.ClobHost, a.cfg.Polymarket.GammaHost, nil)
		if deps.RateLimiter != nil {
			ro.SetRateLimiter(deps.RateLimiter)
		}
		pc.SetSettlementDelegate(ro)
	}

	if kdel, err := a.newKalshiClient(deps); err != nil {
		a.logger.WarnContext(ctx, "simulate mode: no kalshi settlement delegate, kalshi legs resolve only when scripted",
			slog.String("reason", err.Error()),
		)
	} else {
		kc.SetSettlementDelegate(kdel)
	}

	clients := map[domain.Venue]domain.VenueClient{
		domain.VenueKalshi:     kc,
		domain.VenuePolymarket: pc,
	}
	return a.runEngine(ctx, deps, clients)
}

// StateMode loads the persisted ledger, logs a structured summary, and
// returns. Nothing is placed and nothing is mutated.
func (a *App) StateMode(ctx context.Context, deps *Dependencies) error {
	led, err := a.loadForSummary(ctx, deps)
	if errors.Is(err, domain.ErrNotFound) {
		a.logger.InfoContext(ctx, "no ledger recorded yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("state mode: %w", err)
	}

	counts := led.CountByStatus()
	a.logger.InfoContext(ctx, "ledger summary",
		slog.Float64("balance", led.BalanceUSD),
		slog.Float64("initial_balance", led.InitialBalanceUSD),
		slog.Float64("realized_profit", led.RealizedProfitUSD()),
		slog.Int("trades", len(led.Trades)),
		slog.Int("pending", counts[domain.TradeStatusPending]),
		slog.Int("settled", counts[domain.TradeStatusSettled]),
		slog.Int("incomplete", counts[domain.TradeStatusIncomplete]),
		slog.Int("errors", len(led.Errors)),
	)

	daily := led.DailyFor(time.Now().UTC())
	a.logger.InfoContext(ctx, "daily counters",
		slog.Int("trades_today", daily.TradeCount),
		slog.Float64("loss_today", daily.LossUSD),
		slog.String("reset_date", daily.ResetDate),
	)

	for _, t := range led.PendingTrades() {
		a.logger.InfoContext(ctx, "open trade",
			slog.String("trade_id", t.ID),
			slog.Float64("quantity", t.Quantity),
			slog.Float64("cost", t.CostUSD),
			slog.Float64("expected_profit", t.ExpectedProfitUSD),
			slog.Time("placed_at", t.PlacedAt),
		)
	}

	for _, e := range recentErrors(led, 5) {
		a.logger.WarnContext(ctx, "recent error",
			slog.String("trade_id", e.TradeID),
			slog.String("message", e.Message),
			slog.Time("at", e.At),
		)
	}

	if deps.EventStore != nil {
		events, err := deps.EventStore.ListRecent(ctx, 10)
		if err != nil {
			a.logger.WarnContext(ctx, "event journal read failed",
				slog.String("error", err.Error()),
			)
		}
		for _, ev := range events {
			a.logger.InfoContext(ctx, "recent trade event",
				slog.String("trade_id", ev.TradeID),
				slog.String("event", ev.Event),
				slog.Time("at", ev.CreatedAt),
			)
		}
	}

	return nil
}

// runEngine builds the detector, sizer, coordinator and reconciler around the
// given venue clients and runs them with the feed source and the snapshot
// loop until the context ends.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, clients map[domain.Venue]domain.VenueClient) error {
	lm, err := a.openLedger(ctx, deps)
	if err != nil {
		return err
	}

	coord := engine.NewCoordinator(clients, lm, a.logger)
	rec := engine.NewReconciler(clients, lm,
		a.cfg.Engine.SettlementTimeout.Duration,
		a.cfg.Engine.ReconcileInterval.Duration,
		a.logger,
	)
	if deps.EventStore != nil {
		coord.SetEventStore(deps.EventStore)
		rec.SetEventStore(deps.EventStore)
	}
	if deps.Announcer != nil {
		coord.SetAnnouncer(deps.Announcer)
		rec.SetAnnouncer(deps.Announcer)
	}
	if deps.SettlementCache != nil {
		rec.SetCache(deps.SettlementCache)
	}

	detector := engine.NewDetector(a.venueCosts(), a.logger)
	sizer := engine.NewSizer(engine.Limits{
		TargetUnits:             a.cfg.Engine.TargetUnits,
		MinROIPct:               a.cfg.Engine.MinROIPct,
		DailyLossLimitUSD:       a.cfg.Engine.DailyLossLimitUSD,
		MaxPositionUSD:          a.cfg.Engine.MaxPositionUSD,
		MaxDailyTrades:          a.cfg.Engine.MaxDailyTrades,
		LiquidityThresholdUnits: a.cfg.Engine.LiquidityThresholdUnits,
		LiquidityDiscount:       a.cfg.Engine.LiquidityDiscount,
	}, a.logger)

	pairs := make(chan domain.OutcomePair, a.cfg.Feed.Buffer)
	eng := engine.NewEngine(pairs, detector, sizer, coord, lm,
		a.cfg.Engine.CooldownTTL.Duration, a.logger)
	if d := a.cfg.Engine.SweepInterval.Duration; d > 0 {
		eng.SetSweepInterval(d)
	}

	src, err := a.newFeedSource(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		return rec.Run(ctx)
	})
	g.Go(func() error {
		// Closing the channel lets the engine drain and stop when the
		// feed dies for a reason other than cancellation.
		defer close(pairs)
		return src.Run(ctx, pairs)
	})
	if deps.Archiver != nil && a.cfg.S3.SnapshotInterval.Duration > 0 {
		g.Go(func() error {
			return a.runSnapshots(ctx, deps.Archiver, lm)
		})
	}

	err = g.Wait()
	if deps.Announcer != nil {
		deps.Announcer.Flush()
	}
	return err
}

// openLedger loads the persisted ledger, pulling the latest archived
// snapshot when the local record is missing and restore is enabled.
func (a *App) openLedger(ctx context.Context, deps *Dependencies) (*ledger.Manager, error) {
	if deps.Archiver != nil && a.cfg.S3.RestoreOnMissing {
		if _, err := deps.LedgerStore.Load(ctx); errors.Is(err, domain.ErrNotFound) {
			led, rerr := deps.Archiver.RestoreLatest(ctx)
			switch {
			case rerr == nil:
				a.logger.InfoContext(ctx, "ledger restored from archive",
					slog.Float64("balance", led.BalanceUSD),
					slog.Int("trades", len(led.Trades)),
				)
				return ledger.Adopt(ctx, deps.LedgerStore, led, a.logger)
			case errors.Is(rerr, domain.ErrNotFound):
				a.logger.InfoContext(ctx, "no archived snapshot, starting fresh")
			default:
				return nil, fmt.Errorf("restore ledger: %w", rerr)
			}
		}
	}
	return ledger.Open(ctx, deps.LedgerStore, a.cfg.Engine.InitialBalanceUSD, a.logger)
}

// newKalshiClient builds the RSA-signing Kalshi client from the configured
// key file.
func (a *App) newKalshiClient(deps *Dependencies) (*kalshi.Client, error) {
	if a.cfg.Kalshi.APIKeyID == "" || a.cfg.Kalshi.PrivateKeyPath == "" {
		return nil, fmt.Errorf("kalshi credentials not configured")
	}

	keyPEM, err := os.ReadFile(a.cfg.Kalshi.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read kalshi key: %w", err)
	}
	auth, err := crypto.NewRSAAuth(a.cfg.Kalshi.APIKeyID, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("kalshi auth: %w", err)
	}

	c := kalshi.NewClient(a.cfg.Kalshi.BaseURL, auth)
	if deps.RateLimiter != nil {
		c.SetRateLimiter(deps.RateLimiter)
	}
	return c, nil
}

// newPolymarketClient builds the CLOB client from the configured wallet key
// and derives the L2 API credentials up front, so credential problems
// surface at startup rather than on the first order.
func (a *App) newPolymarketClient(ctx context.Context, deps *Dependencies) (*polymarket.Client, error) {
	keyHex, err := crypto.LoadWalletKey(crypto.WalletKeySource{
		RawHex:        a.cfg.Wallet.PrivateKey,
		EncryptedPath: a.cfg.Wallet.EncryptedKeyPath,
		Password:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex, a.cfg.Polymarket.ChainID)
	if err != nil {
		return nil, fmt.Errorf("wallet signer: %w", err)
	}

	c := polymarket.NewClient(a.cfg.Polymarket.ClobHost, a.cfg.Polymarket.GammaHost, signer)
	if deps.RateLimiter != nil {
		c.SetRateLimiter(deps.RateLimiter)
	}
	if err := c.EnsureCredentials(ctx); err != nil {
		return nil, fmt.Errorf("derive clob credentials: %w", err)
	}
	return c, nil
}

// newFeedSource selects the matched-pair source configured under [feed].
func (a *App) newFeedSource(deps *Dependencies) (feed.Source, error) {
	switch a.cfg.Feed.Source {
	case "redis":
		if deps.PairBus == nil {
			return nil, fmt.Errorf("feed source %q requires redis.enabled", a.cfg.Feed.Source)
		}
		return feed.NewRedisSource(deps.PairBus, a.logger), nil
	case "ws":
		return feed.NewWSSource(a.cfg.Feed.WSURL, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown feed source %q", a.cfg.Feed.Source)
	}
}

// venueCosts converts the configured per-venue cost parameters into the
// detector's model.
func (a *App) venueCosts() map[domain.Venue]engine.CostModel {
	costs := make(map[domain.Venue]engine.CostModel, len(a.cfg.Engine.Costs))
	for venue, c := range a.cfg.Engine.Costs {
		costs[domain.Venue(venue)] = engine.CostModel{
			FeeRate:  c.FeeRate,
			Slippage: c.Slippage,
		}
	}
	return costs
}

// runSnapshots copies the ledger off-site on a fixed interval: a timestamped
// snapshot plus the rolling latest copy, the current month's settled-trade
// archive, and a prune down to the configured retention.
func (a *App) runSnapshots(ctx context.Context, arch domain.LedgerArchiver, lm *ledger.Manager) error {
	interval := a.cfg.S3.SnapshotInterval.Duration
	a.logger.InfoContext(ctx, "snapshot loop started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.archiveOnce(ctx, arch, lm)
		}
	}
}

// archiveOnce takes one archival pass. Failures are logged, never fatal: the
// primary store stays authoritative, the archive is a copy.
func (a *App) archiveOnce(ctx context.Context, arch domain.LedgerArchiver, lm *ledger.Manager) {
	led := lm.Snapshot()
	now := time.Now().UTC()

	path, err := arch.ArchiveSnapshot(ctx, led, now)
	if err != nil {
		a.logger.WarnContext(ctx, "ledger snapshot failed", slog.String("error", err.Error()))
	} else {
		a.logger.DebugContext(ctx, "ledger snapshot archived", slog.String("path", path))
	}

	if n, err := arch.ArchiveSettledTrades(ctx, led.Trades, now); err != nil {
		a.logger.WarnContext(ctx, "trade archive failed", slog.String("error", err.Error()))
	} else if n > 0 {
		a.logger.DebugContext(ctx, "settled trades archived", slog.Int64("trades", n))
	}

	if keep := a.cfg.S3.SnapshotKeep; keep > 0 {
		if pruned, err := arch.PruneSnapshots(ctx, keep); err != nil {
			a.logger.WarnContext(ctx, "snapshot prune failed", slog.String("error", err.Error()))
		} else if pruned > 0 {
			a.logger.DebugContext(ctx, "old snapshots pruned", slog.Int64("deleted", pruned))
		}
	}
}

// loadForSummary reads the ledger for display only. When the primary store
// is empty it falls back to the latest archived snapshot; nothing is adopted
// or saved.
func (a *App) loadForSummary(ctx context.Context, deps *Dependencies) (*domain.Ledger, error) {
	led, err := deps.LedgerStore.Load(ctx)
	if err == nil {
		return led, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if deps.Archiver != nil {
		led, aerr := deps.Archiver.RestoreLatest(ctx)
		if aerr == nil {
			a.logger.InfoContext(ctx, "no local ledger, showing latest archived snapshot")
			return led, nil
		}
		if !errors.Is(aerr, domain.ErrNotFound) {
			return nil, aerr
		}
	}
	return nil, err
}

// recentErrors returns the newest n entries of the bounded error log.
func recentErrors(led *domain.Ledger, n int) []domain.ErrorEntry {
	if len(led.Errors) <= n {
		return led.Errors
	}
	return led.Errors[len(led.Errors)-n:]
}
