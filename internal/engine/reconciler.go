package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hedgeworks/crossarb/internal/domain"
	"github.com/hedgeworks/crossarb/internal/ledger"
)

const (
	defaultSettlementTimeout = 24 * time.Hour
	defaultReconcileInterval = 5 * time.Minute
)

// errAlreadyTerminal short-circuits a finalize whose trade settled between
// the snapshot and the write. The skipped mutation is the idempotence
// guarantee.
var errAlreadyTerminal = errors.New("reconciler: trade already terminal")

// Reconciler sweeps pending trades, asks each leg's venue whether its market
// resolved, and applies payouts. A trade settles only when both legs resolve
// within the same sweep; a trade stuck past the settlement timeout with at
// least one resolved leg is closed as incomplete with partial payout.
type Reconciler struct {
	clients   map[domain.Venue]domain.VenueClient
	ledger    *ledger.Manager
	cache     domain.SettlementCache
	events    domain.TradeEventStore
	announcer Announcer
	logger    *slog.Logger
	timeout   time.Duration
	interval  time.Duration
}

// NewReconciler creates a Reconciler. timeout <= 0 selects the 24h default;
// interval <= 0 selects the 5m default.
func NewReconciler(clients map[domain.Venue]domain.VenueClient, lm *ledger.Manager, timeout, interval time.Duration, logger *slog.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = defaultSettlementTimeout
	}
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &Reconciler{
		clients:  clients,
		ledger:   lm,
		logger:   logger.With(slog.String("component", "reconciler")),
		timeout:  timeout,
		interval: interval,
	}
}

// SetCache enables settlement status memoization. Only resolved statuses are
// written through; an unresolved answer must be re-asked next sweep.
func (r *Reconciler) SetCache(cache domain.SettlementCache) {
	r.cache = cache
}

// SetEventStore enables trade event recording.
func (r *Reconciler) SetEventStore(events domain.TradeEventStore) {
	r.events = events
}

// SetAnnouncer enables operator notifications.
func (r *Reconciler) SetAnnouncer(a Announcer) {
	r.announcer = a
}

// Run sweeps on a fixed interval until the context ends. The first sweep
// happens immediately so restarts pick up overdue settlements without delay.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "reconciler started",
		slog.Duration("interval", r.interval),
		slog.Duration("settlement_timeout", r.timeout),
	)
	defer r.logger.Info("reconciler stopped")

	if err := r.RunOnce(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// RunOnce reconciles every pending trade one time. Venue and persistence
// errors affect only the trade at hand; the sweep itself fails only on
// context cancellation.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	var pending []domain.Trade
	r.ledger.View(func(led *domain.Ledger) {
		for _, t := range led.PendingTrades() {
			pending = append(pending, *t)
		}
	})

	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.reconcileTrade(ctx, t)
	}
	return nil
}

// reconcileTrade queries both legs (concurrently; reads never touch the
// ledger) and applies the terminal transition when one is due.
func (r *Reconciler) reconcileTrade(ctx context.Context, t domain.Trade) {
	log := r.logger.With(slog.String("trade_id", t.ID))

	var raw [2]domain.SettlementStatus
	var fetched [2]bool
	g, gctx := errgroup.WithContext(ctx)
	for i := range t.Legs {
		g.Go(func() error {
			st, err := r.fetchSettlement(gctx, t.Legs[i])
			if err != nil {
				log.WarnContext(gctx, "settlement query failed",
					slog.String("venue", string(t.Legs[i].Venue)),
					slog.String("market_id", t.Legs[i].MarketID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			raw[i] = st
			fetched[i] = true
			return nil
		})
	}
	_ = g.Wait()

	// Winner matching. A resolved market whose announced winner matches
	// neither leg is settlement ambiguity: the leg stays unresolved rather
	// than guessing a payout.
	var resolved, won [2]bool
	for i := range t.Legs {
		if !fetched[i] || !raw[i].Resolved {
			continue
		}
		switch {
		case t.Legs[i].MatchesWinner(raw[i].Winner):
			resolved[i], won[i] = true, true
		case t.SiblingLeg(i).MatchesWinner(raw[i].Winner):
			resolved[i], won[i] = true, false
		default:
			log.WarnContext(ctx, "announced winner matches neither leg, leaving unresolved",
				slog.String("venue", string(t.Legs[i].Venue)),
				slog.String("market_id", t.Legs[i].MarketID),
				slog.String("winner", raw[i].Winner),
			)
		}
	}

	now := time.Now().UTC()
	switch {
	case resolved[0] && resolved[1]:
		r.finalize(ctx, t, domain.TradeStatusSettled, resolved, won, now, log)
	case (resolved[0] || resolved[1]) && now.Sub(t.PlacedAt) >= r.timeout:
		log.WarnContext(ctx, "settlement timeout elapsed with partial resolution",
			slog.Time("placed_at", t.PlacedAt),
		)
		r.finalize(ctx, t, domain.TradeStatusIncomplete, resolved, won, now, log)
	}
}

// fetchSettlement answers one leg's settlement question, cache first. Only
// resolved answers are cached: resolution is immutable, pending is not.
func (r *Reconciler) fetchSettlement(ctx context.Context, leg domain.Leg) (domain.SettlementStatus, error) {
	if r.cache != nil {
		if st, ok, err := r.cache.Get(ctx, leg.Venue, leg.MarketID); err == nil && ok {
			return st, nil
		}
	}

	client, ok := r.clients[leg.Venue]
	if !ok {
		return domain.SettlementStatus{}, fmt.Errorf("reconciler: no client for venue %s", leg.Venue)
	}
	st, err := client.GetSettlementStatus(ctx, leg.MarketID)
	if err != nil {
		return domain.SettlementStatus{}, err
	}

	if r.cache != nil && st.Resolved {
		if err := r.cache.Set(ctx, leg.Venue, leg.MarketID, st); err != nil {
			r.logger.DebugContext(ctx, "settlement cache write failed",
				slog.String("market_id", leg.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return st, nil
}

// finalize applies one terminal transition atomically: leg outcomes, status,
// payout credit, and (for realized losses) the daily-loss counter. The trade
// is re-fetched under the lock and skipped if already terminal.
func (r *Reconciler) finalize(ctx context.Context, snapshot domain.Trade, status domain.TradeStatus, resolved, won [2]bool, now time.Time, log *slog.Logger) {
	var settled domain.Trade
	err := r.ledger.Update(ctx, func(led *domain.Ledger) error {
		t := findPending(led, snapshot.ID, snapshot.PlacedAt)
		if t == nil {
			return errAlreadyTerminal
		}

		var payout float64
		for i := range t.Legs {
			if !resolved[i] {
				continue
			}
			w := won[i]
			t.Legs[i].Won = &w
			if w {
				payout += t.Quantity
			}
		}

		t.Status = status
		t.SettledAt = &now
		t.SettlementUSD = payout
		t.RealizedProfitUSD = Round2(payout - t.CostUSD)
		led.BalanceUSD += payout
		if t.RealizedProfitUSD < 0 {
			led.RollDay(now)
			led.Daily.LossUSD += -t.RealizedProfitUSD
		}

		settled = *t
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyTerminal):
		log.InfoContext(ctx, "trade settled by an earlier pass, skipping")
		return
	case err != nil && !errors.Is(err, domain.ErrPersistFailed):
		log.ErrorContext(ctx, "settlement not applied", slog.String("error", err.Error()))
		return
	case err != nil:
		// Payout applied in memory; the manager keeps retrying persistence
		// on subsequent mutations.
		log.ErrorContext(ctx, "settlement applied, persistence degraded", slog.String("error", err.Error()))
	}

	event := domain.TradeEventSettled
	if status == domain.TradeStatusIncomplete {
		event = domain.TradeEventIncomplete
	}
	r.recordEvent(ctx, settled.ID, event, map[string]any{
		"settlement_usd": settled.SettlementUSD,
		"realized_usd":   settled.RealizedProfitUSD,
	})
	if r.announcer != nil {
		if status == domain.TradeStatusSettled {
			r.announcer.TradeSettled(ctx, &settled)
		} else {
			r.announcer.TradeIncomplete(ctx, &settled)
		}
	}

	log.InfoContext(ctx, "trade finalized",
		slog.String("status", string(status)),
		slog.Float64("settlement_usd", settled.SettlementUSD),
		slog.Float64("realized_usd", settled.RealizedProfitUSD),
	)
}

// recordEvent writes an audit event when a store is configured.
func (r *Reconciler) recordEvent(ctx context.Context, tradeID, event string, detail map[string]any) {
	if r.events == nil {
		return
	}
	ev := domain.TradeEvent{
		ID:        uuid.New().String(),
		TradeID:   tradeID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.events.Record(ctx, ev); err != nil {
		r.logger.WarnContext(ctx, "trade event record failed",
			slog.String("trade_id", tradeID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// findPending locates the exact pending trade from a sweep snapshot. Trade
// ids repeat across a pair's lifetime, so the placement time disambiguates.
func findPending(led *domain.Ledger, id string, placedAt time.Time) *domain.Trade {
	for _, t := range led.Trades {
		if t.ID == id && t.PlacedAt.Equal(placedAt) && t.Status == domain.TradeStatusPending {
			return t
		}
	}
	return nil
}
