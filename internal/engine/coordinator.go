package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hedgeworks/crossarb/internal/domain"
	"github.com/hedgeworks/crossarb/internal/ledger"
)

// defaultCancelTimeout bounds the single compensating cancel after a failed
// second leg. The parent context may already be dead at that point, so the
// cancel runs on its own clock.
const defaultCancelTimeout = 10 * time.Second

// Announcer pushes trade lifecycle events to operator channels. All calls are
// best-effort; implementations must not block the trading path.
type Announcer interface {
	TradePlaced(ctx context.Context, t *domain.Trade)
	TradeSettled(ctx context.Context, t *domain.Trade)
	TradeIncomplete(ctx context.Context, t *domain.Trade)
	LegOrphaned(ctx context.Context, pairID string, leg domain.Leg, reason string)
}

// Coordinator places the two legs of an approved opportunity sequentially and
// commits the result to the ledger as one atomic mutation. It owns the
// compensation rule: a failed second leg triggers exactly one cancel attempt
// on the first.
type Coordinator struct {
	clients       map[domain.Venue]domain.VenueClient
	ledger        *ledger.Manager
	events        domain.TradeEventStore
	announcer     Announcer
	logger        *slog.Logger
	cancelTimeout time.Duration
}

// NewCoordinator creates a Coordinator over the given venue clients and
// ledger manager.
func NewCoordinator(clients map[domain.Venue]domain.VenueClient, lm *ledger.Manager, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		clients:       clients,
		ledger:        lm,
		logger:        logger.With(slog.String("component", "coordinator")),
		cancelTimeout: defaultCancelTimeout,
	}
}

// SetEventStore enables trade event recording. Recording failures are logged
// and never fail a placement.
func (c *Coordinator) SetEventStore(events domain.TradeEventStore) {
	c.events = events
}

// SetAnnouncer enables operator notifications.
func (c *Coordinator) SetAnnouncer(a Announcer) {
	c.announcer = a
}

// Execute places both legs and commits the trade. On success the returned
// trade is pending in the ledger with the cost debited. A nil trade means
// nothing was committed. A non-nil trade alongside an error wrapping
// domain.ErrPersistFailed means capital IS committed and only persistence is
// degraded; callers must not treat that as a failed placement.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity, sz Sizing) (*domain.Trade, error) {
	log := c.logger.With(
		slog.String("pair", opp.PairID),
		slog.Float64("quantity", sz.Quantity),
		slog.Float64("cost_usd", sz.CostUSD),
	)

	// 1. Validation. Nothing leaves the process until both legs are sane.
	if err := c.validate(opp, sz); err != nil {
		return nil, err
	}

	// 2. First leg.
	first := opp.Legs[0]
	firstRes, err := c.placeLeg(ctx, first, sz.Quantity)
	if err != nil {
		log.ErrorContext(ctx, "first leg failed, aborting pair",
			slog.String("venue", string(first.Venue)),
			slog.String("error", err.Error()),
		)
		c.recordIncident(ctx, opp.PairID, fmt.Sprintf("first leg %s on %s: %v", first.Code, first.Venue, err))
		return nil, fmt.Errorf("coordinator: pair %s first leg on %s: %v: %w",
			opp.PairID, first.Venue, err, domain.ErrLegPlacement)
	}

	// 3. Second leg. A failure here leaves naked exposure on the first, so
	// it gets one compensating cancel before the pair is abandoned.
	second := opp.Legs[1]
	secondRes, err := c.placeLeg(ctx, second, sz.Quantity)
	if err != nil {
		log.ErrorContext(ctx, "second leg failed, compensating first",
			slog.String("venue", string(second.Venue)),
			slog.String("first_order_id", firstRes.OrderID),
			slog.String("error", err.Error()),
		)
		c.compensate(ctx, opp.PairID, first, firstRes, log)
		c.recordIncident(ctx, opp.PairID, fmt.Sprintf("second leg %s on %s: %v", second.Code, second.Venue, err))
		return nil, fmt.Errorf("coordinator: pair %s second leg on %s: %v: %w",
			opp.PairID, second.Venue, err, domain.ErrLegPlacement)
	}

	// 4. Commit. Trade append, balance debit, and daily counters move in one
	// ledger mutation so a crash can never observe half a placement.
	now := time.Now().UTC()
	trade := buildTrade(opp, sz, firstRes, secondRes, now)
	err = c.ledger.Update(ctx, func(led *domain.Ledger) error {
		led.Trades = append(led.Trades, trade)
		led.BalanceUSD -= sz.CostUSD
		led.RollDay(now)
		led.Daily.TradeCount++
		return nil
	})
	if err != nil {
		// Both venues hold our orders; the trade exists whether or not the
		// store cooperates. Surface the degradation without unwinding.
		log.ErrorContext(ctx, "trade committed but persistence degraded",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()),
		)
		return trade, fmt.Errorf("coordinator: trade %s committed: %w", trade.ID, err)
	}

	c.recordEvent(ctx, trade.ID, domain.TradeEventPlaced, map[string]any{
		"quantity":   sz.Quantity,
		"cost_usd":   sz.CostUSD,
		"roi_pct":    sz.ROIPct,
		"away_order": firstRes.OrderID,
		"home_order": secondRes.OrderID,
	})
	if c.announcer != nil {
		c.announcer.TradePlaced(ctx, trade)
	}

	log.InfoContext(ctx, "trade placed",
		slog.String("trade_id", trade.ID),
		slog.String("away_order", firstRes.OrderID),
		slog.String("home_order", secondRes.OrderID),
		slog.Float64("expected_profit_usd", sz.ProfitUSD),
	)
	return trade, nil
}

// validate rejects bad quantities and out-of-range prices before any venue
// call. Both venues quote native prices in (0, 1).
func (c *Coordinator) validate(opp domain.Opportunity, sz Sizing) error {
	if sz.Quantity <= 0 {
		return fmt.Errorf("coordinator: pair %s quantity %v: %w", opp.PairID, sz.Quantity, domain.ErrInvalidQuantity)
	}
	for _, leg := range opp.Legs {
		native := leg.RawPrice / 100
		if native <= 0 || native >= 1 {
			return fmt.Errorf("coordinator: pair %s leg %s native price %v: %w",
				opp.PairID, leg.Code, native, domain.ErrPriceOutOfRange)
		}
		if _, ok := c.clients[leg.Venue]; !ok {
			return fmt.Errorf("coordinator: pair %s: no client for venue %s", opp.PairID, leg.Venue)
		}
	}
	return nil
}

// placeLeg submits one buy order. A venue-side rejection surfaces as an error
// so both failure shapes follow the same path.
func (c *Coordinator) placeLeg(ctx context.Context, plan domain.LegPlan, qty float64) (domain.OrderResult, error) {
	res, err := c.clients[plan.Venue].PlaceOrder(ctx, domain.OrderRequest{
		MarketID:    plan.MarketID,
		Outcome:     plan.Code,
		OutcomeName: plan.Name,
		Side:        domain.OrderSideBuy,
		Quantity:    qty,
		Price:       plan.RawPrice / 100,
	})
	if err != nil {
		return domain.OrderResult{}, err
	}
	if !res.Success {
		return res, fmt.Errorf("venue rejected order: %s", res.Message)
	}
	return res, nil
}

// compensate makes the single cancel attempt on a placed first leg. No
// retries: a cancel raced by a fill is worse than a known orphan, which the
// operator can unwind by hand.
func (c *Coordinator) compensate(ctx context.Context, pairID string, plan domain.LegPlan, placed domain.OrderResult, log *slog.Logger) {
	// The pair's context may already be cancelled; the cancel still has to
	// go out.
	cctx, cancel := context.WithTimeout(context.Background(), c.cancelTimeout)
	defer cancel()

	res, err := c.clients[plan.Venue].CancelOrder(cctx, placed.OrderID)
	if err == nil && res.Success {
		log.InfoContext(ctx, "compensating cancel succeeded",
			slog.String("order_id", placed.OrderID),
			slog.String("venue", string(plan.Venue)),
		)
		return
	}

	reason := "venue refused cancel"
	if err != nil {
		reason = err.Error()
	} else if res.Message != "" {
		reason = res.Message
	}
	log.ErrorContext(ctx, "compensating cancel failed, leg orphaned",
		slog.String("order_id", placed.OrderID),
		slog.String("venue", string(plan.Venue)),
		slog.String("reason", reason),
	)
	c.recordIncident(ctx, pairID, fmt.Sprintf("orphaned leg %s on %s order %s: %s",
		plan.Code, plan.Venue, placed.OrderID, reason))
	c.recordEvent(ctx, pairID, domain.TradeEventOrphan, map[string]any{
		"venue":    string(plan.Venue),
		"order_id": placed.OrderID,
		"reason":   reason,
	})
	if c.announcer != nil {
		leg := legFromPlan(plan, placed)
		c.announcer.LegOrphaned(ctx, pairID, leg, reason)
	}
}

// recordIncident appends to the ledger's bounded error log. Pre-trade
// incidents key on the pair id since no trade exists yet.
func (c *Coordinator) recordIncident(ctx context.Context, pairID, message string) {
	err := c.ledger.Update(ctx, func(led *domain.Ledger) error {
		led.RecordError(pairID, message, time.Now())
		return nil
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "incident record not persisted",
			slog.String("pair", pairID),
			slog.String("error", err.Error()),
		)
	}
}

// recordEvent writes an audit event when a store is configured.
func (c *Coordinator) recordEvent(ctx context.Context, tradeID, event string, detail map[string]any) {
	if c.events == nil {
		return
	}
	ev := domain.TradeEvent{
		ID:        uuid.New().String(),
		TradeID:   tradeID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.events.Record(ctx, ev); err != nil {
		c.logger.WarnContext(ctx, "trade event record failed",
			slog.String("trade_id", tradeID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func buildTrade(opp domain.Opportunity, sz Sizing, first, second domain.OrderResult, now time.Time) *domain.Trade {
	return &domain.Trade{
		ID:                opp.PairID,
		Legs:              [2]domain.Leg{legFromPlan(opp.Legs[0], first), legFromPlan(opp.Legs[1], second)},
		Quantity:          sz.Quantity,
		CostUSD:           sz.CostUSD,
		ExpectedProfitUSD: sz.ProfitUSD,
		ROIPct:            sz.ROIPct,
		Status:            domain.TradeStatusPending,
		PlacedAt:          now,
	}
}

func legFromPlan(plan domain.LegPlan, res domain.OrderResult) domain.Leg {
	return domain.Leg{
		Venue:          plan.Venue,
		Code:           plan.Code,
		Name:           plan.Name,
		MarketID:       plan.MarketID,
		URL:            plan.URL,
		RawPrice:       plan.RawPrice,
		EffectivePrice: plan.EffectivePrice,
		FeeRate:        plan.FeeRate,
		Slippage:       plan.Slippage,
		OrderID:        res.OrderID,
		OrderStatus:    res.Status,
	}
}
