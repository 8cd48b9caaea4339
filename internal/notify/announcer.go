package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
)

// announceTimeout bounds each detached delivery.
const announceTimeout = 15 * time.Second

// TradeAnnouncer formats trade lifecycle events into operator notifications.
// Delivery is detached from the caller's context: a trade path that is
// shutting down still reports, and a slow channel never stalls execution.
type TradeAnnouncer struct {
	notifier *Notifier
	wg       sync.WaitGroup
}

// NewTradeAnnouncer creates a TradeAnnouncer over the given Notifier.
func NewTradeAnnouncer(n *Notifier) *TradeAnnouncer {
	return &TradeAnnouncer{notifier: n}
}

// TradePlaced announces a freshly placed trade with both legs and the
// expected economics.
func (a *TradeAnnouncer) TradePlaced(_ context.Context, t *domain.Trade) {
	message := fmt.Sprintf(
		"%.0f contracts, cost $%.2f, expected profit $%.2f (%.2f%% ROI)\n%s\n%s",
		t.Quantity, t.CostUSD, t.ExpectedProfitUSD, t.ROIPct,
		legLine(t.Legs[0]), legLine(t.Legs[1]),
	)
	a.deliver(domain.TradeEventPlaced, "Trade placed: "+t.ID, message)
}

// TradeSettled announces the final economics of a settled trade.
func (a *TradeAnnouncer) TradeSettled(_ context.Context, t *domain.Trade) {
	message := fmt.Sprintf(
		"payout $%.2f, realized profit $%.2f",
		t.SettlementUSD, t.RealizedProfitUSD,
	)
	a.deliver(domain.TradeEventSettled, "Trade settled: "+t.ID, message)
}

// TradeIncomplete announces a trade whose settlement window expired with
// unresolved legs.
func (a *TradeAnnouncer) TradeIncomplete(_ context.Context, t *domain.Trade) {
	message := fmt.Sprintf(
		"settlement window expired with unresolved legs, payout so far $%.2f; manual review required",
		t.SettlementUSD,
	)
	a.deliver(domain.TradeEventIncomplete, "Trade incomplete: "+t.ID, message)
}

// LegOrphaned announces a failed compensation: an order that may be live
// without its hedge.
func (a *TradeAnnouncer) LegOrphaned(_ context.Context, pairID string, leg domain.Leg, reason string) {
	message := fmt.Sprintf(
		"order %s (%s) may be live without its hedge: %s",
		leg.OrderID, legLine(leg), reason,
	)
	a.deliver(domain.TradeEventOrphan, "Compensation failed: "+pairID, message)
}

// Flush waits for in-flight deliveries. Called on shutdown.
func (a *TradeAnnouncer) Flush() {
	a.wg.Wait()
}

func (a *TradeAnnouncer) deliver(event, title, message string) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
		defer cancel()
		// The notifier already logs per-sender failures.
		_ = a.notifier.Notify(ctx, event, title, message)
	}()
}

func legLine(leg domain.Leg) string {
	return fmt.Sprintf("%s %s at %.1f (effective %.1f) on %s",
		leg.Code, leg.Name, leg.RawPrice, leg.EffectivePrice, leg.Venue)
}
