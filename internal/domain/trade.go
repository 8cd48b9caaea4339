package domain

import (
	"strings"
	"time"
)

// TradeStatus is the lifecycle state of a placed trade.
type TradeStatus string

const (
	// TradeStatusPending: both legs placed, none or some resolved.
	TradeStatusPending TradeStatus = "pending"
	// TradeStatusSettled: every leg resolved, final payout applied.
	TradeStatusSettled TradeStatus = "settled"
	// TradeStatusIncomplete: settlement timeout hit with partial resolution;
	// only resolved legs paid out.
	TradeStatusIncomplete TradeStatus = "incomplete"
)

// Terminal reports whether the status admits no further mutation.
func (s TradeStatus) Terminal() bool {
	return s == TradeStatusSettled || s == TradeStatusIncomplete
}

// Leg is one placed side of a trade: one outcome bought at one venue.
type Leg struct {
	Venue          Venue   `json:"venue"`
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	MarketID       string  `json:"market_id"`
	URL            string  `json:"url,omitempty"`
	RawPrice       float64 `json:"raw_price"`
	EffectivePrice float64 `json:"effective_price"`
	FeeRate        float64 `json:"fee_rate"`
	Slippage       float64 `json:"slippage"`
	OrderID        string  `json:"order_id"`
	OrderStatus    string  `json:"order_status"`
	Won            *bool   `json:"won,omitempty"` // nil until the leg resolves
}

// MatchesWinner reports whether a venue-announced winner identifier refers to
// this leg's outcome, matching either the short code or the display name.
func (l Leg) MatchesWinner(winner string) bool {
	if winner == "" {
		return false
	}
	return strings.EqualFold(winner, l.Code) || strings.EqualFold(winner, l.Name)
}

// Trade is the persistent aggregate created by a successful dual-leg
// placement. Created once by the coordinator, mutated only by the reconciler
// until terminal, never deleted.
type Trade struct {
	ID                string      `json:"id"` // AWAY_CODE@HOME_CODE
	Legs              [2]Leg      `json:"legs"`
	Quantity          float64     `json:"quantity"`
	CostUSD           float64     `json:"cost_usd"`
	ExpectedProfitUSD float64     `json:"expected_profit_usd"`
	ROIPct            float64     `json:"roi_pct"`
	Status            TradeStatus `json:"status"`
	PlacedAt          time.Time   `json:"placed_at"`
	SettledAt         *time.Time  `json:"settled_at,omitempty"`
	SettlementUSD     float64     `json:"settlement_usd"`
	RealizedProfitUSD float64     `json:"realized_profit_usd"`
}

// SiblingLeg returns the other leg of the trade.
func (t *Trade) SiblingLeg(i int) Leg {
	return t.Legs[1-i]
}
