package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
)

// Quality multipliers shrink positions when the edge is less clean.
const (
	nearSizeFactor    = 0.5
	partialSizeFactor = 0.3
)

// Limits are the configured risk parameters the sizer enforces. Every check
// runs against the exact post-sizing cost, never a pre-sizing estimate.
type Limits struct {
	TargetUnits             float64
	MinROIPct               float64
	DailyLossLimitUSD       float64
	MaxPositionUSD          float64
	MaxDailyTrades          int
	LiquidityThresholdUnits float64
	LiquidityDiscount       float64
}

// Sizing is an approved position: the quantity to place on each leg and the
// money math the approval was based on.
type Sizing struct {
	Quantity  float64
	CostUSD   float64
	ProfitUSD float64
	ROIPct    float64
}

// Sizer converts an opportunity plus the current ledger state into an
// approved Sizing or exactly one typed rejection. It performs no side
// effects; daily counters are read as-of now without mutating the ledger.
type Sizer struct {
	limits Limits
	logger *slog.Logger
}

// NewSizer creates a Sizer with the given limits.
func NewSizer(limits Limits, logger *slog.Logger) *Sizer {
	return &Sizer{
		limits: limits,
		logger: logger.With(slog.String("component", "sizer")),
	}
}

// Size computes quantity and money math for the opportunity, then applies the
// risk checks in order. Rejections wrap one of the domain risk sentinels.
func (s *Sizer) Size(opp domain.Opportunity, led *domain.Ledger, now time.Time) (Sizing, error) {
	qty := s.limits.TargetUnits
	switch opp.Quality {
	case domain.QualityNear:
		qty *= nearSizeFactor
	case domain.QualityPartial:
		qty *= partialSizeFactor
	}
	if s.limits.LiquidityThresholdUnits > 0 && qty > s.limits.LiquidityThresholdUnits {
		qty *= 1 - s.limits.LiquidityDiscount
	}

	cost := Round2(opp.TotalEffectiveCost / 100 * qty)
	profit := Round2(opp.Edge / 100 * qty)
	var roi float64
	if cost > 0 {
		roi = Round2(profit / cost * 100)
	}

	if roi <= s.limits.MinROIPct {
		return Sizing{}, fmt.Errorf("sizer: pair %s roi %.2f%% <= min %.2f%%: %w",
			opp.PairID, roi, s.limits.MinROIPct, domain.ErrBelowMinROI)
	}
	if cost > led.BalanceUSD {
		return Sizing{}, fmt.Errorf("sizer: pair %s cost %.2f > balance %.2f: %w",
			opp.PairID, cost, led.BalanceUSD, domain.ErrInsufficientBalance)
	}
	if cost > s.limits.MaxPositionUSD {
		return Sizing{}, fmt.Errorf("sizer: pair %s cost %.2f > max position %.2f: %w",
			opp.PairID, cost, s.limits.MaxPositionUSD, domain.ErrPositionTooLarge)
	}

	daily := led.DailyFor(now)
	if daily.TradeCount >= s.limits.MaxDailyTrades {
		return Sizing{}, fmt.Errorf("sizer: pair %s daily trades %d >= max %d: %w",
			opp.PairID, daily.TradeCount, s.limits.MaxDailyTrades, domain.ErrDailyTradeLimit)
	}
	if daily.LossUSD >= s.limits.DailyLossLimitUSD {
		return Sizing{}, fmt.Errorf("sizer: pair %s daily loss %.2f >= limit %.2f: %w",
			opp.PairID, daily.LossUSD, s.limits.DailyLossLimitUSD, domain.ErrDailyLossLimit)
	}
	if open := led.OpenTrade(opp.PairID); open != nil {
		return Sizing{}, fmt.Errorf("sizer: pair %s has %s trade placed %s: %w",
			opp.PairID, open.Status, open.PlacedAt.Format(time.RFC3339), domain.ErrPairActive)
	}

	return Sizing{Quantity: qty, CostUSD: cost, ProfitUSD: profit, ROIPct: roi}, nil
}

// Round2 rounds a monetary or percentage value to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
