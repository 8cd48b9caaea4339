package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
)

func testLimits() Limits {
	return Limits{
		TargetUnits:             100,
		MinROIPct:               1.0,
		DailyLossLimitUSD:       500,
		MaxPositionUSD:          1000,
		MaxDailyTrades:          10,
		LiquidityThresholdUnits: 200,
		LiquidityDiscount:       0.01,
	}
}

func perfectOpp() domain.Opportunity {
	return domain.Opportunity{
		PairID:             "DET@NYK",
		TotalEffectiveCost: 97.5,
		Edge:               2.5,
		Quality:            domain.QualityPerfect,
	}
}

func TestSizeApprovedMoneyMath(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	s := NewSizer(testLimits(), testLogger())
	led := domain.NewLedger(10000, now)

	got, err := s.Size(perfectOpp(), led, now)
	if err != nil {
		t.Fatalf("Size unexpected error: %v", err)
	}
	if got.Quantity != 100 {
		t.Errorf("quantity = %v, want 100", got.Quantity)
	}
	if got.CostUSD != 97.50 {
		t.Errorf("cost = %v, want 97.50", got.CostUSD)
	}
	if got.ProfitUSD != 2.50 {
		t.Errorf("profit = %v, want 2.50", got.ProfitUSD)
	}
	// 2.50 / 97.50 * 100 rounds to 2.56.
	if got.ROIPct != 2.56 {
		t.Errorf("roi = %v, want 2.56", got.ROIPct)
	}
}

func TestSizeQualityScaling(t *testing.T) {
	tests := []struct {
		name    string
		quality domain.Quality
		want    float64
	}{
		{"perfect takes full target", domain.QualityPerfect, 100},
		{"near takes half", domain.QualityNear, 50},
		{"partial takes thirty percent", domain.QualityPartial, 30},
	}

	now := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	s := NewSizer(testLimits(), testLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := perfectOpp()
			opp.Quality = tt.quality
			led := domain.NewLedger(10000, now)

			got, err := s.Size(opp, led, now)
			if err != nil {
				t.Fatalf("Size unexpected error: %v", err)
			}
			if math.Abs(got.Quantity-tt.want) > priceEps {
				t.Errorf("quantity = %v, want %v", got.Quantity, tt.want)
			}
		})
	}
}

func TestSizeLiquidityDiscount(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	limits := testLimits()
	limits.TargetUnits = 300
	s := NewSizer(limits, testLogger())
	led := domain.NewLedger(10000, now)

	got, err := s.Size(perfectOpp(), led, now)
	if err != nil {
		t.Fatalf("Size unexpected error: %v", err)
	}
	// 300 units clears the 200-unit threshold, so 1% comes off.
	if math.Abs(got.Quantity-297) > priceEps {
		t.Errorf("quantity = %v, want 297", got.Quantity)
	}

	// Near quality halves to 150 units first, which ducks the threshold.
	opp := perfectOpp()
	opp.Quality = domain.QualityNear
	got, err = s.Size(opp, led, now)
	if err != nil {
		t.Fatalf("Size unexpected error: %v", err)
	}
	if math.Abs(got.Quantity-150) > priceEps {
		t.Errorf("near quantity = %v, want 150", got.Quantity)
	}
}

func TestSizeRejections(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	today := now.UTC().Format("2006-01-02")

	tests := []struct {
		name    string
		opp     func() domain.Opportunity
		limits  func() Limits
		ledger  func() *domain.Ledger
		wantErr error
	}{
		{
			name: "roi at or below minimum",
			opp: func() domain.Opportunity {
				o := perfectOpp()
				o.TotalEffectiveCost = 99.5
				o.Edge = 0.5
				return o
			},
			limits:  testLimits,
			ledger:  func() *domain.Ledger { return domain.NewLedger(10000, now) },
			wantErr: domain.ErrBelowMinROI,
		},
		{
			name: "roi exactly at minimum still rejects",
			opp:  perfectOpp,
			limits: func() Limits {
				l := testLimits()
				l.MinROIPct = 2.56
				return l
			},
			ledger:  func() *domain.Ledger { return domain.NewLedger(10000, now) },
			wantErr: domain.ErrBelowMinROI,
		},
		{
			name:    "cost above balance",
			opp:     perfectOpp,
			limits:  testLimits,
			ledger:  func() *domain.Ledger { return domain.NewLedger(50, now) },
			wantErr: domain.ErrInsufficientBalance,
		},
		{
			name: "cost above max position",
			opp:  perfectOpp,
			limits: func() Limits {
				l := testLimits()
				l.MaxPositionUSD = 90
				return l
			},
			ledger:  func() *domain.Ledger { return domain.NewLedger(10000, now) },
			wantErr: domain.ErrPositionTooLarge,
		},
		{
			name:   "daily trade cap reached",
			opp:    perfectOpp,
			limits: testLimits,
			ledger: func() *domain.Ledger {
				led := domain.NewLedger(10000, now)
				led.Daily = domain.DailyCounters{TradeCount: 10, ResetDate: today}
				return led
			},
			wantErr: domain.ErrDailyTradeLimit,
		},
		{
			name:   "daily loss limit reached",
			opp:    perfectOpp,
			limits: testLimits,
			ledger: func() *domain.Ledger {
				led := domain.NewLedger(10000, now)
				led.Daily = domain.DailyCounters{LossUSD: 500, ResetDate: today}
				return led
			},
			wantErr: domain.ErrDailyLossLimit,
		},
		{
			name:   "pair already has a live trade",
			opp:    perfectOpp,
			limits: testLimits,
			ledger: func() *domain.Ledger {
				led := domain.NewLedger(10000, now)
				led.Trades = append(led.Trades, &domain.Trade{
					ID:       "DET@NYK",
					Status:   domain.TradeStatusPending,
					PlacedAt: now.Add(-time.Hour),
				})
				return led
			},
			wantErr: domain.ErrPairActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSizer(tt.limits(), testLogger())
			_, err := s.Size(tt.opp(), tt.ledger(), now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Size error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// The checks run in a fixed order; a thin edge is reported before a thin
// balance even when both would reject.
func TestSizeRejectionOrder(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	s := NewSizer(testLimits(), testLogger())
	led := domain.NewLedger(10, now)

	opp := perfectOpp()
	opp.TotalEffectiveCost = 99.5
	opp.Edge = 0.5

	_, err := s.Size(opp, led, now)
	if !errors.Is(err, domain.ErrBelowMinROI) {
		t.Errorf("Size error = %v, want ErrBelowMinROI first", err)
	}
}

// A natural near-band pair carries a negative edge, so the ROI gate filters
// it even though the detector let it through for reporting.
func TestSizeNearBandNegativeEdge(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	s := NewSizer(testLimits(), testLogger())
	led := domain.NewLedger(10000, now)

	opp := domain.Opportunity{
		PairID:             "DET@NYK",
		TotalEffectiveCost: 100.6,
		Edge:               -0.6,
		Quality:            domain.QualityNear,
	}

	_, err := s.Size(opp, led, now)
	if !errors.Is(err, domain.ErrBelowMinROI) {
		t.Errorf("Size error = %v, want ErrBelowMinROI", err)
	}
}

func TestSizeStaleCountersResetLazily(t *testing.T) {
	placed := time.Date(2026, 3, 13, 23, 50, 0, 0, time.UTC)
	now := time.Date(2026, 3, 14, 0, 5, 0, 0, time.UTC)

	s := NewSizer(testLimits(), testLogger())
	led := domain.NewLedger(10000, placed)
	led.Daily = domain.DailyCounters{
		TradeCount: 10,
		LossUSD:    600,
		ResetDate:  placed.UTC().Format("2006-01-02"),
	}

	got, err := s.Size(perfectOpp(), led, now)
	if err != nil {
		t.Fatalf("Size on a new UTC day unexpected error: %v", err)
	}
	if got.Quantity != 100 {
		t.Errorf("quantity = %v, want 100", got.Quantity)
	}
	// Sizing is read-only: yesterday's counters stay until a write path
	// rolls the day.
	if led.Daily.TradeCount != 10 || led.Daily.LossUSD != 600 {
		t.Errorf("ledger counters mutated: %+v", led.Daily)
	}
}
