package engine

import (
	"context"
	"testing"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
)

// zeroCosts make effective prices equal raw prices, which keeps the money
// math on round numbers.
func zeroCosts() map[domain.Venue]CostModel {
	return map[domain.Venue]CostModel{
		domain.VenuePolymarket: {},
		domain.VenueKalshi:     {},
	}
}

func runEngine(t *testing.T, eng *Engine, pairs chan domain.OutcomePair, feed ...domain.OutcomePair) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()
	for _, p := range feed {
		pairs <- p
	}
	close(pairs)
	if err := <-done; err != nil {
		t.Fatalf("engine run: %v", err)
	}
}

// The full lifecycle on the canonical numbers: 10000 balance, 100 units at a
// 97.5 combined cost, placement debits to 9902.50, the away leg wins, payout
// 100 credits back to 10002.50 with 2.50 realized.
func TestEngineLifecycle(t *testing.T) {
	clients, poly, kalshi := testVenues()
	lm := testManager(t, &memStore{})

	pairs := make(chan domain.OutcomePair, 4)
	eng := NewEngine(
		pairs,
		NewDetector(zeroCosts(), testLogger()),
		NewSizer(testLimits(), testLogger()),
		NewCoordinator(clients, lm, testLogger()),
		lm,
		time.Minute,
		testLogger(),
	)

	// Away cheapest on Polymarket at 45, home cheapest on Kalshi at 52.5;
	// the same pair is fed twice to prove a second attempt cannot double
	// the position.
	pair := quotedPair(45, 55, 56, 52.5)
	runEngine(t, eng, pairs, pair, pair)

	if poly.placeCalls != 1 || kalshi.placeCalls != 1 {
		t.Fatalf("place calls = %d/%d, want exactly 1/1", poly.placeCalls, kalshi.placeCalls)
	}
	lm.View(func(led *domain.Ledger) {
		if led.BalanceUSD != 9902.50 {
			t.Errorf("balance after placement = %v, want 9902.50", led.BalanceUSD)
		}
		if len(led.Trades) != 1 {
			t.Fatalf("trades = %d, want 1", len(led.Trades))
		}
		tr := led.Trades[0]
		if tr.CostUSD != 97.50 || tr.ExpectedProfitUSD != 2.50 || tr.ROIPct != 2.56 {
			t.Errorf("money math = cost %v profit %v roi %v, want 97.50/2.50/2.56",
				tr.CostUSD, tr.ExpectedProfitUSD, tr.ROIPct)
		}
		if tr.Legs[0].Venue != domain.VenuePolymarket || tr.Legs[1].Venue != domain.VenueKalshi {
			t.Errorf("leg venues = %s/%s, want polymarket/kalshi", tr.Legs[0].Venue, tr.Legs[1].Venue)
		}
	})

	// The game resolves for the away side on both venues.
	poly.settlements["poly-det"] = domain.SettlementStatus{Resolved: true, Winner: "DET"}
	kalshi.settlements["kx-nyk"] = domain.SettlementStatus{Resolved: true, Winner: "DET"}

	r := NewReconciler(clients, lm, 24*time.Hour, time.Minute, testLogger())
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce unexpected error: %v", err)
	}

	lm.View(func(led *domain.Ledger) {
		if led.BalanceUSD != 10002.50 {
			t.Errorf("final balance = %v, want 10002.50", led.BalanceUSD)
		}
		tr := led.Trades[0]
		if tr.Status != domain.TradeStatusSettled || tr.RealizedProfitUSD != 2.50 {
			t.Errorf("final trade = %s realized %v, want settled/2.50", tr.Status, tr.RealizedProfitUSD)
		}
	})
}

// A failed execution still burns the pair's cooldown window: retrying the
// same stale quotes immediately would hit the same failure.
func TestEngineCooldownAfterFailedExecution(t *testing.T) {
	clients, poly, kalshi := testVenues()
	poly.placeErr = context.DeadlineExceeded
	lm := testManager(t, &memStore{})

	pairs := make(chan domain.OutcomePair, 4)
	eng := NewEngine(
		pairs,
		NewDetector(zeroCosts(), testLogger()),
		NewSizer(testLimits(), testLogger()),
		NewCoordinator(clients, lm, testLogger()),
		lm,
		time.Minute,
		testLogger(),
	)

	pair := quotedPair(45, 55, 56, 52.5)
	runEngine(t, eng, pairs, pair, pair)

	if poly.placeCalls != 1 {
		t.Errorf("place calls = %d, want 1; cooldown must block the retry", poly.placeCalls)
	}
	if kalshi.placeCalls != 0 {
		t.Errorf("second leg calls = %d, want 0 after first leg failure", kalshi.placeCalls)
	}
	lm.View(func(led *domain.Ledger) {
		if led.BalanceUSD != 10000 {
			t.Errorf("balance = %v, want 10000 untouched", led.BalanceUSD)
		}
	})
}

// Pure detector rejections leave no cooldown behind; the pair stays eligible
// the moment better quotes arrive.
func TestEngineRejectionDoesNotCooldown(t *testing.T) {
	clients, poly, kalshi := testVenues()
	lm := testManager(t, &memStore{})

	pairs := make(chan domain.OutcomePair, 4)
	eng := NewEngine(
		pairs,
		NewDetector(zeroCosts(), testLogger()),
		NewSizer(testLimits(), testLogger()),
		NewCoordinator(clients, lm, testLogger()),
		lm,
		time.Minute,
		testLogger(),
	)

	// First snapshot has no edge (total 107, tight spreads); the refreshed
	// quotes right behind it do.
	stale := quotedPair(55, 57, 53, 52)
	fresh := quotedPair(45, 55, 56, 52.5)
	runEngine(t, eng, pairs, stale, fresh)

	if poly.placeCalls != 1 || kalshi.placeCalls != 1 {
		t.Errorf("place calls = %d/%d, want 1/1: the rejected snapshot must not gate the fresh one",
			poly.placeCalls, kalshi.placeCalls)
	}
}
