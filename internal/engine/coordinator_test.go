package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
	"github.com/hedgeworks/crossarb/internal/ledger"
)

// memStore is an in-memory ledger store with optional save-failure injection.
type memStore struct {
	led       *domain.Ledger
	saves     int
	failSaves int
}

func (s *memStore) Load(_ context.Context) (*domain.Ledger, error) {
	if s.led == nil {
		return nil, fmt.Errorf("mem: %w", domain.ErrNotFound)
	}
	cp := *s.led
	return &cp, nil
}

func (s *memStore) Save(_ context.Context, led *domain.Ledger) error {
	s.saves++
	if s.failSaves > 0 {
		s.failSaves--
		return errors.New("mem: save rejected")
	}
	cp := *led
	s.led = &cp
	return nil
}

// fakeVenue is a scriptable domain.VenueClient.
type fakeVenue struct {
	venue        domain.Venue
	placeErr     error
	rejectPlace  bool
	cancelErr    error
	rejectCancel bool
	settleErr    error
	settlements  map[string]domain.SettlementStatus

	placeCalls  int
	cancelCalls int
	settleCalls int
	orders      int
}

func (f *fakeVenue) Venue() domain.Venue { return f.venue }

func (f *fakeVenue) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.placeCalls++
	if f.placeErr != nil {
		return domain.OrderResult{}, f.placeErr
	}
	if f.rejectPlace {
		return domain.OrderResult{Success: false, Message: "insufficient liquidity"}, nil
	}
	f.orders++
	return domain.OrderResult{
		Success: true,
		OrderID: fmt.Sprintf("%s-%d", f.venue, f.orders),
		Status:  "filled",
		Filled:  req.Quantity,
	}, nil
}

func (f *fakeVenue) CancelOrder(_ context.Context, _ string) (domain.CancelResult, error) {
	f.cancelCalls++
	if f.cancelErr != nil {
		return domain.CancelResult{}, f.cancelErr
	}
	if f.rejectCancel {
		return domain.CancelResult{Success: false, Message: "order already filled"}, nil
	}
	return domain.CancelResult{Success: true, CancelledAt: time.Now()}, nil
}

func (f *fakeVenue) GetOrderStatus(_ context.Context, _ string) (domain.OrderStatus, error) {
	return domain.OrderStatus{Status: "filled"}, nil
}

func (f *fakeVenue) GetSettlementStatus(_ context.Context, marketID string) (domain.SettlementStatus, error) {
	f.settleCalls++
	if f.settleErr != nil {
		return domain.SettlementStatus{}, f.settleErr
	}
	return f.settlements[marketID], nil
}

// fakeAnnouncer records which notifications fired.
type fakeAnnouncer struct {
	placed     []string
	settled    []string
	incomplete []string
	orphaned   []string
}

func (a *fakeAnnouncer) TradePlaced(_ context.Context, t *domain.Trade) {
	a.placed = append(a.placed, t.ID)
}
func (a *fakeAnnouncer) TradeSettled(_ context.Context, t *domain.Trade) {
	a.settled = append(a.settled, t.ID)
}
func (a *fakeAnnouncer) TradeIncomplete(_ context.Context, t *domain.Trade) {
	a.incomplete = append(a.incomplete, t.ID)
}
func (a *fakeAnnouncer) LegOrphaned(_ context.Context, pairID string, _ domain.Leg, _ string) {
	a.orphaned = append(a.orphaned, pairID)
}

// fakeEventStore records audit events in memory.
type fakeEventStore struct {
	events []domain.TradeEvent
}

func (s *fakeEventStore) Record(_ context.Context, ev domain.TradeEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeEventStore) ListByTrade(_ context.Context, tradeID string, _ int) ([]domain.TradeEvent, error) {
	var out []domain.TradeEvent
	for _, ev := range s.events {
		if ev.TradeID == tradeID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeEventStore) ListRecent(_ context.Context, _ int) ([]domain.TradeEvent, error) {
	return s.events, nil
}

func testManager(t *testing.T, store domain.LedgerStore) *ledger.Manager {
	t.Helper()
	m, err := ledger.Open(context.Background(), store, 10000, testLogger())
	if err != nil {
		t.Fatalf("ledger.Open unexpected error: %v", err)
	}
	return m
}

func plannedOpp() domain.Opportunity {
	return domain.Opportunity{
		PairID: "DET@NYK",
		Legs: [2]domain.LegPlan{
			{Venue: domain.VenuePolymarket, Code: "DET", Name: "Detroit Pistons", MarketID: "poly-det", RawPrice: 45, EffectivePrice: 46.125, FeeRate: 0.02, Slippage: 0.005},
			{Venue: domain.VenueKalshi, Code: "NYK", Name: "New York Knicks", MarketID: "kx-nyk", RawPrice: 48, EffectivePrice: 51.60, FeeRate: 0.07, Slippage: 0.005},
		},
		TotalEffectiveCost: 97.725,
		Edge:               2.275,
		Quality:            domain.QualityPerfect,
	}
}

func approvedSizing() Sizing {
	return Sizing{Quantity: 100, CostUSD: 97.50, ProfitUSD: 2.50, ROIPct: 2.56}
}

func testVenues() (map[domain.Venue]domain.VenueClient, *fakeVenue, *fakeVenue) {
	poly := &fakeVenue{venue: domain.VenuePolymarket, settlements: map[string]domain.SettlementStatus{}}
	kalshi := &fakeVenue{venue: domain.VenueKalshi, settlements: map[string]domain.SettlementStatus{}}
	clients := map[domain.Venue]domain.VenueClient{
		domain.VenuePolymarket: poly,
		domain.VenueKalshi:     kalshi,
	}
	return clients, poly, kalshi
}

func TestExecuteValidationRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(opp *domain.Opportunity, sz *Sizing)
		wantErr error
	}{
		{
			name:    "zero quantity",
			mutate:  func(_ *domain.Opportunity, sz *Sizing) { sz.Quantity = 0 },
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:    "negative quantity",
			mutate:  func(_ *domain.Opportunity, sz *Sizing) { sz.Quantity = -5 },
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:    "native price at one",
			mutate:  func(opp *domain.Opportunity, _ *Sizing) { opp.Legs[1].RawPrice = 100 },
			wantErr: domain.ErrPriceOutOfRange,
		},
		{
			name:    "native price at zero",
			mutate:  func(opp *domain.Opportunity, _ *Sizing) { opp.Legs[0].RawPrice = 0 },
			wantErr: domain.ErrPriceOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clients, poly, kalshi := testVenues()
			lm := testManager(t, &memStore{})
			c := NewCoordinator(clients, lm, testLogger())

			opp := plannedOpp()
			sz := approvedSizing()
			tt.mutate(&opp, &sz)

			trade, err := c.Execute(context.Background(), opp, sz)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute error = %v, want %v", err, tt.wantErr)
			}
			if trade != nil {
				t.Errorf("Execute returned trade %v, want nil", trade.ID)
			}
			// Validation failures must not reach a venue.
			if poly.placeCalls != 0 || kalshi.placeCalls != 0 {
				t.Errorf("venue calls = %d/%d, want 0/0", poly.placeCalls, kalshi.placeCalls)
			}
		})
	}
}

func TestExecuteCommitsAtomically(t *testing.T) {
	clients, poly, kalshi := testVenues()
	lm := testManager(t, &memStore{})
	events := &fakeEventStore{}
	ann := &fakeAnnouncer{}
	c := NewCoordinator(clients, lm, testLogger())
	c.SetEventStore(events)
	c.SetAnnouncer(ann)

	trade, err := c.Execute(context.Background(), plannedOpp(), approvedSizing())
	if err != nil {
		t.Fatalf("Execute unexpected error: %v", err)
	}
	if trade == nil {
		t.Fatal("Execute returned nil trade")
	}
	if trade.ID != "DET@NYK" || trade.Status != domain.TradeStatusPending {
		t.Errorf("trade = %s/%s, want DET@NYK/pending", trade.ID, trade.Status)
	}
	if trade.Legs[0].OrderID == "" || trade.Legs[1].OrderID == "" {
		t.Errorf("legs missing order ids: %q/%q", trade.Legs[0].OrderID, trade.Legs[1].OrderID)
	}
	if poly.placeCalls != 1 || kalshi.placeCalls != 1 {
		t.Errorf("place calls = %d/%d, want 1/1", poly.placeCalls, kalshi.placeCalls)
	}

	lm.View(func(led *domain.Ledger) {
		if led.BalanceUSD != 9902.50 {
			t.Errorf("balance = %v, want 9902.50", led.BalanceUSD)
		}
		if len(led.Trades) != 1 || led.Trades[0].ID != "DET@NYK" {
			t.Errorf("ledger trades = %d, want the committed trade", len(led.Trades))
		}
		if led.Daily.TradeCount != 1 {
			t.Errorf("daily trade count = %d, want 1", led.Daily.TradeCount)
		}
	})

	if len(events.events) != 1 || events.events[0].Event != domain.TradeEventPlaced {
		t.Errorf("events = %+v, want one placed event", events.events)
	}
	if len(ann.placed) != 1 {
		t.Errorf("placed announcements = %d, want 1", len(ann.placed))
	}
}

func TestExecuteFirstLegFailureAborts(t *testing.T) {
	clients, poly, kalshi := testVenues()
	poly.placeErr = errors.New("gateway timeout")
	lm := testManager(t, &memStore{})
	c := NewCoordinator(clients, lm, testLogger())

	trade, err := c.Execute(context.Background(), plannedOpp(), approvedSizing())
	if !errors.Is(err, domain.ErrLegPlacement) {
		t.Errorf("Execute error = %v, want ErrLegPlacement", err)
	}
	if trade != nil {
		t.Errorf("Execute returned trade %v, want nil", trade.ID)
	}
	if kalshi.placeCalls != 0 {
		t.Errorf("second leg attempted %d times after first leg failure, want 0", kalshi.placeCalls)
	}
	if poly.cancelCalls != 0 {
		t.Errorf("cancel calls = %d, want 0 with nothing placed", poly.cancelCalls)
	}

	lm.View(func(led *domain.Ledger) {
		if led.BalanceUSD != 10000 {
			t.Errorf("balance = %v, want 10000 untouched", led.BalanceUSD)
		}
		if len(led.Trades) != 0 {
			t.Errorf("trades = %d, want 0", len(led.Trades))
		}
		if len(led.Errors) == 0 {
			t.Error("expected a ledger error entry for the failed leg")
		}
	})
}

func TestExecuteSecondLegFailureCompensatesOnce(t *testing.T) {
	tests := []struct {
		name   string
		script func(kalshi *fakeVenue)
	}{
		{
			name:   "transport error",
			script: func(k *fakeVenue) { k.placeErr = errors.New("connection reset") },
		},
		{
			name:   "venue rejection",
			script: func(k *fakeVenue) { k.rejectPlace = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clients, poly, kalshi := testVenues()
			tt.script(kalshi)
			lm := testManager(t, &memStore{})
			c := NewCoordinator(clients, lm, testLogger())

			trade, err := c.Execute(context.Background(), plannedOpp(), approvedSizing())
			if !errors.Is(err, domain.ErrLegPlacement) {
				t.Errorf("Execute error = %v, want ErrLegPlacement", err)
			}
			if trade != nil {
				t.Errorf("Execute returned trade %v, want nil", trade.ID)
			}
			if poly.cancelCalls != 1 {
				t.Errorf("cancel calls = %d, want exactly 1", poly.cancelCalls)
			}

			lm.View(func(led *domain.Ledger) {
				if led.BalanceUSD != 10000 {
					t.Errorf("balance = %v, want 10000 untouched", led.BalanceUSD)
				}
				if len(led.Trades) != 0 {
					t.Errorf("trades = %d, want 0", len(led.Trades))
				}
			})
		})
	}
}

func TestExecuteFailedCancelLeavesOrphanRecord(t *testing.T) {
	clients, poly, kalshi := testVenues()
	kalshi.placeErr = errors.New("connection reset")
	poly.cancelErr = errors.New("cancel endpoint down")
	lm := testManager(t, &memStore{})
	ann := &fakeAnnouncer{}
	c := NewCoordinator(clients, lm, testLogger())
	c.SetAnnouncer(ann)

	_, err := c.Execute(context.Background(), plannedOpp(), approvedSizing())
	if !errors.Is(err, domain.ErrLegPlacement) {
		t.Errorf("Execute error = %v, want ErrLegPlacement", err)
	}
	if poly.cancelCalls != 1 {
		t.Errorf("cancel calls = %d, want exactly 1 even on failure", poly.cancelCalls)
	}
	if len(ann.orphaned) != 1 || ann.orphaned[0] != "DET@NYK" {
		t.Errorf("orphan announcements = %v, want one for DET@NYK", ann.orphaned)
	}

	lm.View(func(led *domain.Ledger) {
		found := false
		for _, e := range led.Errors {
			if e.TradeID == "DET@NYK" {
				found = true
			}
		}
		if !found {
			t.Error("expected an orphaned-leg entry in the ledger error log")
		}
	})
}

func TestExecutePersistFailureKeepsTrade(t *testing.T) {
	clients, _, _ := testVenues()
	store := &memStore{}
	lm := testManager(t, store)
	c := NewCoordinator(clients, lm, testLogger())
	store.failSaves = 3

	trade, err := c.Execute(context.Background(), plannedOpp(), approvedSizing())
	if !errors.Is(err, domain.ErrPersistFailed) {
		t.Fatalf("Execute error = %v, want ErrPersistFailed", err)
	}
	if trade == nil {
		t.Fatal("Execute returned nil trade; committed capital must surface")
	}

	// The commit survives in memory: balance debited, trade pending, and the
	// incident recorded for the next successful save.
	lm.View(func(led *domain.Ledger) {
		if led.BalanceUSD != 9902.50 {
			t.Errorf("balance = %v, want 9902.50", led.BalanceUSD)
		}
		if len(led.Trades) != 1 {
			t.Errorf("trades = %d, want 1", len(led.Trades))
		}
		if len(led.Errors) == 0 {
			t.Error("expected an escalated persistence error entry")
		}
	})
}
