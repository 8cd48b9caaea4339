package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
)

type fakeStore struct {
	led       *domain.Ledger
	saves     int
	failSaves int
}

func (s *fakeStore) Load(_ context.Context) (*domain.Ledger, error) {
	if s.led == nil {
		return nil, fmt.Errorf("fake: %w", domain.ErrNotFound)
	}
	cp := *s.led
	return &cp, nil
}

func (s *fakeStore) Save(_ context.Context, led *domain.Ledger) error {
	s.saves++
	if s.failSaves > 0 {
		s.failSaves--
		return errors.New("fake: disk full")
	}
	cp := *led
	s.led = &cp
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenFreshLedger(t *testing.T) {
	store := &fakeStore{}
	m, err := Open(context.Background(), store, 10000, testLogger())
	if err != nil {
		t.Fatalf("Open unexpected error: %v", err)
	}

	var balance, initial float64
	m.View(func(led *domain.Ledger) {
		balance = led.BalanceUSD
		initial = led.InitialBalanceUSD
	})
	if balance != 10000 || initial != 10000 {
		t.Errorf("fresh ledger balance = %v initial = %v, want 10000/10000", balance, initial)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1 for the initial record", store.saves)
	}
}

func TestOpenExistingLedger(t *testing.T) {
	existing := domain.NewLedger(10000, time.Now())
	existing.BalanceUSD = 8200.50
	store := &fakeStore{led: existing}

	m, err := Open(context.Background(), store, 10000, testLogger())
	if err != nil {
		t.Fatalf("Open unexpected error: %v", err)
	}

	var balance float64
	m.View(func(led *domain.Ledger) { balance = led.BalanceUSD })
	if balance != 8200.50 {
		t.Errorf("balance = %v, want 8200.50 from the stored record", balance)
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0 when a record already exists", store.saves)
	}
}

func TestUpdatePersistsMutation(t *testing.T) {
	store := &fakeStore{}
	m, err := Open(context.Background(), store, 10000, testLogger())
	if err != nil {
		t.Fatalf("Open unexpected error: %v", err)
	}

	err = m.Update(context.Background(), func(led *domain.Ledger) error {
		led.BalanceUSD -= 97.50
		return nil
	})
	if err != nil {
		t.Fatalf("Update unexpected error: %v", err)
	}
	if store.led.BalanceUSD != 9902.50 {
		t.Errorf("persisted balance = %v, want 9902.50", store.led.BalanceUSD)
	}
}

func TestUpdateFnErrorSkipsSave(t *testing.T) {
	store := &fakeStore{}
	m, err := Open(context.Background(), store, 10000, testLogger())
	if err != nil {
		t.Fatalf("Open unexpected error: %v", err)
	}
	savesBefore := store.saves

	wantErr := errors.New("nothing to do")
	err = m.Update(context.Background(), func(led *domain.Ledger) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Update error = %v, want %v", err, wantErr)
	}
	if store.saves != savesBefore {
		t.Errorf("saves = %d, want %d; fn failure must not persist", store.saves, savesBefore)
	}
}

func TestUpdateRetriesTransientSaveFailure(t *testing.T) {
	store := &fakeStore{}
	m, err := Open(context.Background(), store, 10000, testLogger())
	if err != nil {
		t.Fatalf("Open unexpected error: %v", err)
	}
	store.failSaves = 1
	store.saves = 0

	err = m.Update(context.Background(), func(led *domain.Ledger) error {
		led.BalanceUSD -= 100
		return nil
	})
	if err != nil {
		t.Fatalf("Update unexpected error: %v", err)
	}
	if store.saves != 2 {
		t.Errorf("saves = %d, want 2 (one failure, one retry)", store.saves)
	}
	if store.led.BalanceUSD != 9900 {
		t.Errorf("persisted balance = %v, want 9900", store.led.BalanceUSD)
	}
}

func TestUpdateEscalatesAfterExhaustedRetries(t *testing.T) {
	store := &fakeStore{}
	m, err := Open(context.Background(), store, 10000, testLogger())
	if err != nil {
		t.Fatalf("Open unexpected error: %v", err)
	}
	store.failSaves = saveAttempts
	store.saves = 0

	err = m.Update(context.Background(), func(led *domain.Ledger) error {
		led.BalanceUSD -= 100
		return nil
	})
	if !errors.Is(err, domain.ErrPersistFailed) {
		t.Fatalf("Update error = %v, want ErrPersistFailed", err)
	}
	if store.saves != saveAttempts {
		t.Errorf("saves = %d, want %d attempts", store.saves, saveAttempts)
	}

	// Committed capital must survive the failed save: the mutation stays in
	// memory and the incident is logged on the ledger itself.
	m.View(func(led *domain.Ledger) {
		if led.BalanceUSD != 9900 {
			t.Errorf("in-memory balance = %v, want 9900 retained", led.BalanceUSD)
		}
		if len(led.Errors) == 0 {
			t.Error("expected an error log entry after escalation")
		}
	})
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	store := &fakeStore{}
	m, err := Open(context.Background(), store, 10000, testLogger())
	if err != nil {
		t.Fatalf("Open unexpected error: %v", err)
	}
	err = m.Update(context.Background(), func(led *domain.Ledger) error {
		led.Trades = append(led.Trades, &domain.Trade{ID: "DET@NYK", Status: domain.TradeStatusPending})
		return nil
	})
	if err != nil {
		t.Fatalf("Update unexpected error: %v", err)
	}

	snap := m.Snapshot()
	snap.BalanceUSD = 0
	snap.Trades[0].Status = domain.TradeStatusSettled

	m.View(func(led *domain.Ledger) {
		if led.BalanceUSD != 10000 {
			t.Errorf("balance = %v, want 10000 untouched by snapshot edits", led.BalanceUSD)
		}
		if led.Trades[0].Status != domain.TradeStatusPending {
			t.Errorf("trade status = %s, want pending untouched by snapshot edits", led.Trades[0].Status)
		}
	})
}
