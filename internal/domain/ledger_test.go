package domain

import (
	"fmt"
	"testing"
	"time"
)

func TestLedgerRollDay(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 23, 50, 0, 0, time.UTC)
	led := NewLedger(10000, day1)
	led.Daily.TradeCount = 4
	led.Daily.LossUSD = 120.5

	// Same UTC day: counters untouched.
	led.RollDay(time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC))
	if led.Daily.TradeCount != 4 || led.Daily.LossUSD != 120.5 {
		t.Fatalf("counters reset within same day: %+v", led.Daily)
	}

	// Next UTC day: counters zeroed, date rolled.
	led.RollDay(time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC))
	if led.Daily.TradeCount != 0 || led.Daily.LossUSD != 0 {
		t.Fatalf("counters not reset on new day: %+v", led.Daily)
	}
	if got, want := led.Daily.ResetDate, "2025-03-02"; got != want {
		t.Fatalf("ResetDate = %q, want %q", got, want)
	}
}

func TestLedgerRecordErrorBounded(t *testing.T) {
	led := NewLedger(1000, time.Now())
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxLedgerErrors+25; i++ {
		led.RecordError("LAL@BOS", fmt.Sprintf("err %d", i), at.Add(time.Duration(i)*time.Second))
	}
	if got := len(led.Errors); got != MaxLedgerErrors {
		t.Fatalf("error log length = %d, want %d", got, MaxLedgerErrors)
	}
	// Oldest surviving entry is #25; most recent is the last written.
	if got, want := led.Errors[0].Message, "err 25"; got != want {
		t.Fatalf("oldest kept entry = %q, want %q", got, want)
	}
	if got, want := led.Errors[len(led.Errors)-1].Message, fmt.Sprintf("err %d", MaxLedgerErrors+24); got != want {
		t.Fatalf("newest entry = %q, want %q", got, want)
	}
}

func TestLedgerOpenTrade(t *testing.T) {
	led := NewLedger(1000, time.Now())
	led.Trades = append(led.Trades,
		&Trade{ID: "LAL@BOS", Status: TradeStatusSettled},
		&Trade{ID: "NYK@MIA", Status: TradeStatusPending},
	)

	if got := led.OpenTrade("LAL@BOS"); got != nil {
		t.Fatalf("settled trade reported as open: %+v", got)
	}
	got := led.OpenTrade("NYK@MIA")
	if got == nil || got.ID != "NYK@MIA" {
		t.Fatalf("OpenTrade(NYK@MIA) = %+v, want the pending trade", got)
	}
	if got := led.OpenTrade("ATL@CHI"); got != nil {
		t.Fatalf("unknown pair reported open: %+v", got)
	}
}

func TestTradeStatusTerminal(t *testing.T) {
	tests := []struct {
		status TradeStatus
		want   bool
	}{
		{TradeStatusPending, false},
		{TradeStatusSettled, true},
		{TradeStatusIncomplete, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
