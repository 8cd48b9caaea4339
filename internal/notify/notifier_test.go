package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sent struct {
	title   string
	message string
}

// fakeSender records deliveries and signals each one on a channel so tests
// can wait for detached goroutines.
type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	signal chan sent
	err    error
}

func newFakeSender() *fakeSender {
	return &fakeSender{signal: make(chan sent, 16)}
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	s := sent{title: title, message: message}
	f.sent = append(f.sent, s)
	f.signal <- s
	return nil
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitSent(t *testing.T, f *fakeSender) sent {
	t.Helper()
	select {
	case s := <-f.signal:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return sent{}
	}
}

func TestNotifyFiltersEvents(t *testing.T) {
	ctx := context.Background()
	sender := newFakeSender()
	n := NewNotifier([]Sender{sender}, []string{"placed"}, testLogger())

	if err := n.Notify(ctx, "settled", "ignored", "body"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if sender.count() != 0 {
		t.Errorf("filtered event delivered %d times", sender.count())
	}

	if err := n.Notify(ctx, "placed", "kept", "body"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if sender.count() != 1 {
		t.Errorf("allowed event delivered %d times, want 1", sender.count())
	}
}

func TestNotifyEmptyFilterPassesAll(t *testing.T) {
	sender := newFakeSender()
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if sender.count() != 1 {
		t.Errorf("delivered %d times, want 1", sender.count())
	}
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := newFakeSender()
	bad.err = errors.New("webhook down")
	good := newFakeSender()
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("NotifyAll() error = nil, want sender failure")
	}
	if !strings.Contains(err.Error(), "1 sender(s) failed") {
		t.Errorf("error = %v, want aggregate failure", err)
	}
	if good.count() != 1 {
		t.Errorf("healthy sender delivered %d times, want 1", good.count())
	}
}

func TestNotifierNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Fatalf("NotifyAll() with no senders error = %v", err)
	}
}

func TestAnnouncerTradePlaced(t *testing.T) {
	sender := newFakeSender()
	ann := NewTradeAnnouncer(NewNotifier([]Sender{sender}, nil, testLogger()))

	trade := &domain.Trade{
		ID:                "DET@NYK",
		Quantity:          100,
		CostUSD:           96.90,
		ExpectedProfitUSD: 3.10,
		ROIPct:            3.2,
		Legs: [2]domain.Leg{
			{Venue: domain.VenueKalshi, Code: "DET", Name: "Detroit Pistons", RawPrice: 48, EffectivePrice: 48.48},
			{Venue: domain.VenuePolymarket, Code: "NYK", Name: "New York Knicks", RawPrice: 49, EffectivePrice: 49.98},
		},
	}
	ann.TradePlaced(context.Background(), trade)
	got := waitSent(t, sender)

	if got.title != "Trade placed: DET@NYK" {
		t.Errorf("title = %q", got.title)
	}
	for _, want := range []string{"100 contracts", "$96.90", "$3.10", "3.20% ROI", "Detroit Pistons", "kalshi", "polymarket"} {
		if !strings.Contains(got.message, want) {
			t.Errorf("message missing %q:\n%s", want, got.message)
		}
	}
}

func TestAnnouncerLegOrphaned(t *testing.T) {
	sender := newFakeSender()
	ann := NewTradeAnnouncer(NewNotifier([]Sender{sender}, nil, testLogger()))

	leg := domain.Leg{
		Venue:   domain.VenueKalshi,
		Code:    "DET",
		Name:    "Detroit Pistons",
		OrderID: "ord-9",
	}
	ann.LegOrphaned(context.Background(), "DET@NYK", leg, "cancel rejected")
	got := waitSent(t, sender)

	if got.title != "Compensation failed: DET@NYK" {
		t.Errorf("title = %q", got.title)
	}
	for _, want := range []string{"ord-9", "cancel rejected", "without its hedge"} {
		if !strings.Contains(got.message, want) {
			t.Errorf("message missing %q:\n%s", want, got.message)
		}
	}
}

func TestAnnouncerFlushWaits(t *testing.T) {
	sender := newFakeSender()
	ann := NewTradeAnnouncer(NewNotifier([]Sender{sender}, nil, testLogger()))

	ann.TradeSettled(context.Background(), &domain.Trade{ID: "DET@NYK", SettlementUSD: 100, RealizedProfitUSD: 3.1})
	ann.Flush()

	if sender.count() != 1 {
		t.Errorf("delivered %d times after Flush, want 1", sender.count())
	}
}
