package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/hedgeworks/crossarb/internal/domain"
)

func TestPlaceOrderFillsImmediately(t *testing.T) {
	c := NewClient(domain.VenueKalshi)

	res, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		MarketID: "T-DET", Outcome: "DET", Side: domain.OrderSideBuy, Quantity: 50, Price: 0.47,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !res.Success {
		t.Error("Success = false, want true")
	}
	if res.OrderID == "" {
		t.Error("OrderID is empty")
	}
	if res.Status != "filled" {
		t.Errorf("Status = %q, want %q", res.Status, "filled")
	}
	if res.Filled != 50 {
		t.Errorf("Filled = %v, want 50", res.Filled)
	}

	st, err := c.GetOrderStatus(context.Background(), res.OrderID)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if st.Status != "filled" || st.Filled != 50 || st.Remaining != 0 {
		t.Errorf("status = %+v, want filled 50/0", st)
	}
}

func TestPlaceOrderIDsAreUnique(t *testing.T) {
	c := NewClient(domain.VenuePolymarket)
	req := domain.OrderRequest{
		MarketID: "mkt-1", Outcome: "DET", Side: domain.OrderSideBuy, Quantity: 10, Price: 0.5,
	}

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		res, err := c.PlaceOrder(context.Background(), req)
		if err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
		if seen[res.OrderID] {
			t.Fatalf("duplicate order id %q", res.OrderID)
		}
		seen[res.OrderID] = true
	}
}

func TestPlaceOrderRejectsZeroQuantity(t *testing.T) {
	c := NewClient(domain.VenueKalshi)

	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		MarketID: "T-DET", Outcome: "DET", Side: domain.OrderSideBuy, Quantity: 0, Price: 0.5,
	})
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("err = %v, want ErrInvalidQuantity", err)
	}
}

func TestCancelOrder(t *testing.T) {
	c := NewClient(domain.VenueKalshi)

	res, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		MarketID: "T-DET", Outcome: "DET", Side: domain.OrderSideBuy, Quantity: 10, Price: 0.5,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	cres, err := c.CancelOrder(context.Background(), res.OrderID)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if !cres.Success {
		t.Error("Success = false, want true")
	}
	if cres.CancelledAt.IsZero() {
		t.Error("CancelledAt not set")
	}

	st, err := c.GetOrderStatus(context.Background(), res.OrderID)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if st.Status != "cancelled" {
		t.Errorf("Status = %q, want %q", st.Status, "cancelled")
	}

	if _, err := c.CancelOrder(context.Background(), "no-such-order"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetOrderStatusUnknown(t *testing.T) {
	c := NewClient(domain.VenueKalshi)

	_, err := c.GetOrderStatus(context.Background(), "no-such-order")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

type stubSource struct {
	status domain.SettlementStatus
	err    error
	calls  int
}

func (s *stubSource) GetSettlementStatus(ctx context.Context, marketID string) (domain.SettlementStatus, error) {
	s.calls++
	return s.status, s.err
}

func TestGetSettlementStatus(t *testing.T) {
	t.Run("unresolved without script or delegate", func(t *testing.T) {
		c := NewClient(domain.VenueKalshi)

		got, err := c.GetSettlementStatus(context.Background(), "T-DET")
		if err != nil {
			t.Fatalf("GetSettlementStatus: %v", err)
		}
		if got.Resolved {
			t.Errorf("Resolved = true, want false")
		}
	})

	t.Run("scripted result", func(t *testing.T) {
		c := NewClient(domain.VenueKalshi)
		c.SetSettlement("T-DET", domain.SettlementStatus{Resolved: true, Winner: "Detroit Pistons"})

		got, err := c.GetSettlementStatus(context.Background(), "T-DET")
		if err != nil {
			t.Fatalf("GetSettlementStatus: %v", err)
		}
		if !got.Resolved || got.Winner != "Detroit Pistons" {
			t.Errorf("status = %+v, want resolved Detroit Pistons", got)
		}
	})

	t.Run("delegate answers unscripted markets", func(t *testing.T) {
		src := &stubSource{status: domain.SettlementStatus{Resolved: true, Winner: "New York Knicks"}}
		c := NewClient(domain.VenueKalshi)
		c.SetSettlementDelegate(src)

		got, err := c.GetSettlementStatus(context.Background(), "T-NYK")
		if err != nil {
			t.Fatalf("GetSettlementStatus: %v", err)
		}
		if got.Winner != "New York Knicks" {
			t.Errorf("Winner = %q, want delegate answer", got.Winner)
		}
		if src.calls != 1 {
			t.Errorf("delegate calls = %d, want 1", src.calls)
		}
	})

	t.Run("scripted result wins over delegate", func(t *testing.T) {
		src := &stubSource{status: domain.SettlementStatus{Resolved: true, Winner: "New York Knicks"}}
		c := NewClient(domain.VenueKalshi)
		c.SetSettlementDelegate(src)
		c.SetSettlement("T-DET", domain.SettlementStatus{Resolved: true, Winner: "Detroit Pistons"})

		got, err := c.GetSettlementStatus(context.Background(), "T-DET")
		if err != nil {
			t.Fatalf("GetSettlementStatus: %v", err)
		}
		if got.Winner != "Detroit Pistons" {
			t.Errorf("Winner = %q, want scripted answer", got.Winner)
		}
		if src.calls != 0 {
			t.Errorf("delegate calls = %d, want 0", src.calls)
		}
	})
}

func TestVenue(t *testing.T) {
	if got := NewClient(domain.VenueKalshi).Venue(); got != domain.VenueKalshi {
		t.Errorf("Venue = %q, want kalshi", got)
	}
	if got := NewClient(domain.VenuePolymarket).Venue(); got != domain.VenuePolymarket {
		t.Errorf("Venue = %q, want polymarket", got)
	}
}
