// Package sim implements an in-memory venue client for simulated runs. The
// engine wires one per venue in place of the live clients: orders fill
// immediately and in full, nothing leaves the process, and settlement
// queries either follow a scripted result or delegate to a live read-only
// client so simulated trades settle against real market outcomes.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hedgeworks/crossarb/internal/domain"
)

// SettlementSource answers read-only settlement queries. The live venue
// clients satisfy it, letting a simulated run settle against real results.
type SettlementSource interface {
	GetSettlementStatus(ctx context.Context, marketID string) (domain.SettlementStatus, error)
}

// Client satisfies domain.VenueClient with in-memory order bookkeeping.
type Client struct {
	venue    domain.Venue
	delegate SettlementSource

	mu          sync.Mutex
	orders      map[string]domain.OrderStatus
	settlements map[string]domain.SettlementStatus
}

// NewClient creates a simulated client that reports itself as the given
// venue.
func NewClient(venue domain.Venue) *Client {
	return &Client{
		venue:       venue,
		orders:      make(map[string]domain.OrderStatus),
		settlements: make(map[string]domain.SettlementStatus),
	}
}

// SetSettlementDelegate routes settlement queries without a scripted result
// to src, typically a live client used read-only.
func (c *Client) SetSettlementDelegate(src SettlementSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = src
}

// SetSettlement scripts the settlement answer for a market. Scripted results
// win over the delegate.
func (c *Client) SetSettlement(marketID string, s domain.SettlementStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settlements[marketID] = s
}

// Venue implements domain.VenueClient.
func (c *Client) Venue() domain.Venue {
	return c.venue
}

// PlaceOrder implements domain.VenueClient. Every order fills immediately
// and in full at the requested price.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Quantity <= 0 {
		return domain.OrderResult{}, fmt.Errorf("sim: place order: %w", domain.ErrInvalidQuantity)
	}

	orderID := uuid.New().String()

	c.mu.Lock()
	c.orders[orderID] = domain.OrderStatus{
		Status: "filled",
		Filled: req.Quantity,
	}
	c.mu.Unlock()

	return domain.OrderResult{
		Success: true,
		OrderID: orderID,
		Status:  "filled",
		Filled:  req.Quantity,
	}, nil
}

// CancelOrder implements domain.VenueClient. Cancelling a known order always
// succeeds; simulated fills never resist compensation.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (domain.CancelResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.orders[orderID]
	if !ok {
		return domain.CancelResult{}, fmt.Errorf("sim: cancel order %s: %w", orderID, domain.ErrNotFound)
	}

	st.Status = "cancelled"
	st.Remaining = 0
	c.orders[orderID] = st

	return domain.CancelResult{Success: true, CancelledAt: time.Now().UTC()}, nil
}

// GetOrderStatus implements domain.VenueClient.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.orders[orderID]
	if !ok {
		return domain.OrderStatus{}, fmt.Errorf("sim: get order %s: %w", orderID, domain.ErrNotFound)
	}
	return st, nil
}

// GetSettlementStatus implements domain.VenueClient. A scripted result wins;
// otherwise the delegate answers; with neither, the market stays unresolved.
func (c *Client) GetSettlementStatus(ctx context.Context, marketID string) (domain.SettlementStatus, error) {
	c.mu.Lock()
	s, scripted := c.settlements[marketID]
	delegate := c.delegate
	c.mu.Unlock()

	if scripted {
		return s, nil
	}
	if delegate != nil {
		return delegate.GetSettlementStatus(ctx, marketID)
	}
	return domain.SettlementStatus{}, nil
}
