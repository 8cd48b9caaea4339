package domain

import (
	"context"
	"time"
)

// Venue identifies one of the two supported trading venues.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// Valid reports whether v is a known venue.
func (v Venue) Valid() bool {
	return v == VenueKalshi || v == VenuePolymarket
}

// OrderSide is the direction of an order. Arbitrage legs are always buys of
// one outcome; sells exist for manual unwinding of orphaned legs.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderRequest is the venue-agnostic order the coordinator submits.
// Price is on the native 0–1 probability scale; each client converts to its
// venue's wire representation. Outcome and OutcomeName identify the backed
// outcome by code and display name; clients match either, the way winner
// matching does.
type OrderRequest struct {
	MarketID    string
	Outcome     string // outcome code the order backs
	OutcomeName string
	Side        OrderSide
	Quantity    float64
	Price       float64
}

// OrderResult is the outcome of a placement attempt.
type OrderResult struct {
	Success bool
	OrderID string
	Status  string
	Filled  float64
	Message string
}

// CancelResult is the outcome of a cancellation attempt.
type CancelResult struct {
	Success     bool
	CancelledAt time.Time
	Message     string
}

// OrderStatus is a point-in-time view of a resting order.
type OrderStatus struct {
	Status    string
	Filled    float64
	Remaining float64
}

// SettlementStatus reports whether a market has resolved and, if so, the
// identifier of the winning outcome as the venue announces it. Winner may be
// an outcome code or a display name; it is empty while unresolved or when the
// venue's answer is unusable.
type SettlementStatus struct {
	Resolved bool
	Winner   string
}

// VenueClient is the capability each venue exposes to the engine. The
// coordinator and reconciler depend only on this contract; authentication and
// wire formats stay inside the implementations.
type VenueClient interface {
	Venue() Venue
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (CancelResult, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	GetSettlementStatus(ctx context.Context, marketID string) (SettlementStatus, error)
}
