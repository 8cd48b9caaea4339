package domain

import "errors"

// Transport and infrastructure errors shared by the platform clients and
// stores.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
)

// Detection rejections. An OutcomePair that produces one of these carries no
// tradeable opportunity; the engine logs the reason and moves on.
var (
	ErrZeroPrice = errors.New("zero or negative raw price")
	ErrSameVenue = errors.New("both outcomes priced cheapest at one venue")
	ErrNoEdge    = errors.New("no exploitable edge")
)

// Risk rejections. The sizer returns exactly one of these per rejected
// opportunity; none of them has a side effect.
var (
	ErrBelowMinROI         = errors.New("roi below configured minimum")
	ErrInsufficientBalance = errors.New("cost exceeds available balance")
	ErrPositionTooLarge    = errors.New("cost exceeds max position size")
	ErrDailyTradeLimit     = errors.New("daily trade count limit reached")
	ErrDailyLossLimit      = errors.New("daily loss limit reached")
	ErrPairActive          = errors.New("unresolved trade exists for pair")
)

// Execution errors.
var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrPriceOutOfRange = errors.New("leg price outside (0,1) native range")
	ErrLegPlacement    = errors.New("leg placement failed")
	ErrPersistFailed   = errors.New("ledger persistence failed")
)
