package domain

import (
	"context"
	"time"
)

// LedgerStore is the injected persistence port for the ledger. Load returns
// ErrNotFound when no record has been written yet; Save rewrites the whole
// record.
type LedgerStore interface {
	Load(ctx context.Context) (*Ledger, error)
	Save(ctx context.Context, led *Ledger) error
}

// Trade event names recorded in the audit trail.
const (
	TradeEventPlaced     = "placed"
	TradeEventSettled    = "settled"
	TradeEventIncomplete = "incomplete"
	TradeEventOrphan     = "compensation_failed"
)

// TradeEvent is one row of the append-only execution audit trail.
type TradeEvent struct {
	ID        string
	TradeID   string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// TradeEventStore records execution milestones for offline analysis. It is
// optional; the engine runs without one.
type TradeEventStore interface {
	Record(ctx context.Context, ev TradeEvent) error
	ListByTrade(ctx context.Context, tradeID string, limit int) ([]TradeEvent, error)
	ListRecent(ctx context.Context, limit int) ([]TradeEvent, error)
}
