package domain

import "time"

// MaxLedgerErrors bounds the persisted error log; only the most recent
// entries are kept.
const MaxLedgerErrors = 100

// dayFormat is the UTC calendar date used for lazy daily-counter resets.
const dayFormat = "2006-01-02"

// DailyCounters accumulate risk state for the current UTC day. ResetDate is
// the day the counters belong to; they are zeroed lazily the first time a
// later day observes them.
type DailyCounters struct {
	TradeCount int     `json:"trade_count"`
	LossUSD    float64 `json:"loss_usd"`
	ResetDate  string  `json:"reset_date"`
}

// ErrorEntry is one line of the bounded persisted error log.
type ErrorEntry struct {
	TradeID string    `json:"trade_id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Ledger is the engine's single persisted record: balance, trade history in
// insertion order, daily risk counters, and the recent-error log. It is read
// fully at startup and rewritten fully on every mutation. Exactly one engine
// instance owns a given persisted ledger.
type Ledger struct {
	BalanceUSD        float64       `json:"balance"`
	InitialBalanceUSD float64       `json:"initial_balance"`
	Trades            []*Trade      `json:"trades"`
	Daily             DailyCounters `json:"daily"`
	Errors            []ErrorEntry  `json:"errors"`
}

// NewLedger creates a fresh ledger with the given starting balance.
func NewLedger(initialBalance float64, now time.Time) *Ledger {
	return &Ledger{
		BalanceUSD:        initialBalance,
		InitialBalanceUSD: initialBalance,
		Daily:             DailyCounters{ResetDate: now.UTC().Format(dayFormat)},
	}
}

// OpenTrade returns the non-terminal trade for the pair id, or nil. The
// coordinator never creates a second live trade for a pair, so the first hit
// is the only one.
func (l *Ledger) OpenTrade(pairID string) *Trade {
	for _, t := range l.Trades {
		if t.ID == pairID && !t.Status.Terminal() {
			return t
		}
	}
	return nil
}

// PendingTrades returns every trade still awaiting settlement, in insertion
// order.
func (l *Ledger) PendingTrades() []*Trade {
	var out []*Trade
	for _, t := range l.Trades {
		if t.Status == TradeStatusPending {
			out = append(out, t)
		}
	}
	return out
}

// RollDay resets the daily counters when now falls on a later UTC day than
// the stored reset date. Callers check counters immediately after; no timer
// is involved.
func (l *Ledger) RollDay(now time.Time) {
	today := now.UTC().Format(dayFormat)
	if l.Daily.ResetDate == today {
		return
	}
	l.Daily = DailyCounters{ResetDate: today}
}

// DailyFor returns the counters as of now without mutating the ledger: fresh
// zeroes when the stored reset date belongs to an earlier UTC day. Read paths
// use this; write paths call RollDay before accumulating.
func (l *Ledger) DailyFor(now time.Time) DailyCounters {
	today := now.UTC().Format(dayFormat)
	if l.Daily.ResetDate == today {
		return l.Daily
	}
	return DailyCounters{ResetDate: today}
}

// RecordError appends to the error log, evicting the oldest entries beyond
// MaxLedgerErrors.
func (l *Ledger) RecordError(tradeID, message string, at time.Time) {
	l.Errors = append(l.Errors, ErrorEntry{TradeID: tradeID, Message: message, At: at.UTC()})
	if n := len(l.Errors); n > MaxLedgerErrors {
		l.Errors = append(l.Errors[:0], l.Errors[n-MaxLedgerErrors:]...)
	}
}

// RealizedProfitUSD sums realized profit across terminal trades.
func (l *Ledger) RealizedProfitUSD() float64 {
	var sum float64
	for _, t := range l.Trades {
		if t.Status.Terminal() {
			sum += t.RealizedProfitUSD
		}
	}
	return sum
}

// CountByStatus tallies trades per status.
func (l *Ledger) CountByStatus() map[TradeStatus]int {
	out := make(map[TradeStatus]int, 3)
	for _, t := range l.Trades {
		out[t.Status]++
	}
	return out
}
