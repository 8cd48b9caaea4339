package domain

import (
	"fmt"
	"math"
	"time"
)

// VenueQuote is one venue's raw price for one outcome, on the 0–100 scale,
// together with the venue market the quote came from.
type VenueQuote struct {
	Venue    Venue   `json:"venue"`
	RawPrice float64 `json:"raw_price"`
	MarketID string  `json:"market_id"`
	URL      string  `json:"url,omitempty"`
}

// Outcome is one side of a matched cross-venue market: a short code (the
// dedup key component) plus the display name venues use in settlement
// announcements, quoted at every venue.
type Outcome struct {
	Code   string       `json:"code"`
	Name   string       `json:"name"`
	Quotes []VenueQuote `json:"quotes"`
}

// Quote returns the outcome's quote at the given venue.
func (o Outcome) Quote(v Venue) (VenueQuote, bool) {
	for _, q := range o.Quotes {
		if q.Venue == v {
			return q, true
		}
	}
	return VenueQuote{}, false
}

// OutcomePair is an immutable per-poll snapshot of the same binary outcome
// quoted at both venues. It is produced by the feed layer, validated once at
// that boundary, and never persisted.
type OutcomePair struct {
	Away       Outcome   `json:"away"`
	Home       Outcome   `json:"home"`
	HasDraw    bool      `json:"has_draw"`
	CapturedAt time.Time `json:"captured_at"`
}

// ID is the deterministic pair key used for trade ids and deduplication.
func (p OutcomePair) ID() string {
	return p.Away.Code + "@" + p.Home.Code
}

// Validate checks the structural requirements the engine relies on: both
// outcomes identified, and each outcome quoted at two distinct venues with a
// market id and a finite non-negative price. Detection-level rules (zero
// price, same venue) are not validation failures; they surface later as
// detection rejections.
func (p OutcomePair) Validate() error {
	if p.Away.Code == "" || p.Home.Code == "" {
		return fmt.Errorf("pair: missing outcome code")
	}
	if p.Away.Code == p.Home.Code {
		return fmt.Errorf("pair: identical outcome codes %q", p.Away.Code)
	}
	for _, o := range []Outcome{p.Away, p.Home} {
		if len(o.Quotes) < 2 {
			return fmt.Errorf("pair: outcome %s quoted at %d venue(s), need 2", o.Code, len(o.Quotes))
		}
		seen := make(map[Venue]bool, len(o.Quotes))
		for _, q := range o.Quotes {
			if !q.Venue.Valid() {
				return fmt.Errorf("pair: outcome %s: unknown venue %q", o.Code, q.Venue)
			}
			if seen[q.Venue] {
				return fmt.Errorf("pair: outcome %s: duplicate quote for venue %s", o.Code, q.Venue)
			}
			seen[q.Venue] = true
			if q.MarketID == "" {
				return fmt.Errorf("pair: outcome %s: missing market id for venue %s", o.Code, q.Venue)
			}
			if math.IsNaN(q.RawPrice) || math.IsInf(q.RawPrice, 0) || q.RawPrice < 0 {
				return fmt.Errorf("pair: outcome %s: invalid raw price %v at venue %s", o.Code, q.RawPrice, q.Venue)
			}
		}
	}
	return nil
}
