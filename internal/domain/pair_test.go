package domain

import (
	"strings"
	"testing"
	"time"
)

func validPair() OutcomePair {
	return OutcomePair{
		Away: Outcome{
			Code: "LAL",
			Name: "Los Angeles Lakers",
			Quotes: []VenueQuote{
				{Venue: VenueKalshi, RawPrice: 45, MarketID: "KXNBA-LAL"},
				{Venue: VenuePolymarket, RawPrice: 47, MarketID: "0xabc"},
			},
		},
		Home: Outcome{
			Code: "BOS",
			Name: "Boston Celtics",
			Quotes: []VenueQuote{
				{Venue: VenueKalshi, RawPrice: 55, MarketID: "KXNBA-BOS"},
				{Venue: VenuePolymarket, RawPrice: 52, MarketID: "0xdef"},
			},
		},
		CapturedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOutcomePairID(t *testing.T) {
	p := validPair()
	if got, want := p.ID(), "LAL@BOS"; got != want {
		t.Fatalf("ID() = %q, want %q", got, want)
	}
}

func TestOutcomePairValidate(t *testing.T) {
	if err := validPair().Validate(); err != nil {
		t.Fatalf("valid pair rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*OutcomePair)
		wantSub string
	}{
		{
			name:    "missing code",
			mutate:  func(p *OutcomePair) { p.Away.Code = "" },
			wantSub: "missing outcome code",
		},
		{
			name:    "identical codes",
			mutate:  func(p *OutcomePair) { p.Home.Code = p.Away.Code },
			wantSub: "identical outcome codes",
		},
		{
			name:    "single venue",
			mutate:  func(p *OutcomePair) { p.Home.Quotes = p.Home.Quotes[:1] },
			wantSub: "need 2",
		},
		{
			name: "duplicate venue",
			mutate: func(p *OutcomePair) {
				p.Home.Quotes[1].Venue = p.Home.Quotes[0].Venue
			},
			wantSub: "duplicate quote",
		},
		{
			name:    "unknown venue",
			mutate:  func(p *OutcomePair) { p.Away.Quotes[0].Venue = "bovada" },
			wantSub: "unknown venue",
		},
		{
			name:    "missing market id",
			mutate:  func(p *OutcomePair) { p.Away.Quotes[1].MarketID = "" },
			wantSub: "missing market id",
		},
		{
			name:    "negative price",
			mutate:  func(p *OutcomePair) { p.Home.Quotes[0].RawPrice = -1 },
			wantSub: "invalid raw price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPair()
			tt.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantSub)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestLegMatchesWinner(t *testing.T) {
	leg := Leg{Code: "LAL", Name: "Los Angeles Lakers"}

	tests := []struct {
		winner string
		want   bool
	}{
		{"LAL", true},
		{"lal", true},
		{"Los Angeles Lakers", true},
		{"los angeles lakers", true},
		{"BOS", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := leg.MatchesWinner(tt.winner); got != tt.want {
			t.Errorf("MatchesWinner(%q) = %v, want %v", tt.winner, got, tt.want)
		}
	}
}
