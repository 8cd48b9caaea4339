// Package feed delivers matched outcome pairs from an external matcher
// process to the engine. Two sources exist: a WebSocket stream and a Redis
// stream. Both decode the same wire shape and run every pair through the
// boundary checks here; nothing unvalidated reaches the engine channel.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
	"github.com/hedgeworks/crossarb/internal/engine"
)

// Source streams matched pairs into out until the context ends.
type Source interface {
	Run(ctx context.Context, out chan<- domain.OutcomePair) error
}

// DecodePair turns one matcher message into a validated OutcomePair. For
// two-outcome pairs each venue's quotes are normalized to integers summing
// to 100; draw-capable pairs keep their raw prices, since folding a draw's
// probability mass into two sides would fabricate edge.
func DecodePair(data []byte) (domain.OutcomePair, error) {
	var pair domain.OutcomePair
	if err := json.Unmarshal(data, &pair); err != nil {
		return domain.OutcomePair{}, fmt.Errorf("feed: decode pair: %w", err)
	}
	if err := pair.Validate(); err != nil {
		return domain.OutcomePair{}, fmt.Errorf("feed: %w", err)
	}
	if pair.CapturedAt.IsZero() {
		pair.CapturedAt = time.Now().UTC()
	}
	if pair.HasDraw {
		return pair, nil
	}

	for _, v := range []domain.Venue{domain.VenueKalshi, domain.VenuePolymarket} {
		aq, _ := pair.Away.Quote(v)
		hq, _ := pair.Home.Quote(v)
		a, h, err := engine.Normalize(aq.RawPrice, hq.RawPrice)
		if err != nil {
			return domain.OutcomePair{}, fmt.Errorf("feed: pair %s: %s quotes: %w", pair.ID(), v, err)
		}
		setRawPrice(&pair.Away, v, float64(a))
		setRawPrice(&pair.Home, v, float64(h))
	}

	return pair, nil
}

func setRawPrice(o *domain.Outcome, v domain.Venue, price float64) {
	for i := range o.Quotes {
		if o.Quotes[i].Venue == v {
			o.Quotes[i].RawPrice = price
			return
		}
	}
}
