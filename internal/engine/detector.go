package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/hedgeworks/crossarb/internal/domain"
)

// Quality classification bounds, in combined effective cents per unit pair.
const (
	nearCostCeiling = 105.0
	// partialDivergencePts is the raw-price gap between venues on a single
	// outcome that still marks a pair interesting above the near band.
	partialDivergencePts = 3.0
)

// CostModel holds one venue's static execution costs. Slippage is an
// estimate added on top of the fee rate; both inflate the raw price into the
// effective price used for cross-venue comparison.
type CostModel struct {
	FeeRate  float64
	Slippage float64
}

// Multiplier converts a raw price to its effective price.
func (m CostModel) Multiplier() float64 {
	return 1 + m.FeeRate + m.Slippage
}

// Detector turns an OutcomePair into an Opportunity, or a typed rejection.
// Comparison happens per outcome, never per venue total: a true hedge buys
// each outcome wherever it is cheapest after costs, so the two legs may (and
// must) land on different venues.
type Detector struct {
	costs  map[domain.Venue]CostModel
	logger *slog.Logger
}

// NewDetector creates a Detector with per-venue cost models.
func NewDetector(costs map[domain.Venue]CostModel, logger *slog.Logger) *Detector {
	return &Detector{
		costs:  costs,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Detect evaluates one pair. Rejections wrap domain.ErrZeroPrice,
// domain.ErrSameVenue, or domain.ErrNoEdge; any other error means the pair
// references a venue the detector has no cost model for.
func (d *Detector) Detect(pair domain.OutcomePair) (domain.Opportunity, error) {
	awayLeg, err := d.bestLeg(pair.Away)
	if err != nil {
		return domain.Opportunity{}, err
	}
	homeLeg, err := d.bestLeg(pair.Home)
	if err != nil {
		return domain.Opportunity{}, err
	}

	if awayLeg.RawPrice <= 0 || homeLeg.RawPrice <= 0 {
		return domain.Opportunity{}, fmt.Errorf("detector: pair %s: %w", pair.ID(), domain.ErrZeroPrice)
	}
	if awayLeg.Venue == homeLeg.Venue {
		return domain.Opportunity{}, fmt.Errorf("detector: pair %s priced cheapest at %s for both outcomes: %w",
			pair.ID(), awayLeg.Venue, domain.ErrSameVenue)
	}

	total := awayLeg.EffectivePrice + homeLeg.EffectivePrice
	opp := domain.Opportunity{
		PairID:             pair.ID(),
		Legs:               [2]domain.LegPlan{awayLeg, homeLeg},
		TotalEffectiveCost: total,
		Edge:               100 - total,
	}

	switch {
	case total < 100:
		opp.Quality = domain.QualityPerfect
	case total <= nearCostCeiling:
		opp.Quality = domain.QualityNear
	case rawDivergence(pair.Away) > partialDivergencePts || rawDivergence(pair.Home) > partialDivergencePts:
		opp.Quality = domain.QualityPartial
	default:
		return domain.Opportunity{}, fmt.Errorf("detector: pair %s total effective cost %.3f: %w",
			pair.ID(), total, domain.ErrNoEdge)
	}

	return opp, nil
}

// bestLeg picks the venue with the lower effective price for one outcome.
// Ties keep the earlier quote, so the choice is deterministic for a given
// feed snapshot.
func (d *Detector) bestLeg(o domain.Outcome) (domain.LegPlan, error) {
	var best domain.LegPlan
	found := false
	for _, q := range o.Quotes {
		model, ok := d.costs[q.Venue]
		if !ok {
			return domain.LegPlan{}, fmt.Errorf("detector: no cost model for venue %s", q.Venue)
		}
		effective := q.RawPrice * model.Multiplier()
		if !found || effective < best.EffectivePrice {
			best = domain.LegPlan{
				Venue:          q.Venue,
				Code:           o.Code,
				Name:           o.Name,
				MarketID:       q.MarketID,
				URL:            q.URL,
				RawPrice:       q.RawPrice,
				EffectivePrice: effective,
				FeeRate:        model.FeeRate,
				Slippage:       model.Slippage,
			}
			found = true
		}
	}
	if !found {
		return domain.LegPlan{}, fmt.Errorf("detector: outcome %s has no quotes", o.Code)
	}
	return best, nil
}

// rawDivergence is the spread between the highest and lowest raw quote for
// one outcome across venues.
func rawDivergence(o domain.Outcome) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, q := range o.Quotes {
		lo = math.Min(lo, q.RawPrice)
		hi = math.Max(hi, q.RawPrice)
	}
	if math.IsInf(lo, 1) {
		return 0
	}
	return hi - lo
}
