package domain

// Quality classifies how clean a detected opportunity is. It scales the
// position size and drives operator reporting.
type Quality string

const (
	// QualityPerfect: total effective cost under 100, a true risk-free edge.
	QualityPerfect Quality = "perfect"
	// QualityNear: total effective cost between 100 and 105 inclusive.
	QualityNear Quality = "near"
	// QualityPartial: raw prices diverge more than 3 points on an outcome
	// even though the combined cost exceeds the near band.
	QualityPartial Quality = "partial"
)

// LegPlan is the detector's venue assignment for one outcome: where to buy it
// and at what raw/effective price.
type LegPlan struct {
	Venue          Venue
	Code           string
	Name           string
	MarketID       string
	URL            string
	RawPrice       float64
	EffectivePrice float64
	FeeRate        float64
	Slippage       float64
}

// Opportunity is the ephemeral output of detection: a cross-venue leg
// assignment with its combined cost and theoretical edge. Never persisted.
type Opportunity struct {
	PairID             string
	Legs               [2]LegPlan // away, home
	TotalEffectiveCost float64
	Edge               float64 // 100 - TotalEffectiveCost, cents per unit
	Quality            Quality
}
