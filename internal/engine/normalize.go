// Package engine implements the arbitrage execution core: probability
// normalization, opportunity detection, position sizing under risk limits,
// two-leg order placement with compensation, and settlement reconciliation.
package engine

import (
	"fmt"
	"math"
)

// Normalize scales two raw probabilities (each >= 0, summing to anything
// positive) so they sum to exactly 100 as non-negative integers. Both values
// are scaled proportionally and floored; the leftover point, when flooring
// drops one, goes to the side with the smaller raw value. An exact raw tie
// awards it to the away side, keeping the result deterministic.
//
// Three-outcome markets must never pass through here: squeezing a draw's
// probability mass into a two-way 100 fabricates edge that does not exist.
// The feed layer skips normalization when a pair is draw-capable.
func Normalize(away, home float64) (int, int, error) {
	if away < 0 || home < 0 {
		return 0, 0, fmt.Errorf("engine: normalize: negative input (%v, %v)", away, home)
	}
	sum := away + home
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, 0, fmt.Errorf("engine: normalize: degenerate input sum %v", sum)
	}

	scaledAway := away / sum * 100
	scaledHome := home / sum * 100
	a := int(math.Floor(scaledAway))
	h := int(math.Floor(scaledHome))

	remainder := 100 - (a + h)
	if remainder > 0 {
		if home < away {
			h += remainder
		} else {
			// Smaller raw value, or an exact tie, favors the away side.
			a += remainder
		}
	}

	return a, h, nil
}
