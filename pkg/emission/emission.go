// Package emission holds the pure per-day emission curves. Everything here
// is stateless float math; ledgers convert the results to decimals once per
// payment.
package emission

import "math"

// ScoreMultiplier maps a node or resource-node performance score in [0,1] to
// its payout weight: nothing below 0.2, full weight from 0.8 up, linear in
// between.
func ScoreMultiplier(score float64) float64 {
	switch {
	case score < 0.2:
		return 0
	case score >= 0.8:
		return 1
	}
	m := (score - 0.2) / 0.6
	return math.Min(1, math.Max(0, m))
}

// HoldingMultiplier maps heldRatio = totalHeld/totalMinted to a reward
// throttle. Sellers below 40% retention earn nothing, retention in
// [0.9, 1] pays in full, and accumulators above 1 earn a mild premium.
func HoldingMultiplier(heldRatio float64) float64 {
	switch {
	case heldRatio < 0.4:
		return 0
	case heldRatio < 0.9:
		return 1 - math.Sqrt(0.9-heldRatio)
	case heldRatio > 1:
		return 1 + 0.5*math.Sqrt(heldRatio-1)
	}
	return 1
}

// Decay returns the compounding per-day shrinkage of the emission budget.
func Decay(daysSinceStart, dailyDecayRate float64) float64 {
	return math.Pow(dailyDecayRate, daysSinceStart)
}

// BonusMultiplier is the early-registrant multiplier: bonusRatio at program
// start, decaying linearly to 1 over durationDays.
func BonusMultiplier(bonusRatio, durationDays, daysSinceStart float64) float64 {
	if daysSinceStart >= durationDays || durationDays <= 0 {
		return 1
	}
	if daysSinceStart < 0 {
		daysSinceStart = 0
	}
	return bonusRatio - (bonusRatio-1)*(daysSinceStart/durationDays)
}
