package risk

import "math"

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// GrossExposure sums absolute notional across positions.
func GrossExposure(positions map[string]float64) float64 {
	var total float64
	for _, n := range positions {
		total += abs(n)
	}
	return total
}

// Leverage is gross exposure over cash. It is +Inf when cash is not
// positive.
func Leverage(gross, cash float64) float64 {
	if cash <= 0 {
		return math.Inf(1)
	}
	return gross / cash
}
